package application

import (
	"math/rand/v2"

	"github.com/DSMD-D/primor/server/domain"
)

// botNames はボットの表示名の候補です。
var botNames = []string{
	"Amoeba",
	"Paramecium",
	"Euglena",
	"Volvox",
	"Stentor",
	"Vorticella",
	"Didinium",
	"Spirostomum",
}

// BotController はボットの意思決定インターフェースです。
type BotController interface {
	Decide(self *Actor, actors []*Actor) domain.Direction
}

// RandomWalkController は毎回一様ランダムに方向を選びます。
type RandomWalkController struct {
	rng *rand.Rand
}

func NewRandomWalkController(rng *rand.Rand) *RandomWalkController {
	return &RandomWalkController{rng: rng}
}

func (r *RandomWalkController) Decide(self *Actor, actors []*Actor) domain.Direction {
	return domain.Directions[r.rng.IntN(len(domain.Directions))]
}

// BotDriver はボットを人間と同じ移動・復活の処理で動かします。
type BotDriver struct {
	proc       *CommandProcessor
	controller BotController
	count      int
}

func newBotDriver(proc *CommandProcessor, controller BotController, count int) *BotDriver {
	return &BotDriver{
		proc:       proc,
		controller: controller,
		count:      count,
	}
}

// spawnRoster はボットを1度だけ生成します。生成した場合 true を返します。
func (b *BotDriver) spawnRoster(st *worldState) bool {
	if st.botsSpawned || b.count <= 0 {
		return false
	}
	st.botsSpawned = true
	for range b.count {
		b.proc.join(st, domain.JoinCommand{Bot: true}, "")
	}
	return true
}

// step は全ボットを1歩動かし、隣接する人間に botDamage を与えます。
// ボット同士は攻撃しません。状態が変わった場合 true を返します。
func (b *BotDriver) step(st *worldState) bool {
	changed := false
	actors := st.store.SnapshotAll()
	for _, bot := range actors {
		if !bot.IsBot() {
			continue
		}
		if b.proc.move(bot, b.controller.Decide(bot, actors)) {
			changed = true
		}
		for _, target := range actors {
			if target.IsBot() {
				continue
			}
			if d := chebyshev(bot, target); d < 0 || d > 1 {
				continue
			}
			b.proc.damage(target, botDamage)
			changed = true
		}
	}
	return changed
}
