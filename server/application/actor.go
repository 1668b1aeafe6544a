package application

import (
	"maps"
	"slices"
	"time"

	"github.com/DSMD-D/primor/server/domain"
)

// Behavior はアクターの操作主体です。生成後に変わることはありません。
type Behavior uint8

const (
	BehaviorHuman Behavior = iota
	BehaviorBot
)

func (b Behavior) String() string {
	if b == BehaviorBot {
		return "bot"
	}
	return "human"
}

// 基本形質。変異の効果はここに加算されます。
const (
	TraitGrowth   = "growth"
	TraitDefense  = "defense"
	TraitSpeed    = "speed"
	TraitSurvival = "survival"
	TraitAttack   = "attack"
)

const (
	defaultEnergy     = 50.0
	defaultPopulation = 1
)

// BaseTraits は新規アクターの形質を返します。
func BaseTraits() map[string]float64 {
	return map[string]float64{
		TraitGrowth:   5,
		TraitDefense:  1,
		TraitSpeed:    1,
		TraitSurvival: 1,
		TraitAttack:   0,
	}
}

// Actor はワールド上のプレイヤーまたはボットです。
// フィールドの読み書きはワールドロックを保持した状態でのみ行います。
type Actor struct {
	ID       string
	Name     string
	Behavior Behavior

	// Position はグリッド以外のワールドでは nil です。
	Position  *domain.Position
	Health    int
	MaxHealth int

	Biomass    int
	Energy     float64
	Population int

	Mutations []string
	Traits    map[string]float64
	CreatedAt time.Time
}

// IsBot はボットかどうかを返します。
func (a *Actor) IsBot() bool {
	return a.Behavior == BehaviorBot
}

// HasMutation は変異を獲得済みかどうかを返します。
func (a *Actor) HasMutation(id string) bool {
	return slices.Contains(a.Mutations, id)
}

// View はクライアントに送る状態のコピーを作ります。
func (a *Actor) View() domain.ActorView {
	v := domain.ActorView{
		ID:         a.ID,
		Name:       a.Name,
		Bot:        a.IsBot(),
		Health:     a.Health,
		MaxHealth:  a.MaxHealth,
		Biomass:    a.Biomass,
		Energy:     a.Energy,
		Population: a.Population,
		Mutations:  slices.Clone(a.Mutations),
		Traits:     maps.Clone(a.Traits),
		CreatedAt:  a.CreatedAt,
	}
	if v.Mutations == nil {
		v.Mutations = []string{}
	}
	if a.Position != nil {
		pos := *a.Position
		v.Position = &pos
	}
	return v
}

// chebyshev はグリッド上のチェビシェフ距離です。どちらかが位置を持たなければ -1 を返します。
func chebyshev(a, b *Actor) int {
	if a.Position == nil || b.Position == nil {
		return -1
	}
	return max(abs(a.Position.X-b.Position.X), abs(a.Position.Y-b.Position.Y))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
