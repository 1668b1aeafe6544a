package application

import (
	"math/rand/v2"
	"time"

	"github.com/DSMD-D/primor/server/domain"
	"github.com/DSMD-D/primor/server/evolution"
	"github.com/google/uuid"
)

const (
	playerDamage = 2
	botDamage    = 1
	humanName    = "You"
)

// CommandProcessor はコマンドを検証し共有状態に適用します。
// 不正なコマンドは黙って無視され、false が返ります。
type CommandProcessor struct {
	cfg     Config
	catalog *evolution.Catalog
	rng     *rand.Rand
	now     func() time.Time
}

func newCommandProcessor(cfg Config, catalog *evolution.Catalog, rng *rand.Rand) *CommandProcessor {
	return &CommandProcessor{
		cfg:     cfg,
		catalog: catalog,
		rng:     rng,
		now:     time.Now,
	}
}

// join はアクターを生成します。RequestedID が空いていれば再利用し、そうでなければ新しい ID を発行します。
func (p *CommandProcessor) join(st *worldState, cmd domain.JoinCommand, name string) *Actor {
	id := cmd.RequestedID
	if id == "" || st.store.Contains(id) {
		id = uuid.NewString()
	}

	a := &Actor{
		ID:         id,
		Name:       name,
		Behavior:   BehaviorHuman,
		Energy:     defaultEnergy,
		Population: defaultPopulation,
		Mutations:  []string{},
		Traits:     BaseTraits(),
		CreatedAt:  p.now().UTC(),
	}
	if cmd.Bot {
		a.Behavior = BehaviorBot
	}
	if a.Name == "" {
		switch {
		case cmd.Bot:
			a.Name = botNames[p.rng.IntN(len(botNames))]
		case p.cfg.Variant == domain.VariantColony:
			a.Name = "Colony " + id[:min(4, len(id))]
		default:
			a.Name = humanName
		}
	}
	if p.cfg.Variant == domain.VariantGrid {
		a.Biomass = 1
		a.MaxHealth = p.cfg.MaxHealth
		a.Health = p.cfg.MaxHealth
		pos := p.randomPosition()
		a.Position = &pos
	}

	st.store.Upsert(a)
	st.addBiomass(a.Biomass)
	return a
}

// leave は人間のアクターを取り除きます。ボットは取り除かれません。
func (p *CommandProcessor) leave(st *worldState, id string) (*Actor, bool) {
	a, ok := st.store.Get(id)
	if !ok || a.IsBot() {
		return nil, false
	}
	st.store.Remove(id)
	st.addBiomass(-a.Biomass)
	return a, true
}

// mutate は変異を1度だけ適用します。
func (p *CommandProcessor) mutate(st *worldState, cmd domain.MutateCommand) (*Actor, bool) {
	a, ok := st.store.Get(cmd.ActorID)
	if !ok || cmd.MutationID == "" || a.HasMutation(cmd.MutationID) {
		return nil, false
	}
	if _, known := p.catalog.Lookup(cmd.MutationID); !known {
		return nil, false
	}

	a.Mutations = append(a.Mutations, cmd.MutationID)
	for trait, delta := range p.catalog.EffectsOf(cmd.MutationID) {
		a.Traits[trait] += delta
	}
	a.Biomass++
	st.addBiomass(1)
	st.globalMutations[cmd.MutationID]++
	if a.Position != nil {
		a.Health = min(a.Health+1, a.MaxHealth)
	}
	return a, true
}

// move は1マス移動します。盤面の外には出ません。位置が変わった場合のみ true を返します。
func (p *CommandProcessor) move(a *Actor, dir domain.Direction) bool {
	if a.Position == nil {
		return false
	}
	dx, dy := dir.Vector()
	next := domain.Position{
		X: clamp(a.Position.X+dx, 0, p.cfg.Width-1),
		Y: clamp(a.Position.Y+dy, 0, p.cfg.Height-1),
	}
	if next == *a.Position {
		return false
	}
	*a.Position = next
	return true
}

// attack は攻撃者の周囲8マスと同じマスにいる他アクター全員に playerDamage を与えます。
func (p *CommandProcessor) attack(st *worldState, attacker *Actor) bool {
	if attacker.Position == nil {
		return false
	}
	hit := false
	for _, target := range st.store.SnapshotAll() {
		if target.ID == attacker.ID {
			continue
		}
		if d := chebyshev(attacker, target); d < 0 || d > 1 {
			continue
		}
		hit = true
		if p.damage(target, playerDamage) {
			st.addBiomass(-1)
		}
	}
	return hit
}

// damage は体力を減らし、0 以下になったらその場で復活させます。倒れたら true を返します。
func (p *CommandProcessor) damage(target *Actor, amount int) bool {
	target.Health -= amount
	if target.Health > 0 {
		return false
	}
	p.respawn(target)
	return true
}

// respawn は体力を最大に戻し、ランダムな位置へ移します。
func (p *CommandProcessor) respawn(a *Actor) {
	a.Health = a.MaxHealth
	pos := p.randomPosition()
	a.Position = &pos
}

func (p *CommandProcessor) randomPosition() domain.Position {
	return domain.Position{
		X: p.rng.IntN(p.cfg.Width),
		Y: p.rng.IntN(p.cfg.Height),
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
