package application

import (
	"context"
	"errors"
	"maps"
	"math/rand/v2"
	"slices"
	"sync"
	"testing"

	"github.com/DSMD-D/primor/server/domain"
	"github.com/DSMD-D/primor/server/evolution"
	"pgregory.net/rapid"
)

type fataler interface {
	Helper()
	Fatalf(format string, args ...any)
}

func newTestWorld(t fataler, variant domain.Variant, bots int) *World {
	t.Helper()
	catalog, err := evolution.Default(CatalogShapeFor(variant))
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	cfg := DefaultConfig()
	cfg.Variant = variant
	cfg.BotCount = bots
	cfg.Rand = rand.New(rand.NewPCG(1, 2))
	w, err := NewWorld(cfg, catalog)
	if err != nil {
		t.Fatalf("new world: %v", err)
	}
	return w
}

func joinActor(t fataler, w *World, cmd domain.JoinCommand) string {
	t.Helper()
	res := w.Apply(context.Background(), cmd)
	if !res.Changed || res.ActorID == "" {
		t.Fatalf("join did not create an actor: %+v", res)
	}
	return res.ActorID
}

// withActor はロックを取ってアクターを直接操作します。
func withActor(w *World, id string, fn func(a *Actor)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if a, ok := w.st.store.Get(id); ok {
		fn(a)
	}
}

func place(w *World, id string, x, y int) {
	withActor(w, id, func(a *Actor) {
		a.Position = &domain.Position{X: x, Y: y}
	})
}

func TestNewWorld_RejectsMismatchedCatalog(t *testing.T) {
	cases := []struct {
		variant domain.Variant
		shape   evolution.Shape
	}{
		{domain.VariantGrid, evolution.ShapeFlat},
		{domain.VariantColony, evolution.ShapeTree},
	}
	for _, tc := range cases {
		catalog, err := evolution.Default(tc.shape)
		if err != nil {
			t.Fatalf("load catalog: %v", err)
		}
		cfg := DefaultConfig()
		cfg.Variant = tc.variant
		if _, err := NewWorld(cfg, catalog); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("%s world with %s catalog: err = %v, want ErrInvalidConfig", tc.variant, tc.shape, err)
		}
	}
}

func TestWorld_JoinDefaults(t *testing.T) {
	w := newTestWorld(t, domain.VariantGrid, 0)
	res := w.Apply(context.Background(), domain.JoinCommand{})

	p := res.Player
	if p == nil {
		t.Fatal("join result has no player")
	}
	if p.Name != "You" || p.Bot {
		t.Errorf("name = %q bot = %v", p.Name, p.Bot)
	}
	if p.Health != 10 || p.MaxHealth != 10 || p.Biomass != 1 {
		t.Errorf("health %d/%d biomass %d", p.Health, p.MaxHealth, p.Biomass)
	}
	if !maps.Equal(p.Traits, BaseTraits()) {
		t.Errorf("traits = %v", p.Traits)
	}
	if p.Position == nil || p.Position.X < 0 || p.Position.X >= 20 || p.Position.Y < 0 || p.Position.Y >= 20 {
		t.Errorf("position = %v", p.Position)
	}
	if res.Snapshot.Players != 1 || res.Snapshot.GlobalBiomass != 1 {
		t.Errorf("players %d biomass %d", res.Snapshot.Players, res.Snapshot.GlobalBiomass)
	}
}

func TestWorld_JoinReusesFreeID(t *testing.T) {
	w := newTestWorld(t, domain.VariantGrid, 0)
	if id := joinActor(t, w, domain.JoinCommand{RequestedID: "alice"}); id != "alice" {
		t.Fatalf("id = %q, want alice", id)
	}
	id := joinActor(t, w, domain.JoinCommand{RequestedID: "alice"})
	if id == "alice" || id == "" {
		t.Fatalf("taken id must not be reused, got %q", id)
	}
}

func TestWorld_MutateShell(t *testing.T) {
	ctx := context.Background()
	w := newTestWorld(t, domain.VariantGrid, 0)
	a := joinActor(t, w, domain.JoinCommand{})
	place(w, a, 5, 5)

	res := w.Apply(ctx, domain.MutateCommand{ActorID: a, MutationID: "shell"})
	if !res.Changed {
		t.Fatal("mutate shell was ignored")
	}
	if got := res.Player.Traits[TraitDefense]; got != 3 {
		t.Errorf("defense = %v, want 3", got)
	}
	if res.Player.Biomass != 2 {
		t.Errorf("biomass = %d, want 2", res.Player.Biomass)
	}

	again := w.Apply(ctx, domain.MutateCommand{ActorID: a, MutationID: "shell"})
	if again.Changed {
		t.Fatal("repeated mutate must be a no-op")
	}
	snap := w.Snapshot()
	view, _ := snap.Actor(a)
	if view.Biomass != 2 || len(view.Mutations) != 1 || view.Traits[TraitDefense] != 3 {
		t.Errorf("after repeat: %+v", view)
	}
	if snap.GlobalMutations["shell"] != 1 || snap.GlobalBiomass != 2 {
		t.Errorf("aggregates: mutations %v biomass %d", snap.GlobalMutations, snap.GlobalBiomass)
	}
}

func TestWorld_MutateHealsUpToMax(t *testing.T) {
	ctx := context.Background()
	w := newTestWorld(t, domain.VariantGrid, 0)
	a := joinActor(t, w, domain.JoinCommand{})

	withActor(w, a, func(a *Actor) { a.Health = 5 })
	res := w.Apply(ctx, domain.MutateCommand{ActorID: a, MutationID: "metabolism"})
	if res.Player.Health != 6 {
		t.Errorf("health = %d, want 6", res.Player.Health)
	}

	withActor(w, a, func(a *Actor) { a.Health = a.MaxHealth })
	res = w.Apply(ctx, domain.MutateCommand{ActorID: a, MutationID: "mobility"})
	if res.Player.Health != res.Player.MaxHealth {
		t.Errorf("health = %d exceeds max %d", res.Player.Health, res.Player.MaxHealth)
	}
}

func TestWorld_IgnoresUnknownActorsAndMutations(t *testing.T) {
	ctx := context.Background()
	w := newTestWorld(t, domain.VariantGrid, 0)
	a := joinActor(t, w, domain.JoinCommand{})
	before := w.Snapshot()

	cmds := []domain.Command{
		domain.MutateCommand{ActorID: a, MutationID: "wings"},
		domain.MutateCommand{ActorID: "ghost", MutationID: "shell"},
		domain.MoveCommand{ActorID: "ghost", Direction: domain.DirectionUp},
		domain.AttackCommand{ActorID: "ghost"},
		domain.LeaveCommand{ActorID: "ghost"},
	}
	for _, cmd := range cmds {
		if res := w.Apply(ctx, cmd); res.Changed {
			t.Errorf("%s %+v should be ignored", cmd.Name(), cmd)
		}
	}
	if after := w.Snapshot(); after.Seq != before.Seq {
		t.Errorf("seq advanced from %d to %d on ignored commands", before.Seq, after.Seq)
	}
}

func TestWorld_AttackRespawnsKilledTarget(t *testing.T) {
	ctx := context.Background()
	w := newTestWorld(t, domain.VariantGrid, 0)
	a := joinActor(t, w, domain.JoinCommand{})
	b := joinActor(t, w, domain.JoinCommand{Bot: true})
	place(w, a, 3, 3)
	place(w, b, 4, 4)
	withActor(w, b, func(b *Actor) { b.Health = 1 })

	res := w.Apply(ctx, domain.AttackCommand{ActorID: a})
	if !res.Changed {
		t.Fatal("attack with a neighbour should change the world")
	}
	view, _ := res.Snapshot.Actor(b)
	if view.Health != view.MaxHealth {
		t.Errorf("respawned health = %d, want %d", view.Health, view.MaxHealth)
	}
	if p := view.Position; p == nil || p.X < 0 || p.X >= 20 || p.Y < 0 || p.Y >= 20 {
		t.Errorf("respawn position = %v", view.Position)
	}
	if res.Snapshot.GlobalBiomass != 1 {
		t.Errorf("global biomass = %d, want 1", res.Snapshot.GlobalBiomass)
	}
}

func TestWorld_AttackDamagesNeighboursOnly(t *testing.T) {
	ctx := context.Background()
	w := newTestWorld(t, domain.VariantGrid, 0)
	a := joinActor(t, w, domain.JoinCommand{})
	near := joinActor(t, w, domain.JoinCommand{})
	far := joinActor(t, w, domain.JoinCommand{})
	place(w, a, 3, 3)
	place(w, near, 3, 3)
	place(w, far, 5, 3)

	res := w.Apply(ctx, domain.AttackCommand{ActorID: a})
	if v, _ := res.Snapshot.Actor(near); v.Health != 8 {
		t.Errorf("neighbour health = %d, want 8", v.Health)
	}
	if v, _ := res.Snapshot.Actor(far); v.Health != 10 {
		t.Errorf("distant actor health = %d, want 10", v.Health)
	}
	if v, _ := res.Snapshot.Actor(a); v.Health != 10 {
		t.Errorf("attacker damaged itself: %d", v.Health)
	}
	if res.Snapshot.GlobalBiomass != 3 {
		t.Errorf("global biomass = %d, want 3", res.Snapshot.GlobalBiomass)
	}

	place(w, near, 10, 10)
	if res := w.Apply(ctx, domain.AttackCommand{ActorID: a}); res.Changed {
		t.Error("attack without neighbours should be a no-op")
	}
}

func TestWorld_GlobalBiomassFloorsAtZero(t *testing.T) {
	ctx := context.Background()
	w := newTestWorld(t, domain.VariantGrid, 0)
	a := joinActor(t, w, domain.JoinCommand{})
	b := joinActor(t, w, domain.JoinCommand{Bot: true})
	place(w, a, 0, 0)
	for range 20 {
		place(w, b, 1, 0)
		withActor(w, b, func(b *Actor) { b.Health = 1 })
		res := w.Apply(ctx, domain.AttackCommand{ActorID: a})
		if res.Snapshot.GlobalBiomass < 0 {
			t.Fatalf("global biomass went negative: %d", res.Snapshot.GlobalBiomass)
		}
	}
	if got := w.Snapshot().GlobalBiomass; got != 0 {
		t.Errorf("global biomass = %d, want 0", got)
	}
}

func TestWorld_MoveStaysInBounds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		w := newTestWorld(t, domain.VariantGrid, 0)
		a := joinActor(t, w, domain.JoinCommand{})
		place(w, a,
			rapid.IntRange(0, 19).Draw(t, "x"),
			rapid.IntRange(0, 19).Draw(t, "y"))

		tokens := rapid.SliceOf(rapid.SampledFrom([]string{"up", "down", "left", "right", "north", ""})).Draw(t, "moves")
		for _, tok := range tokens {
			w.Apply(context.Background(), domain.MoveCommand{ActorID: a, Direction: domain.ParseDirection(tok)})
			v, _ := w.Snapshot().Actor(a)
			if v.Position.X < 0 || v.Position.X >= 20 || v.Position.Y < 0 || v.Position.Y >= 20 {
				t.Fatalf("position %v out of bounds after %q", v.Position, tok)
			}
		}
	})
}

func TestWorld_MoveIntoWallIsNoop(t *testing.T) {
	w := newTestWorld(t, domain.VariantGrid, 0)
	a := joinActor(t, w, domain.JoinCommand{})
	place(w, a, 0, 0)

	if res := w.Apply(context.Background(), domain.MoveCommand{ActorID: a, Direction: domain.DirectionUp}); res.Changed {
		t.Error("moving into the top wall should be a no-op")
	}
	if res := w.Apply(context.Background(), domain.MoveCommand{ActorID: a, Direction: domain.DirectionNone}); res.Changed {
		t.Error("unknown direction should be a no-op")
	}
	res := w.Apply(context.Background(), domain.MoveCommand{ActorID: a, Direction: domain.DirectionDown})
	if !res.Changed || *res.Player.Position != (domain.Position{X: 0, Y: 1}) {
		t.Errorf("move down = %+v", res.Player.Position)
	}
}

func TestWorld_LeaveRemovesOnlyThatPlayer(t *testing.T) {
	ctx := context.Background()
	w := newTestWorld(t, domain.VariantGrid, 3)
	a := joinActor(t, w, domain.JoinCommand{})
	b := joinActor(t, w, domain.JoinCommand{})

	before := w.Snapshot()
	if before.Players != 2 || before.Bots != 3 {
		t.Fatalf("players %d bots %d", before.Players, before.Bots)
	}

	res := w.Apply(ctx, domain.LeaveCommand{ActorID: a})
	if !res.Changed {
		t.Fatal("leave was ignored")
	}
	if res.Snapshot.Players != before.Players-1 || res.Snapshot.Bots != before.Bots {
		t.Errorf("after leave: players %d bots %d", res.Snapshot.Players, res.Snapshot.Bots)
	}
	if _, ok := res.Snapshot.Actor(a); ok {
		t.Error("departed actor still present")
	}
	if _, ok := res.Snapshot.Actor(b); !ok {
		t.Error("remaining actor missing")
	}
	if res := w.Apply(ctx, domain.LeaveCommand{ActorID: a}); res.Changed {
		t.Error("second leave should be a no-op")
	}

	for _, v := range res.Snapshot.Actors {
		if v.Bot {
			if r := w.Apply(ctx, domain.LeaveCommand{ActorID: v.ID}); r.Changed {
				t.Errorf("bot %s was removed", v.ID)
			}
		}
	}
}

func TestWorld_BotsSpawnOnce(t *testing.T) {
	ctx := context.Background()
	w := newTestWorld(t, domain.VariantGrid, 3)

	first := w.Apply(ctx, domain.JoinCommand{})
	if !first.BotsSpawned || first.Snapshot.Bots != 3 {
		t.Fatalf("first join: spawned %v bots %d", first.BotsSpawned, first.Snapshot.Bots)
	}
	for _, v := range first.Snapshot.Actors {
		if v.Bot && !slices.Contains(botNames, v.Name) {
			t.Errorf("bot name %q not from pool", v.Name)
		}
	}

	w.Apply(ctx, domain.LeaveCommand{ActorID: first.ActorID})
	second := w.Apply(ctx, domain.JoinCommand{})
	if second.BotsSpawned || second.Snapshot.Bots != 3 {
		t.Fatalf("second join: spawned %v bots %d", second.BotsSpawned, second.Snapshot.Bots)
	}
}

func TestWorld_Colony(t *testing.T) {
	ctx := context.Background()
	w := newTestWorld(t, domain.VariantColony, 3)
	res := w.Apply(ctx, domain.JoinCommand{})
	if res.BotsSpawned || res.Snapshot.Bots != 0 {
		t.Fatalf("colony should not spawn bots")
	}
	p := res.Player
	if p.Position != nil || p.Biomass != 0 || p.Name != "Colony "+p.ID[:4] {
		t.Fatalf("colony actor = %+v", p)
	}

	if r := w.Apply(ctx, domain.MoveCommand{ActorID: p.ID, Direction: domain.DirectionUp}); r.Changed {
		t.Error("move should be a no-op in a colony")
	}
	if r := w.Apply(ctx, domain.AttackCommand{ActorID: p.ID}); r.Changed {
		t.Error("attack should be a no-op in a colony")
	}

	r := w.Apply(ctx, domain.MutateCommand{ActorID: p.ID, MutationID: "flagella"})
	if r.Player.Traits[TraitSpeed] != 4 || r.Player.Traits[TraitGrowth] != 6 {
		t.Errorf("flagella traits = %v", r.Player.Traits)
	}

	tick := w.Tick(ctx)
	if !tick.Changed || tick.Snapshot.Tick != 1 || tick.Snapshot.GlobalTraits != EnvironmentAt(1) {
		t.Errorf("tick = %+v", tick.Snapshot)
	}
	if tick.Player != nil {
		t.Error("tick result should not name a player")
	}
	if r := w.BotStep(ctx); r.Changed {
		t.Error("colony has no bots to step")
	}
}

func TestWorld_SeqAdvancesPerCommit(t *testing.T) {
	ctx := context.Background()
	w := newTestWorld(t, domain.VariantColony, 0)
	a := joinActor(t, w, domain.JoinCommand{})
	s1 := w.Snapshot().Seq
	r := w.Apply(ctx, domain.MutateCommand{ActorID: a, MutationID: "spores"})
	if r.Snapshot.Seq != s1+1 {
		t.Errorf("seq = %d, want %d", r.Snapshot.Seq, s1+1)
	}
	if tick := w.Tick(ctx); tick.Snapshot.Seq != s1+2 {
		t.Errorf("tick seq = %d, want %d", tick.Snapshot.Seq, s1+2)
	}
}

func TestWorld_InvariantsUnderRandomCommands(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		w := newTestWorld(t, domain.VariantGrid, 2)
		ids := w.proc.catalog.IDs()
		var humans []string

		steps := rapid.IntRange(1, 60).Draw(t, "steps")
		for range steps {
			actor := ""
			if len(humans) > 0 {
				actor = rapid.SampledFrom(humans).Draw(t, "actor")
			}
			switch rapid.IntRange(0, 6).Draw(t, "op") {
			case 0:
				humans = append(humans, joinActor(t, w, domain.JoinCommand{}))
			case 1:
				if actor != "" {
					w.Apply(ctx, domain.LeaveCommand{ActorID: actor})
					humans = slices.DeleteFunc(humans, func(id string) bool { return id == actor })
				}
			case 2:
				id := rapid.SampledFrom(slices.Concat(ids, []string{"unknown"})).Draw(t, "mutation")
				w.Apply(ctx, domain.MutateCommand{ActorID: actor, MutationID: id})
			case 3:
				dir := rapid.SampledFrom(domain.Directions[:]).Draw(t, "dir")
				w.Apply(ctx, domain.MoveCommand{ActorID: actor, Direction: dir})
			case 4:
				w.Apply(ctx, domain.AttackCommand{ActorID: actor})
			case 5:
				w.Tick(ctx)
			case 6:
				w.BotStep(ctx)
			}
			checkInvariants(t, w.Snapshot(), len(humans))
		}
	})
}

func checkInvariants(t *rapid.T, snap domain.WorldSnapshot, humans int) {
	if snap.GlobalBiomass < 0 {
		t.Fatalf("global biomass %d", snap.GlobalBiomass)
	}
	if snap.Players != humans {
		t.Fatalf("players = %d, want %d", snap.Players, humans)
	}
	seen := make(map[string]bool)
	for _, a := range snap.Actors {
		if seen[a.ID] {
			t.Fatalf("duplicate actor %s", a.ID)
		}
		seen[a.ID] = true
		if a.Health < 0 || a.Health > a.MaxHealth || a.Biomass < 0 || a.Energy < 0 || a.Population < 1 {
			t.Fatalf("actor %s out of range: %+v", a.ID, a)
		}
		if a.Position.X < 0 || a.Position.X >= snap.Width || a.Position.Y < 0 || a.Position.Y >= snap.Height {
			t.Fatalf("actor %s out of bounds: %v", a.ID, a.Position)
		}
		muts := make(map[string]bool)
		for _, m := range a.Mutations {
			if muts[m] {
				t.Fatalf("actor %s has %s twice", a.ID, m)
			}
			muts[m] = true
		}
	}
}

// tick と mutate を同時に発行しても、結果はどちらかの直列順序と一致する。
func TestWorld_TickAndMutateAreSerialized(t *testing.T) {
	ctx := context.Background()
	mutate := domain.MutateCommand{ActorID: "c", MutationID: "flagella"}

	serial := func(tickFirst bool) domain.ActorView {
		w := newTestWorld(t, domain.VariantColony, 0)
		joinActor(t, w, domain.JoinCommand{RequestedID: "c"})
		if tickFirst {
			w.Tick(ctx)
			w.Apply(ctx, mutate)
		} else {
			w.Apply(ctx, mutate)
			w.Tick(ctx)
		}
		v, _ := w.Snapshot().Actor("c")
		return v
	}
	orders := []domain.ActorView{serial(true), serial(false)}

	same := func(a, b domain.ActorView) bool {
		return a.Energy == b.Energy && a.Population == b.Population &&
			maps.Equal(a.Traits, b.Traits) && slices.Equal(a.Mutations, b.Mutations)
	}

	for i := range 100 {
		w := newTestWorld(t, domain.VariantColony, 0)
		joinActor(t, w, domain.JoinCommand{RequestedID: "c"})

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			w.Tick(ctx)
		}()
		go func() {
			defer wg.Done()
			w.Apply(ctx, mutate)
		}()
		wg.Wait()

		got, _ := w.Snapshot().Actor("c")
		if !same(got, orders[0]) && !same(got, orders[1]) {
			t.Fatalf("iteration %d: %+v matches no serial order", i, got)
		}
	}
}
