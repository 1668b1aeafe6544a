package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"

	"github.com/DSMD-D/primor/server/domain"
	"github.com/DSMD-D/primor/server/evolution"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var ErrInvalidConfig = errors.New("world: invalid config")

var tracer = otel.Tracer("github.com/DSMD-D/primor/server/application")

// Config はワールドの大きさと種別です。
type Config struct {
	Variant   domain.Variant
	Width     int
	Height    int
	MaxHealth int
	BotCount  int

	// Rand が nil の場合はランダムなシードで生成されます。
	Rand *rand.Rand
}

// DefaultConfig は既定の設定を返します。
func DefaultConfig() Config {
	return Config{
		Variant:   domain.VariantGrid,
		Width:     20,
		Height:    20,
		MaxHealth: 10,
		BotCount:  3,
	}
}

// Result はコミット1回分の結果です。Changed が false の場合は何も変わっておらず、配信も不要です。
type Result struct {
	Changed  bool
	Snapshot domain.WorldSnapshot
	// Player は変化を起こしたアクターです。tick やボットの場合は nil です。
	Player *domain.ActorView
	// ActorID は join で割り当てられた ID です。
	ActorID string
	// BotsSpawned はこのコミットでボットが生成されたことを示します。
	BotsSpawned bool
}

// World は共有状態と、それを守る唯一のロックを持ちます。
// 全ての変更は Apply / Tick / BotStep のいずれかを通ります。
type World struct {
	mu  sync.Mutex
	seq uint64
	st  *worldState

	cfg  Config
	proc *CommandProcessor
	sim  *Simulator
	bots *BotDriver
}

func NewWorld(cfg Config, catalog *evolution.Catalog) (*World, error) {
	if catalog == nil {
		return nil, ErrInvalidConfig
	}
	if cfg.Variant == domain.VariantGrid && (cfg.Width <= 0 || cfg.Height <= 0 || cfg.MaxHealth <= 0) {
		return nil, ErrInvalidConfig
	}
	if want := CatalogShapeFor(cfg.Variant); catalog.Shape() != want {
		return nil, fmt.Errorf("%w: %s world needs a %s catalog, got %s", ErrInvalidConfig, cfg.Variant, want, catalog.Shape())
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	proc := newCommandProcessor(cfg, catalog, rng)
	w := &World{
		st:   newWorldState(),
		cfg:  cfg,
		proc: proc,
		sim:  NewSimulator(cfg.Variant),
	}
	if cfg.Variant == domain.VariantGrid {
		w.bots = newBotDriver(proc, NewRandomWalkController(rng), cfg.BotCount)
	}
	return w, nil
}

// CatalogShapeFor はワールド種別に対応するカタログ形状です。グリッドは木、コロニーはフラットを使います。
func CatalogShapeFor(v domain.Variant) evolution.Shape {
	if v == domain.VariantColony {
		return evolution.ShapeFlat
	}
	return evolution.ShapeTree
}

// Variant はワールド種別を返します。
func (w *World) Variant() domain.Variant { return w.cfg.Variant }

// Apply はコマンドを1つのトランザクションとして適用します。
func (w *World) Apply(ctx context.Context, cmd domain.Command) Result {
	return w.ApplyThen(ctx, cmd, nil)
}

// ApplyThen は Apply と同じですが、変化があった場合に then をロック内で呼びます。
// then はブロックしてはいけません。
func (w *World) ApplyThen(ctx context.Context, cmd domain.Command, then func(Result)) Result {
	ctx, span := tracer.Start(ctx, "world.apply", trace.WithAttributes(attribute.String("command", cmd.Name())))
	defer span.End()

	w.mu.Lock()
	defer w.mu.Unlock()

	res := w.applyLocked(cmd)
	span.SetAttributes(attribute.Bool("changed", res.Changed))
	if !res.Changed {
		slog.DebugContext(ctx, "command ignored", "command", cmd.Name())
		return res
	}
	w.commitLocked(&res)
	if then != nil {
		then(res)
	}
	return res
}

func (w *World) applyLocked(cmd domain.Command) Result {
	var (
		actor *Actor
		res   Result
	)
	switch c := cmd.(type) {
	case domain.JoinCommand:
		actor = w.proc.join(w.st, c, "")
		res.ActorID = actor.ID
		if !c.Bot && w.bots != nil {
			res.BotsSpawned = w.bots.spawnRoster(w.st)
		}
		res.Changed = true
	case domain.LeaveCommand:
		actor, res.Changed = w.proc.leave(w.st, c.ActorID)
	case domain.MutateCommand:
		actor, res.Changed = w.proc.mutate(w.st, c)
	case domain.MoveCommand:
		if a, ok := w.st.store.Get(c.ActorID); ok && w.proc.move(a, c.Direction) {
			actor, res.Changed = a, true
		}
	case domain.AttackCommand:
		if a, ok := w.st.store.Get(c.ActorID); ok && w.proc.attack(w.st, a) {
			actor, res.Changed = a, true
		}
	}
	if res.Changed && actor != nil {
		v := actor.View()
		res.Player = &v
	}
	return res
}

// Tick はシミュレーションを1tick進めます。
func (w *World) Tick(ctx context.Context) Result {
	_, span := tracer.Start(ctx, "world.tick")
	defer span.End()

	w.mu.Lock()
	defer w.mu.Unlock()

	res := Result{Changed: w.sim.Step(w.st)}
	span.SetAttributes(attribute.Int64("tick", int64(w.st.tick)))
	if res.Changed {
		w.commitLocked(&res)
	}
	return res
}

// BotStep は全ボットを1回行動させます。
func (w *World) BotStep(ctx context.Context) Result {
	if w.bots == nil {
		return Result{}
	}
	_, span := tracer.Start(ctx, "world.bots")
	defer span.End()

	w.mu.Lock()
	defer w.mu.Unlock()

	res := Result{Changed: w.bots.step(w.st)}
	if res.Changed {
		w.commitLocked(&res)
	}
	return res
}

// Snapshot は現在の状態を返します。
func (w *World) Snapshot() domain.WorldSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.st.snapshot(w.seq, w.cfg.width(), w.cfg.height())
}

// commitLocked はコミット番号を進めてスナップショットを取ります。
func (w *World) commitLocked(res *Result) {
	w.seq++
	res.Snapshot = w.st.snapshot(w.seq, w.cfg.width(), w.cfg.height())
}

func (c Config) width() int {
	if c.Variant != domain.VariantGrid {
		return 0
	}
	return c.Width
}

func (c Config) height() int {
	if c.Variant != domain.VariantGrid {
		return 0
	}
	return c.Height
}
