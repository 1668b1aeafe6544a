package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/DSMD-D/primor/server/domain"
	"github.com/DSMD-D/primor/server/evolution"
	"golang.org/x/sync/errgroup"
)

// EngineConfig は周期タスクの間隔です。
type EngineConfig struct {
	TickInterval time.Duration
	BotInterval  time.Duration
}

// DefaultEngineConfig は既定の設定を返します。
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		TickInterval: 1500 * time.Millisecond,
		BotInterval:  1500 * time.Millisecond,
	}
}

// Engine はワールド、配信ハブ、周期タスクを束ねます。
// 変更は必ずワールドロック内でコミットされ、配信はロックの外で行われます。
type Engine struct {
	world   *World
	hub     *domain.Hub
	catalog *evolution.Catalog

	simClock *Clock
	botClock *Clock

	botStart chan struct{}
	botOnce  sync.Once
}

func NewEngine(world *World, hub *domain.Hub, catalog *evolution.Catalog, cfg EngineConfig) (*Engine, error) {
	if world == nil || hub == nil || catalog == nil {
		return nil, ErrInvalidConfig
	}
	e := &Engine{
		world:    world,
		hub:      hub,
		catalog:  catalog,
		botStart: make(chan struct{}),
	}

	var err error
	e.simClock, err = NewClock("simulation", cfg.TickInterval, func(ctx context.Context) {
		e.publish(ctx, e.world.Tick(ctx))
	})
	if err != nil {
		return nil, err
	}
	if world.Variant() == domain.VariantGrid {
		e.botClock, err = NewClock("bots", cfg.BotInterval, func(ctx context.Context) {
			e.publish(ctx, e.world.BotStep(ctx))
		})
		if err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Run は ctx がキャンセルされるまで周期タスクを動かします。
// 戻る時点で全ての tick は完了しており、接続中のセッションは閉じられています。
func (e *Engine) Run(ctx context.Context) error {
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return e.simClock.Run(egCtx)
	})
	if e.botClock != nil {
		eg.Go(func() error {
			// ボットは最初の人間の参加まで動かない
			select {
			case <-egCtx.Done():
				return nil
			case <-e.botStart:
			}
			slog.InfoContext(egCtx, "bots started")
			return e.botClock.Run(egCtx)
		})
	}
	err := eg.Wait()
	e.hub.CloseAll(context.WithoutCancel(ctx), domain.CloseShutdown)
	return err
}

// Join はアクターを生成し、初期フレームを送ってセッションを登録します。
// 登録はワールドロック内で行われるため、参加後のコミットを取りこぼすことはありません。
func (e *Engine) Join(ctx context.Context, sub domain.Subscriber, requestedID string) (string, error) {
	var regErr error
	res := e.world.ApplyThen(ctx, domain.JoinCommand{RequestedID: requestedID}, func(res Result) {
		initial, err := domain.EncodeSessionInit(e.world.Variant(), res.ActorID, res.Player, res.Snapshot, e.catalog)
		if err != nil {
			regErr = err
			return
		}
		regErr = e.hub.Register(ctx, sub, res.Snapshot.Seq, initial)
	})
	if regErr != nil {
		slog.WarnContext(ctx, "session registration failed", "sessionID", sub.ID(), "actorID", res.ActorID, "err", regErr)
		e.publish(ctx, e.world.Apply(ctx, domain.LeaveCommand{ActorID: res.ActorID}))
		return "", regErr
	}
	if res.BotsSpawned {
		e.startBots()
	}
	slog.InfoContext(ctx, "actor joined", "sessionID", sub.ID(), "actorID", res.ActorID)
	e.publish(ctx, res)
	return res.ActorID, nil
}

// Submit はコマンドを適用し、変化があれば全セッションへ配信します。
func (e *Engine) Submit(ctx context.Context, cmd domain.Command) Result {
	res := e.world.Apply(ctx, cmd)
	if res.BotsSpawned {
		e.startBots()
	}
	e.publish(ctx, res)
	return res
}

// Leave はセッションを配信先から外し、紐づくアクターを取り除きます。
func (e *Engine) Leave(ctx context.Context, sessionID domain.SessionID, actorID string) {
	e.hub.Unregister(ctx, sessionID)
	res := e.world.Apply(ctx, domain.LeaveCommand{ActorID: actorID})
	if res.Changed {
		slog.InfoContext(ctx, "actor left", "sessionID", sessionID, "actorID", actorID)
	}
	e.publish(ctx, res)
}

// Snapshot は現在のワールドを返します。
func (e *Engine) Snapshot() domain.WorldSnapshot {
	return e.world.Snapshot()
}

// Catalog は変異カタログを返します。
func (e *Engine) Catalog() *evolution.Catalog {
	return e.catalog
}

// Variant はワールド種別を返します。
func (e *Engine) Variant() domain.Variant {
	return e.world.Variant()
}

func (e *Engine) startBots() {
	e.botOnce.Do(func() {
		close(e.botStart)
	})
}

func (e *Engine) publish(ctx context.Context, res Result) {
	if !res.Changed {
		return
	}
	data, err := domain.EncodeUpdate(e.world.Variant(), res.Player, res.Snapshot)
	if err != nil {
		slog.ErrorContext(ctx, "encode world update failed", "err", err)
		return
	}
	n, err := e.hub.Broadcast(ctx, res.Snapshot.Seq, data)
	if err != nil {
		if errors.Is(err, domain.ErrStaleSnapshot) {
			slog.DebugContext(ctx, "stale snapshot skipped", "seq", res.Snapshot.Seq)
			return
		}
		slog.WarnContext(ctx, "broadcast failed", "seq", res.Snapshot.Seq, "err", err)
		return
	}
	slog.DebugContext(ctx, "broadcast", "seq", res.Snapshot.Seq, "sessions", n)
}
