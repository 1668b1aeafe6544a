package application

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

var ErrInvalidInterval = errors.New("clock: interval must be positive")

// Clock は一定間隔で step を呼ぶ周期タスクです。
// step は同期的に実行されるため、停止時に途中までの tick が残ることはありません。
type Clock struct {
	name     string
	interval time.Duration
	step     func(ctx context.Context)
}

func NewClock(name string, interval time.Duration, step func(ctx context.Context)) (*Clock, error) {
	if interval <= 0 {
		return nil, ErrInvalidInterval
	}
	return &Clock{
		name:     name,
		interval: interval,
		step:     step,
	}, nil
}

// Run は ctx がキャンセルされるまでブロックします。キャンセルは正常終了として nil を返します。
func (c *Clock) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	slog.DebugContext(ctx, "clock started", "clock", c.name, "interval", c.interval)
	for {
		select {
		case <-ctx.Done():
			slog.DebugContext(ctx, "clock stopped", "clock", c.name)
			return nil
		case <-ticker.C:
			c.step(ctx)
		}
	}
}
