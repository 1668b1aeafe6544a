package domain

import (
	"context"
	"log/slog"
	"time"
)

// Pinger は死活確認の ping を送れる接続です。
type Pinger interface {
	Ping(ctx context.Context) error
}

// HeartbeatService は定期的に ping を送信する死活監視サービスです。
type HeartbeatService struct {
	pingInterval time.Duration
	session      *Session
	pinger       Pinger
}

// NewHeartbeatService は新しいHeartbeatServiceを生成します。
func NewHeartbeatService(pingInterval time.Duration, session *Session, pinger Pinger) *HeartbeatService {
	return &HeartbeatService{
		pingInterval: pingInterval,
		session:      session,
		pinger:       pinger,
	}
}

// Run はpingInterval間隔でpingを送信し、応答があれば pong 時刻を更新します。
// ctxがキャンセルされると終了します。
func (h *HeartbeatService) Run(ctx context.Context) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, h.pingInterval)
			err := h.pinger.Ping(pingCtx)
			cancel()
			if err != nil {
				if ctx.Err() == nil {
					slog.DebugContext(ctx, "heartbeat: ping failed", "sessionID", h.session.ID(), "err", err)
				}
				continue
			}
			h.session.TouchPong()
		}
	}
}
