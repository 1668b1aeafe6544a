package domain

import (
	"context"
	"errors"
)

// CloseStatus は接続を閉じる際にクライアントへ伝える理由です。
type CloseStatus struct {
	Code   int32
	Reason string
}

var (
	CloseLeave      = CloseStatus{Code: 1000, Reason: "leave"}
	CloseShutdown   = CloseStatus{Code: 1001, Reason: "server shutting down"}
	CloseIdle       = CloseStatus{Code: 4000, Reason: "idle timeout"}
	CloseWriteError = CloseStatus{Code: 1011, Reason: "write failed"}
	CloseOverflow   = CloseStatus{Code: 1008, Reason: "send queue full"}
)

// closeStatusFor はエンドポイントの終了原因を CloseStatus に変換します。
func closeStatusFor(err error) CloseStatus {
	switch {
	case errors.Is(err, ErrIdleTimeout):
		return CloseIdle
	case errors.Is(err, ErrWriteFailed):
		return CloseWriteError
	case errors.Is(err, context.Canceled):
		return CloseShutdown
	default:
		return CloseLeave
	}
}

// Connection はセッションに紐づく1本の物理接続です。
type Connection struct {
	sessionID SessionID
	transport Transport
}

func NewConnection(sessionID SessionID, transport Transport) *Connection {
	return &Connection{sessionID: sessionID, transport: transport}
}

func (c *Connection) SessionID() SessionID { return c.sessionID }

func (c *Connection) Read(ctx context.Context) ([]byte, error) {
	return c.transport.Read(ctx)
}

func (c *Connection) Write(ctx context.Context, frame []byte) error {
	return c.transport.Write(ctx, frame)
}

func (c *Connection) Ping(ctx context.Context) error {
	return c.transport.Ping(ctx)
}

// CloseWith は status を添えて接続を閉じます。
func (c *Connection) CloseWith(status CloseStatus) error {
	return c.transport.Close(status.Code, status.Reason)
}
