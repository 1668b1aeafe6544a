package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

var (
	// ErrBackpressure は書き込みチャネルが満杯の場合に返されるエラーです。
	ErrBackpressure = errors.New("write channel is full, apply backpressure")
	// ErrInitializationFailed はセッションエンドポイントの初期化に失敗した場合に返されるエラーです。
	ErrInitializationFailed = errors.New("failed to initialize session endpoint")
	// ErrSessionClosed は閉じたセッションへの送信時に返されるエラーです。
	ErrSessionClosed = errors.New("session is closed")
	// ErrIdleTimeout はセッションがアイドルタイムアウトした場合に返されるエラーです。
	ErrIdleTimeout = errors.New("session idle timeout")
	// ErrWriteFailed は接続への書き込みに失敗した場合に返されるエラーです。
	ErrWriteFailed = errors.New("session write failed")
)

// MessageHandler は受信した1フレームを処理します。
type MessageHandler func(ctx context.Context, data []byte)

// EndpointConfig はセッションエンドポイントの動作を調整します。
type EndpointConfig struct {
	WriteQueueSize int
	IdleTimeout    time.Duration
	IdleCheck      time.Duration
	PingInterval   time.Duration
}

// DefaultEndpointConfig は既定の設定を返します。
func DefaultEndpointConfig() EndpointConfig {
	return EndpointConfig{
		WriteQueueSize: 64,
		IdleTimeout:    60 * time.Second,
		IdleCheck:      time.Second,
		PingInterval:   15 * time.Second,
	}
}

// SessionEndpoint は1接続分の読み込み・書き込み・監視ループを束ねます。
// 接続を閉じるのは ownerLoop の役目で、クローズハンドシェイクの間も readLoop は読み込みを続けます。
type SessionEndpoint struct {
	ctx    context.Context
	cancel context.CancelFunc

	session    *Session
	connection *Connection
	cfg        EndpointConfig

	closeCh chan CloseStatus // 終了要求
	writeCh chan []byte      // 書き込み用チャネル

	// lifecycle
	running atomic.Bool
	closed  atomic.Bool
}

func NewSessionEndpoint(ctx context.Context, session *Session, connection *Connection, cfg EndpointConfig) (*SessionEndpoint, error) {
	if session == nil || connection == nil {
		return nil, ErrInitializationFailed
	}
	if connection.SessionID() != session.ID() {
		return nil, fmt.Errorf("%w: connection belongs to session %s", ErrInitializationFailed, connection.SessionID())
	}
	def := DefaultEndpointConfig()
	if cfg.WriteQueueSize <= 0 {
		cfg.WriteQueueSize = def.WriteQueueSize
	}
	if cfg.IdleCheck <= 0 {
		cfg.IdleCheck = def.IdleCheck
	}
	ctx, cancel := context.WithCancel(ctx)
	se := &SessionEndpoint{
		ctx:        ctx,
		cancel:     cancel,
		session:    session,
		connection: connection,
		cfg:        cfg,
		closeCh:    make(chan CloseStatus, 1),
		writeCh:    make(chan []byte, cfg.WriteQueueSize),
	}
	return se, nil
}

// ID はセッションIDを返します。
func (se *SessionEndpoint) ID() SessionID { return se.session.ID() }

// Run は接続が終わるまでブロックします。受信フレームは handle に渡されます。
func (se *SessionEndpoint) Run(handle MessageHandler) (err error) {
	se.running.Store(true)
	defer func() {
		cause := err
		if cause == nil {
			cause = se.ctx.Err()
		}
		se.close(closeStatusFor(cause))
	}()

	eg, ctx := errgroup.WithContext(se.ctx)
	eg.Go(func() error {
		return se.ownerLoop(ctx)
	})
	eg.Go(func() error {
		// 読み込みは errgroup のキャンセルでは止めない。止まるのは接続が閉じたときだけ
		return se.readLoop(se.ctx, handle)
	})
	eg.Go(func() error {
		return se.writeLoop(ctx)
	})
	if se.cfg.PingInterval > 0 {
		hb := NewHeartbeatService(se.cfg.PingInterval, se.session, se.connection)
		eg.Go(func() error {
			hb.Run(ctx)
			return nil
		})
	}
	return eg.Wait()
}

// Send はフレームを書き込みキューに積みます。ブロックしません。
func (se *SessionEndpoint) Send(data []byte) error {
	if se.closed.Load() {
		return ErrSessionClosed
	}
	select {
	case se.writeCh <- data:
		return nil
	default:
		return ErrBackpressure
	}
}

// Close は status を添えてセッションの終了を要求します。ブロックしません。
// Run の実行前に呼ばれた場合はその場で接続を閉じます。
func (se *SessionEndpoint) Close(status CloseStatus) {
	if se.closed.Load() {
		return
	}
	if !se.running.Load() {
		se.close(status)
		return
	}
	select {
	case se.closeCh <- status:
	default:
	}
}

// ownerLoop は論理セッションの状態を監視し、終了時には自分で接続を閉じてから戻ります。
func (se *SessionEndpoint) ownerLoop(ctx context.Context) error {
	ticker := time.NewTicker(se.cfg.IdleCheck)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case status := <-se.closeCh:
			se.close(status)
			return ErrSessionClosed
		case <-ticker.C:
			if ok, reason := se.session.IsIdle(se.cfg.IdleTimeout); ok {
				slog.InfoContext(ctx, "session idle, closing", "sessionID", se.session.ID(), "reason", reason)
				se.close(CloseIdle)
				return fmt.Errorf("%w: %s", ErrIdleTimeout, reason)
			}
		}
	}
}

func (se *SessionEndpoint) readLoop(ctx context.Context, handle MessageHandler) error {
	for {
		data, err := se.connection.Read(ctx)
		if err != nil {
			if se.closed.Load() || ctx.Err() != nil {
				return nil
			}
			se.close(CloseLeave)
			return err
		}
		se.session.TouchRead()
		if handle != nil {
			handle(ctx, data)
		}
	}
}

func (se *SessionEndpoint) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case data := <-se.writeCh:
			if err := se.connection.Write(ctx, data); err != nil {
				if ctx.Err() != nil || se.closed.Load() {
					return nil
				}
				slog.DebugContext(ctx, "session write error", "sessionID", se.session.ID(), "err", err)
				se.close(CloseWriteError)
				return fmt.Errorf("%w: %v", ErrWriteFailed, err)
			}
			se.session.TouchWrite()
		}
	}
}

// close はクローズハンドシェイクを行い、その後でループの context を止めます。
func (se *SessionEndpoint) close(status CloseStatus) {
	if !se.closed.CompareAndSwap(false, true) {
		return
	}
	se.session.Close()
	if err := se.connection.CloseWith(status); err != nil {
		slog.Debug("close connection", "sessionID", se.connection.SessionID(), "code", status.Code, "err", err)
	}
	se.cancel()
}
