package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"

	adapterwebsocket "github.com/DSMD-D/primor/server/adapter/websocket"
	"github.com/DSMD-D/primor/server/application"
	"github.com/DSMD-D/primor/server/domain"

	"github.com/coder/websocket"
)

// SessionGateway は WebSocket 接続を受け付け、1接続を1アクターに結びつけます。
type SessionGateway struct {
	engine *application.Engine
	cfg    domain.EndpointConfig
}

func NewSessionGateway(engine *application.Engine, cfg domain.EndpointConfig) *SessionGateway {
	return &SessionGateway{engine: engine, cfg: cfg}
}

func (h *SessionGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // 開発用: Origin チェックをスキップ
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to accept", "err", err)
		return
	}

	session := domain.NewSession()
	transport := adapterwebsocket.NewTransportFrom(conn)
	connection := domain.NewConnection(session.ID(), transport)
	endpoint, err := domain.NewSessionEndpoint(ctx, session, connection, h.cfg)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create session endpoint", "err", err)
		conn.CloseNow()
		return
	}

	actorID, err := h.engine.Join(ctx, endpoint, r.URL.Query().Get("player"))
	if err != nil {
		slog.WarnContext(ctx, "failed to join", "sessionID", session.ID(), "err", err)
		endpoint.Close(domain.CloseWriteError)
		return
	}
	// 同じ id が再利用されうるため、退出は1接続につき1度だけ行う
	var left atomic.Bool
	leave := func(ctx context.Context) {
		if left.CompareAndSwap(false, true) {
			h.engine.Leave(ctx, session.ID(), actorID)
		}
	}
	defer leave(context.WithoutCancel(ctx))

	slog.DebugContext(ctx, "accepted new connection", "sessionID", session.ID(), "actorID", actorID)
	err = endpoint.Run(func(ctx context.Context, data []byte) {
		h.handleFrame(ctx, endpoint, actorID, data, leave)
	})
	logSessionEnd(ctx, session.ID(), err)
}

// handleFrame は1フレームをコマンドとして処理します。解釈できないフレームは捨てます。
func (h *SessionGateway) handleFrame(ctx context.Context, endpoint *domain.SessionEndpoint, actorID string, data []byte, leave func(context.Context)) {
	cmd, err := domain.DecodeCommand(actorID, data)
	if err != nil {
		slog.DebugContext(ctx, "command dropped", "sessionID", endpoint.ID(), "actorID", actorID, "err", err)
		return
	}
	if _, ok := cmd.(domain.LeaveCommand); ok {
		// 退出はクローズハンドシェイクを待たずに反映する
		leave(ctx)
		endpoint.Close(domain.CloseLeave)
		return
	}
	h.engine.Submit(ctx, cmd)
}

func logSessionEnd(ctx context.Context, id domain.SessionID, err error) {
	level, msg := sessionEndLevel(err)
	if err == nil {
		slog.Log(ctx, level, msg, "sessionID", id)
		return
	}
	slog.Log(ctx, level, msg, "sessionID", id, "err", err)
}

// sessionEndLevel は終了原因ごとのログレベルを決めます。クライアント側の切断は debug です。
func sessionEndLevel(err error) (slog.Level, string) {
	switch {
	case err == nil, errors.Is(err, domain.ErrSessionClosed):
		return slog.LevelDebug, "session closed"
	case errors.Is(err, domain.ErrIdleTimeout):
		return slog.LevelInfo, "session timed out"
	case websocket.CloseStatus(err) == websocket.StatusNormalClosure,
		websocket.CloseStatus(err) == websocket.StatusGoingAway,
		errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		return slog.LevelDebug, "client disconnected"
	default:
		return slog.LevelWarn, "session ended with error"
	}
}
