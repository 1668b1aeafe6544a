package adapterwebsocket

import (
	"context"

	"github.com/DSMD-D/primor/server/domain"
	"github.com/coder/websocket"
)

// MaxFrameSize は受信フレームの上限です。コマンドは小さな JSON なので十分な大きさです。
const MaxFrameSize = 4 << 10

// frameTransport は coder/websocket の接続を domain.Transport として扱います。
// 送信は常にテキストフレームで、受信はテキストとバイナリのどちらも受け付けます。
type frameTransport struct {
	conn *websocket.Conn
}

func NewTransportFrom(conn *websocket.Conn) domain.Transport {
	conn.SetReadLimit(MaxFrameSize)
	return &frameTransport{conn: conn}
}

func (t *frameTransport) Read(ctx context.Context) ([]byte, error) {
	_, frame, err := t.conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	return frame, nil
}

func (t *frameTransport) Write(ctx context.Context, frame []byte) error {
	return t.conn.Write(ctx, websocket.MessageText, frame)
}

// Ping は pong を受け取るまでブロックします。pong の受信には Read が並行して動いている必要があります。
func (t *frameTransport) Ping(ctx context.Context) error {
	return t.conn.Ping(ctx)
}

func (t *frameTransport) Close(code int32, reason string) error {
	return t.conn.Close(websocket.StatusCode(code), reason)
}
