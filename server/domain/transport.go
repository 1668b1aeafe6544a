package domain

import "context"

//go:generate go tool mockgen -destination=./mocks/transport_mock.go -package=mocks . Transport

// Transport はフレーム単位で読み書きできる双方向ストリームです。
// Close の code は WebSocket のクローズコードとして扱われます。
type Transport interface {
	Read(ctx context.Context) (frame []byte, err error)
	Write(ctx context.Context, frame []byte) error
	Ping(ctx context.Context) error
	Close(code int32, reason string) error
}
