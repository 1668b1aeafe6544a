package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Server は HTTP と WebSocket を受け付けるリスナーです。
type Server struct {
	HTTP            *http.Server
	ShutdownTimeout time.Duration
}

func NewServer(addr string, handler http.Handler) *Server {
	return &Server{
		HTTP: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		ShutdownTimeout: 10 * time.Second,
	}
}

// Run は ctx が終わるまで待ち受け、その後グレースフルに停止します。
// 停止が ShutdownTimeout を超えた場合は接続を強制的に閉じます。
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.HTTP.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	slog.InfoContext(ctx, "shutdown initiated", "addr", s.Addr())
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.ShutdownTimeout)
	defer cancel()
	if err := s.HTTP.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(ctx, "graceful shutdown failed", "err", err)
		if err := s.HTTP.Close(); err != nil {
			slog.ErrorContext(ctx, "forced close failed", "err", err)
		}
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (s *Server) Addr() string { return s.HTTP.Addr }
