package telemetry

import (
	"context"
	"errors"
	"log/slog"
)

// FanoutHandler は1つのレコードを複数のハンドラへ渡します。
type FanoutHandler struct {
	level    slog.Leveler
	handlers []slog.Handler
}

func NewFanoutHandler(level slog.Leveler, handlers ...slog.Handler) *FanoutHandler {
	return &FanoutHandler{level: level, handlers: handlers}
}

func (h *FanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if level < h.level.Level() {
		return false
	}
	for _, child := range h.handlers {
		if child.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *FanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, child := range h.handlers {
		if child.Enabled(ctx, r.Level) {
			errs = append(errs, child.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (h *FanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	children := make([]slog.Handler, len(h.handlers))
	for i, child := range h.handlers {
		children[i] = child.WithAttrs(attrs)
	}
	return &FanoutHandler{level: h.level, handlers: children}
}

func (h *FanoutHandler) WithGroup(name string) slog.Handler {
	children := make([]slog.Handler, len(h.handlers))
	for i, child := range h.handlers {
		children[i] = child.WithGroup(name)
	}
	return &FanoutHandler{level: h.level, handlers: children}
}
