package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Config はログとトレースの出力先です。Endpoint が空ならOTLPへは送りません。
type Config struct {
	ServiceName string
	Endpoint    string
	Level       slog.Level
	Output      io.Writer
}

// ShutdownFunc はバッファ済みのテレメトリを送り出してから停止します。
type ShutdownFunc func(ctx context.Context) error

// ParseLevel は LOG_LEVEL の値を解釈します。不明な値は info です。
func ParseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Setup はロガーとトレーサーを構成し、グローバルに設定します。
func Setup(ctx context.Context, cfg Config) (*slog.Logger, ShutdownFunc, error) {
	text := slog.NewTextHandler(cfg.Output, &slog.HandlerOptions{Level: cfg.Level})
	if cfg.Endpoint == "" {
		logger := slog.New(text)
		slog.SetDefault(logger)
		return logger, func(context.Context) error { return nil }, nil
	}

	res := resource.NewSchemaless(attribute.String("service.name", cfg.ServiceName))

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithEndpointURL(cfg.Endpoint))
	if err != nil {
		return nil, nil, fmt.Errorf("telemetry: trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)

	logExporter, err := otlploggrpc.New(ctx, otlploggrpc.WithEndpointURL(cfg.Endpoint))
	if err != nil {
		return nil, nil, errors.Join(fmt.Errorf("telemetry: log exporter: %w", err), tp.Shutdown(ctx))
	}
	lp := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)),
		sdklog.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	logger := slog.New(NewFanoutHandler(cfg.Level,
		text,
		otelslog.NewHandler(cfg.ServiceName, otelslog.WithLoggerProvider(lp)),
	))
	slog.SetDefault(logger)

	shutdown := func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), lp.Shutdown(ctx))
	}
	return logger, shutdown, nil
}
