package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DSMD-D/primor/server"
	"github.com/DSMD-D/primor/server/application"
	"github.com/DSMD-D/primor/server/domain"
	"github.com/DSMD-D/primor/server/evolution"
	"github.com/DSMD-D/primor/server/telemetry"
	"github.com/DSMD-D/primor/utils"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.ErrorContext(ctx, "server exited", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	_, shutdownTelemetry, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName: utils.GetEnvDefault("SERVICE_NAME", "primor"),
		Endpoint:    utils.GetEnvDefault("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		Level:       telemetry.ParseLevel(utils.GetEnvDefault("LOG_LEVEL", "info")),
		Output:      os.Stdout,
	})
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			slog.Error("telemetry shutdown failed", "err", err)
		}
	}()

	addr := utils.GetEnvDefault("ADDR", "localhost")
	port := utils.GetEnvDefault("PORT", "5000")

	variantName := utils.GetEnvDefault("WORLD_VARIANT", "grid")
	variant, ok := domain.ParseVariant(variantName)
	if !ok {
		return fmt.Errorf("unknown WORLD_VARIANT %q", variantName)
	}

	catalog, err := loadCatalog(variant, utils.GetEnvDefault("EVOLUTION_FILE", ""))
	if err != nil {
		return err
	}

	worldCfg := application.DefaultConfig()
	worldCfg.Variant = variant
	worldCfg.Width = utils.GetEnvInt("GRID_WIDTH", worldCfg.Width)
	worldCfg.Height = utils.GetEnvInt("GRID_HEIGHT", worldCfg.Height)
	worldCfg.MaxHealth = utils.GetEnvInt("MAX_HEALTH", worldCfg.MaxHealth)
	worldCfg.BotCount = utils.GetEnvInt("BOT_COUNT", worldCfg.BotCount)
	world, err := application.NewWorld(worldCfg, catalog)
	if err != nil {
		return err
	}

	engineCfg := application.DefaultEngineConfig()
	engineCfg.TickInterval = utils.GetEnvDuration("TICK_INTERVAL", engineCfg.TickInterval)
	engineCfg.BotInterval = utils.GetEnvDuration("BOT_INTERVAL", engineCfg.BotInterval)
	engine, err := application.NewEngine(world, domain.NewHub(), catalog, engineCfg)
	if err != nil {
		return err
	}

	endpointCfg := domain.DefaultEndpointConfig()
	endpointCfg.IdleTimeout = utils.GetEnvDuration("IDLE_TIMEOUT", endpointCfg.IdleTimeout)
	endpointCfg.PingInterval = utils.GetEnvDuration("PING_INTERVAL", endpointCfg.PingInterval)

	handler, err := server.Route(engine, endpointCfg)
	if err != nil {
		return err
	}
	s := server.NewServer(fmt.Sprintf("%s:%s", addr, port), handler)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return engine.Run(egCtx)
	})
	eg.Go(func() error {
		return s.Run(egCtx)
	})
	slog.InfoContext(ctx, "server listening", "addr", s.Addr(), "variant", variant, "catalog", catalog.Len())

	err = eg.Wait()
	slog.InfoContext(ctx, "server shutdown complete")
	return err
}

func loadCatalog(variant domain.Variant, path string) (*evolution.Catalog, error) {
	shape := application.CatalogShapeFor(variant)
	if path == "" {
		return evolution.Default(shape)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open evolution file: %w", err)
	}
	defer f.Close()
	return evolution.Load(f, shape)
}
