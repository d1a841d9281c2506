package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rezkam/rihanna/internal/config"
	"github.com/rezkam/rihanna/internal/dispatch"
	"github.com/rezkam/rihanna/internal/env"
	"github.com/rezkam/rihanna/internal/retry"
	"github.com/rezkam/rihanna/internal/store/postgres"
	"github.com/rezkam/rihanna/pkg/observability"
)

const serviceName = "rihanna-worker"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadWorkerConfig()
	if err != nil {
		log.Fatalf("failed to load worker config: %v", err)
	}

	obsCfg := &config.ObservabilityConfig{}
	if err := env.Load(obsCfg); err != nil {
		log.Fatalf("failed to load observability config: %v", err)
	}

	tracerProvider, err := observability.InitTracerProvider(ctx, serviceName, obsCfg.OTelEnabled)
	if err != nil {
		log.Fatalf("failed to init tracer provider: %v", err)
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			slog.ErrorContext(ctx, "failed to shut down tracer provider", "error", err)
		}
	}()

	meterProvider, err := observability.InitMeterProvider(ctx, serviceName, obsCfg.OTelEnabled)
	if err != nil {
		log.Fatalf("failed to init meter provider: %v", err)
	}
	defer func() {
		if err := meterProvider.Shutdown(context.Background()); err != nil {
			slog.ErrorContext(ctx, "failed to shut down meter provider", "error", err)
		}
	}()

	loggerProvider, logger, err := observability.InitLogger(ctx, serviceName, obsCfg.OTelEnabled)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() {
		if err := loggerProvider.Shutdown(context.Background()); err != nil {
			slog.ErrorContext(ctx, "failed to shut down logger provider", "error", err)
		}
	}()
	slog.SetDefault(logger)

	store, err := postgres.NewStoreWithConfig(ctx, postgres.DBConfig{
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Database.ConnMaxLifetime) * time.Second,
		ConnMaxIdleTime: time.Duration(cfg.Database.ConnMaxIdleTime) * time.Second,
		LockClassID:     cfg.Lock.ClassID,
	})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer store.Close()

	registry := retry.NewModuleRegistry()
	registerModules(registry)

	d := dispatch.New(store, registry, nil, dispatch.Config{
		Concurrency:      cfg.Concurrency,
		BatchSize:        cfg.BatchSize,
		PollInterval:     cfg.PollInterval,
		OperationTimeout: cfg.OperationTimeout,
	})

	slog.InfoContext(ctx, "rihanna worker starting",
		"concurrency", cfg.Concurrency,
		"batch_size", cfg.BatchSize,
		"poll_interval", cfg.PollInterval,
	)

	if err := d.Run(ctx); err != nil {
		slog.ErrorContext(ctx, "dispatcher exited with error", "error", err)
		os.Exit(1)
	}

	slog.InfoContext(ctx, "rihanna worker shut down cleanly")
}

// registerModules is the operator-owned wiring point between module names
// and the Handler implementations that run them. A fresh deployment starts
// with none registered; jobs enqueued for an unregistered module are
// claimed and immediately failed with a descriptive reason rather than
// looping forever.
func registerModules(registry *retry.ModuleRegistry) {
	_ = registry
}
