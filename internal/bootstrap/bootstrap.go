// Package bootstrap collects the startup sequence shared by every cmd/*
// binary: load Config, init observability, build the registry and
// backend, and construct a Manager. Following the teacher's
// cmd/server/main.go run() function, each step's shutdown is deferred
// immediately after the step succeeds.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/rezkam/chronoqueue/internal/archival"
	"github.com/rezkam/chronoqueue/internal/config"
	"github.com/rezkam/chronoqueue/internal/handlers"
	"github.com/rezkam/chronoqueue/internal/observability"
	"github.com/rezkam/chronoqueue/manager"
	"github.com/rezkam/chronoqueue/queue"
	"github.com/rezkam/chronoqueue/registry"
)

// Observability holds the three provider handles a binary must shut
// down, in reverse init order, before exiting.
type Observability struct {
	Logger *log.LoggerProvider
	Tracer *sdktrace.TracerProvider
	Meter  *sdkmetric.MeterProvider
}

// Shutdown tears down every provider with a bounded timeout, logging
// (not failing on) any error, matching the teacher's defer pattern.
func (o *Observability) Shutdown(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if o.Meter != nil {
		if err := o.Meter.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(ctx, "bootstrap: shutdown meter provider", "error", err)
		}
	}
	if o.Tracer != nil {
		if err := o.Tracer.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(ctx, "bootstrap: shutdown tracer provider", "error", err)
		}
	}
	if o.Logger != nil {
		if err := o.Logger.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(ctx, "bootstrap: shutdown logger provider", "error", err)
		}
	}
}

// InitObservability sets up slog/trace/metric providers per cfg and
// installs the resulting logger as slog's default, following the
// teacher's InitLogger/InitTracerProvider/InitMeterProvider sequence.
func InitObservability(ctx context.Context, cfg observability.Config) (*Observability, error) {
	lp, logger, err := observability.InitLogger(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: init logger: %w", err)
	}
	slog.SetDefault(logger)

	tp, err := observability.InitTracerProvider(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: init tracer provider: %w", err)
	}

	mp, err := observability.InitMeterProvider(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: init meter provider: %w", err)
	}

	return &Observability{Logger: lp, Tracer: tp, Meter: mp}, nil
}

// App bundles the pieces every binary needs: the loaded Config, a
// registry with built-in handlers registered, the selected backend, a
// Manager wired over them, and the optional failed-job archiver.
type App struct {
	Config   *config.Config
	Registry *registry.Registry
	Backend  queue.Backend
	Manager  *manager.Manager
	Archiver *archival.Archiver // nil when cfg.Archival is not configured
}

// Load reads the Config at configPath, builds the queue.Backend its
// driver selects, and constructs a Manager. When the config's archival
// block names a bucket, it also constructs an archival.Archiver and
// subscribes it to the Manager so JobMaxAttemptsReached events are
// mirrored to GCS, per SPEC_FULL.md §4.4. Callers must Close the
// returned App when done.
func Load(ctx context.Context, configPath string) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: load config: %w", err)
	}

	reg := registry.New()
	handlers.Register(reg)

	backend, err := config.BuildBackend(ctx, *cfg, reg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: build backend: %w", err)
	}

	mgr := manager.New(manager.Config{
		DefaultQueue: cfg.Queue.DefaultQueue,
		RetryAfter:   cfg.Queue.RetryAfterDuration(),
		MaxAttempts:  cfg.Queue.MaxAttempts,
		Backoff:      cfg.Queue.BackoffDuration(),
	}, backend, reg)

	var archiver *archival.Archiver
	if cfg.Archival.Enabled() {
		archiver, err = archival.New(ctx, cfg.Archival.Bucket)
		if err != nil {
			backend.Close()
			return nil, fmt.Errorf("bootstrap: build archiver: %w", err)
		}
		mgr.Subscribe(archiver)
	}

	return &App{Config: cfg, Registry: reg, Backend: backend, Manager: mgr, Archiver: archiver}, nil
}

// Close releases the backend connection and, if configured, the
// archival GCS client. Errors are logged, not returned, matching the
// teacher's best-effort shutdown pattern in Observability.Shutdown.
func (a *App) Close() {
	if a.Archiver != nil {
		if err := a.Archiver.Close(); err != nil {
			slog.Error("bootstrap: close archiver", "error", err)
		}
	}
	if err := a.Backend.Close(); err != nil {
		slog.Error("bootstrap: close backend", "error", err)
	}
}
