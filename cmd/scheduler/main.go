// Command scheduler runs the cron polling loop: it loads the
// application config and a schedule file, then either polls forever on
// a fixed interval or, with --poll, evaluates a single tick and exits.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rezkam/chronoqueue/internal/bootstrap"
	"github.com/rezkam/chronoqueue/internal/observability"
	"github.com/rezkam/chronoqueue/manager"
	"github.com/rezkam/chronoqueue/scheduler"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "scheduler: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configDir := flag.String("config", "./config", "directory holding the application config and schedule files")
	configFile := flag.String("config-file", "config.yaml", "application config file name, relative to --config")
	interval := flag.Int("interval", 60, "poll interval in seconds")
	poll := flag.Bool("poll", false, "evaluate a single tick and exit, instead of looping")
	debug := flag.Bool("debug", false, "enable verbose logging and OTLP export")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	obs, err := bootstrap.InitObservability(ctx, observability.Config{Enabled: *debug})
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}
	defer obs.Shutdown(ctx)

	app, err := bootstrap.Load(ctx, filepath.Join(*configDir, *configFile))
	if err != nil {
		return fmt.Errorf("load app: %w", err)
	}
	defer app.Close()

	sched := scheduler.New(app.Manager)
	sched.Subscribe(manager.LogListener{})
	sched.SetInterval(time.Duration(*interval) * time.Second)

	schedulePath := filepath.Join(*configDir, "schedule.yaml")
	if err := sched.LoadFile(schedulePath, app.Registry); err != nil {
		slog.WarnContext(ctx, "scheduler: schedule file missing or malformed, starting with no entries",
			"path", schedulePath, "error", err)
	}

	entries := sched.Entries()
	slog.InfoContext(ctx, "scheduler starting", "entries", len(entries), "interval_seconds", *interval, "poll_once", *poll)

	if *poll {
		fired := sched.Poll(ctx)
		slog.InfoContext(ctx, "scheduler: single tick complete", "fired", fired)
		return nil
	}

	sched.RunForever(ctx)
	slog.InfoContext(ctx, "scheduler stopped")
	return nil
}
