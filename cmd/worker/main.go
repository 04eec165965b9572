// Command worker runs the priority-scan worker loop against the
// configured queue backend, executing handlers through the Queue
// Manager until stopped.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rezkam/chronoqueue/internal/bootstrap"
	"github.com/rezkam/chronoqueue/internal/observability"
	"github.com/rezkam/chronoqueue/manager"
	wk "github.com/rezkam/chronoqueue/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configDir := flag.String("config", "./config", "directory holding the application config")
	configFile := flag.String("config-file", "config.yaml", "application config file name, relative to --config")
	queues := flag.String("queue", "default", "comma-separated queue names, highest priority first")
	once := flag.Bool("once", false, "process at most one job, then exit")
	stopWhenEmpty := flag.Bool("stop-when-empty", false, "exit once every queue comes up empty, instead of sleeping and retrying")
	sleepSeconds := flag.Int("sleep", 3, "idle interval between scan passes, in seconds")
	maxJobs := flag.Int("max-jobs", 0, "exit after processing this many jobs (0 = unbounded)")
	timeoutSeconds := flag.Int("timeout", 0, "soft per-job timeout hint surfaced to handlers (0 = none)")
	debug := flag.Bool("debug", false, "enable verbose logging and OTLP export")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	obs, err := bootstrap.InitObservability(ctx, observability.Config{Enabled: *debug})
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}
	defer obs.Shutdown(ctx)

	app, err := bootstrap.Load(ctx, fmt.Sprintf("%s/%s", *configDir, *configFile))
	if err != nil {
		return fmt.Errorf("load app: %w", err)
	}
	defer app.Close()

	if *timeoutSeconds > 0 {
		ctx = wk.WithTimeoutHint(ctx, time.Duration(*timeoutSeconds)*time.Second)
	}

	cfg := wk.Config{
		Queues:        splitQueues(*queues),
		SleepSeconds:  *sleepSeconds,
		MaxJobs:       *maxJobs,
		StopWhenEmpty: *stopWhenEmpty,
	}
	if *once {
		cfg.MaxJobs = 1
		cfg.StopWhenEmpty = true
	}

	w := wk.New(app.Manager, cfg)
	w.Subscribe(manager.LogListener{})
	stopSignals := w.ListenForSignals()
	defer stopSignals()

	slog.InfoContext(ctx, "worker starting", "worker_id", w.ID(), "queues", cfg.Queues, "once", *once)
	w.Run(ctx)
	slog.InfoContext(ctx, "worker stopped", "worker_id", w.ID(), "jobs_processed", w.JobsProcessed())
	return nil
}

func splitQueues(csv string) []string {
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
