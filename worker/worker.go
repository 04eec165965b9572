// Package worker implements the long-lived loop that pulls from one or
// more queues in priority order, executes handlers through a
// manager.Manager, and reports cooperative shutdown. It generalizes the
// teacher's single hard-coded schedule/process ticker loop
// (internal/application/worker.Worker, in the donor repository) into
// the generic priority-queue scan spec.md §4.5 describes.
package worker

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rezkam/chronoqueue/manager"
)

// Processor is the subset of *manager.Manager a Worker depends on. A
// narrow interface keeps the run loop testable against a fake.
type Processor interface {
	ProcessNextJob(ctx context.Context, queue string) (bool, error)
}

// Config configures a Worker's run loop. Zero values take the defaults
// listed in spec.md §4.5.
type Config struct {
	// Queues lists the queues to scan, highest priority first.
	Queues []string
	// SleepSeconds is the idle interval between passes when no queue
	// yielded work. Default 3.
	SleepSeconds int
	// MaxJobs stops the Worker after this many successful processings.
	// Zero means unbounded.
	MaxJobs int
	// StopWhenEmpty exits the first time every queue is empty, instead
	// of sleeping and retrying.
	StopWhenEmpty bool
}

func (c Config) withDefaults() Config {
	if c.SleepSeconds <= 0 {
		c.SleepSeconds = 3
	}
	if len(c.Queues) == 0 {
		c.Queues = []string{"default"}
	}
	return c
}

// Worker is a single serial executor: one Worker processes one record
// at a time. Horizontal scaling is by running N Worker processes
// against the same backend.
type Worker struct {
	id        string
	processor Processor
	cfg       Config

	mu            sync.Mutex
	shouldQuit    bool
	stopCh        chan struct{}
	jobsProcessed int

	listeners []manager.Listener
}

// New constructs a Worker with a generated id, scanning queues in the
// order given.
func New(processor Processor, cfg Config) *Worker {
	return &Worker{
		id:        uuid.NewString(),
		processor: processor,
		cfg:       cfg.withDefaults(),
		stopCh:    make(chan struct{}),
	}
}

// Subscribe registers l to receive WorkerStarted/WorkerStopped events.
func (w *Worker) Subscribe(l manager.Listener) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, l)
}

// ID reports the Worker's generated identifier, used in logs and in the
// WorkerStarted/WorkerStopped events.
func (w *Worker) ID() string { return w.id }

// JobsProcessed reports the number of successful processNextJob calls
// so far. Safe for concurrent use while Run is active.
func (w *Worker) JobsProcessed() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.jobsProcessed
}

// Stop requests termination and returns immediately. The currently
// executing handler, if any, is not interrupted: Run finishes its
// current ProcessNextJob call, then exits. It also interrupts an idle
// sleep between scan passes so shutdown doesn't wait out the remainder
// of SleepSeconds.
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.shouldQuit {
		return
	}
	w.shouldQuit = true
	close(w.stopCh)
}

func (w *Worker) quitRequested() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.shouldQuit
}

// ListenForSignals registers SIGTERM/SIGINT handlers whose only action
// is to call Stop, following the teacher's cmd/worker/main.go signal
// handling. It returns a func to stop listening, which callers should
// defer.
func (w *Worker) ListenForSignals() (stop func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		select {
		case sig := <-sigCh:
			slog.Info("worker: received signal, stopping", "worker_id", w.id, "signal", sig)
			w.Stop()
		case <-done:
		}
	}()
	return func() {
		close(done)
		signal.Stop(sigCh)
	}
}

// Run executes the priority-scan loop described in spec.md §4.5 until
// Stop is called, MaxJobs is reached, or (with StopWhenEmpty) every
// queue comes up empty in the same pass. It blocks until exit.
func (w *Worker) Run(ctx context.Context) {
	w.emit(ctx, func(l manager.Listener) {
		l.WorkerStarted(ctx, manager.WorkerStartedEvent{WorkerID: w.id, Queues: w.cfg.Queues})
	})

	for !w.quitRequested() {
		workedThisPass := false

		for _, q := range w.cfg.Queues {
			select {
			case <-ctx.Done():
				w.Stop()
			default:
			}
			if w.quitRequested() {
				break
			}

			worked, err := w.processor.ProcessNextJob(ctx, q)
			if err != nil {
				slog.ErrorContext(ctx, "worker: processNextJob failed, will retry after sleep",
					"worker_id", w.id, "queue", q, "error", err)
				continue
			}
			if worked {
				workedThisPass = true
				w.mu.Lock()
				w.jobsProcessed++
				count := w.jobsProcessed
				w.mu.Unlock()

				if w.cfg.MaxJobs > 0 && count >= w.cfg.MaxJobs {
					w.Stop()
				}
				break // restart scan from highest-priority queue
			}
		}

		if w.quitRequested() {
			break
		}
		if !workedThisPass {
			if w.cfg.StopWhenEmpty {
				break
			}
			select {
			case <-ctx.Done():
				w.Stop()
			case <-w.stopCh:
			case <-time.After(time.Duration(w.cfg.SleepSeconds) * time.Second):
			}
		}
	}

	w.emit(ctx, func(l manager.Listener) {
		l.WorkerStopped(ctx, manager.WorkerStoppedEvent{WorkerID: w.id, JobsProcessed: w.JobsProcessed()})
	})
}

func (w *Worker) emit(ctx context.Context, fn func(manager.Listener)) {
	w.mu.Lock()
	listeners := append([]manager.Listener(nil), w.listeners...)
	w.mu.Unlock()
	manager.Notify(ctx, listeners, fn)
}
