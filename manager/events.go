package manager

import (
	"context"
	"log/slog"
	"runtime/debug"
)

// JobProcessedEvent is emitted after a handler invocation succeeds and
// its record has been deleted.
type JobProcessedEvent struct {
	JobID            string
	Handler          string
	Args             map[string]any
	Queue            string
	ExecutionSeconds float64
}

// JobFailedEvent is emitted on any handler failure that still has
// attempts remaining, after the record has been released back to
// Pending with its backoff delay applied.
type JobFailedEvent struct {
	JobID    string
	Handler  string
	Args     map[string]any
	Queue    string
	Err      error
	Attempts int
}

// JobMaxAttemptsReachedEvent is emitted when a record's attempts reach
// MaxAttempts and it has been moved to failed storage.
type JobMaxAttemptsReachedEvent struct {
	JobID       string
	Handler     string
	Args        map[string]any
	Queue       string
	Err         error
	MaxAttempts int
}

// WorkerStartedEvent is emitted once by a Worker on entry to its run
// loop.
type WorkerStartedEvent struct {
	WorkerID string
	Queues   []string
}

// WorkerStoppedEvent is emitted once by a Worker on exit from its run
// loop.
type WorkerStoppedEvent struct {
	WorkerID      string
	JobsProcessed int
}

// SchedulerJobTriggeredEvent is emitted by the Scheduler for every due
// Schedule Entry on a poll tick.
type SchedulerJobTriggeredEvent struct {
	Name         string
	HandlerClass string
	Cron         string
	Queue        string
}

// Listener receives every event this package's components emit:
// Manager's per-record events, Worker's start/stop lifecycle, and
// Scheduler's per-tick trigger notices. Implementations must tolerate
// being called synchronously inline with the operation that produced
// the event; a slow or panicking Listener delays (or, if panicking, is
// recovered from but still delays) that operation.
//
// Embed NopListener to implement only the events a particular listener
// cares about.
type Listener interface {
	JobProcessed(ctx context.Context, e JobProcessedEvent)
	JobFailed(ctx context.Context, e JobFailedEvent)
	JobMaxAttemptsReached(ctx context.Context, e JobMaxAttemptsReachedEvent)
	WorkerStarted(ctx context.Context, e WorkerStartedEvent)
	WorkerStopped(ctx context.Context, e WorkerStoppedEvent)
	SchedulerJobTriggered(ctx context.Context, e SchedulerJobTriggeredEvent)
}

// NopListener is embeddable by listeners that only care about a subset
// of events.
type NopListener struct{}

func (NopListener) JobProcessed(context.Context, JobProcessedEvent)                  {}
func (NopListener) JobFailed(context.Context, JobFailedEvent)                        {}
func (NopListener) JobMaxAttemptsReached(context.Context, JobMaxAttemptsReachedEvent) {}
func (NopListener) WorkerStarted(context.Context, WorkerStartedEvent)                {}
func (NopListener) WorkerStopped(context.Context, WorkerStoppedEvent)                {}
func (NopListener) SchedulerJobTriggered(context.Context, SchedulerJobTriggeredEvent) {}

// LogListener logs every event with log/slog at the severity the
// teacher's ErrorHandler uses for the analogous generation-job events.
type LogListener struct{ NopListener }

func (LogListener) JobProcessed(ctx context.Context, e JobProcessedEvent) {
	slog.InfoContext(ctx, "job processed", "handler", e.Handler, "queue", e.Queue, "execution_seconds", e.ExecutionSeconds)
}

func (LogListener) JobFailed(ctx context.Context, e JobFailedEvent) {
	slog.WarnContext(ctx, "job failed, will retry", "handler", e.Handler, "queue", e.Queue, "attempts", e.Attempts, "error", e.Err)
}

func (LogListener) JobMaxAttemptsReached(ctx context.Context, e JobMaxAttemptsReachedEvent) {
	slog.ErrorContext(ctx, "job exhausted max attempts, moved to failed storage", "handler", e.Handler, "queue", e.Queue, "max_attempts", e.MaxAttempts, "error", e.Err)
}

func (LogListener) WorkerStarted(ctx context.Context, e WorkerStartedEvent) {
	slog.InfoContext(ctx, "worker started", "worker_id", e.WorkerID, "queues", e.Queues)
}

func (LogListener) WorkerStopped(ctx context.Context, e WorkerStoppedEvent) {
	slog.InfoContext(ctx, "worker stopped", "worker_id", e.WorkerID, "jobs_processed", e.JobsProcessed)
}

func (LogListener) SchedulerJobTriggered(ctx context.Context, e SchedulerJobTriggeredEvent) {
	slog.InfoContext(ctx, "scheduler entry triggered", "name", e.Name, "handler", e.HandlerClass, "cron", e.Cron, "queue", e.Queue)
}

// Notify calls fn for every listener in listeners, recovering and
// logging a panic from any one of them so it can never interrupt the
// caller's own cleanup. Worker and Scheduler use this directly since
// they hold their own listener slice rather than a *Manager.
func Notify(ctx context.Context, listeners []Listener, fn func(Listener)) {
	for _, l := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.ErrorContext(ctx, "listener panicked", "panic", r, "stack", string(debug.Stack()))
				}
			}()
			fn(l)
		}()
	}
}
