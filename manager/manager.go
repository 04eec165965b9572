// Package manager implements the Queue Manager: the facade a Worker and
// a Scheduler call through to dispatch work and pull a single record
// off a queue.Backend, apply the retry/backoff policy on failure, and
// emit observability events. It knows nothing about which backend
// variant it was handed; the retry state machine is the same for all
// three.
package manager

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rezkam/chronoqueue/job"
	"github.com/rezkam/chronoqueue/queue"
	"github.com/rezkam/chronoqueue/registry"
)

// Config mirrors the recognized queue configuration keys from spec.md
// §4.4, except the driver and driver-specific options: backend selection
// happens before New (see New).
type Config struct {
	// DefaultQueue names the queue used when a caller supplies none.
	DefaultQueue string
	// RetryAfter is the visibility timeout (I3): how long a Reserved
	// record may stay reserved before a fresh pop reclaims it.
	RetryAfter time.Duration
	// MaxAttempts is the terminal attempt count (I5).
	MaxAttempts int
	// Backoff is the base duration for exponential retry delay; zero
	// disables backoff (immediate re-enqueue on failure).
	Backoff time.Duration
}

func (c Config) withDefaults() Config {
	if c.DefaultQueue == "" {
		c.DefaultQueue = "default"
	}
	if c.RetryAfter <= 0 {
		c.RetryAfter = 90 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	return c
}

// maxBackoff caps the exponential backoff delay. The specification
// leaves the exact ceiling to implementers and recommends one hour;
// this cap must never weaken at-least-once delivery, only bound the
// wait between retries.
const maxBackoff = time.Hour

// Manager is the facade over one queue.Backend and one handler
// registry.Registry. It is safe for concurrent use: ProcessNextJob may
// be called from many goroutines (e.g. one per Worker) against the
// same Manager.
type Manager struct {
	backend  queue.Backend
	registry *registry.Registry
	cfg      Config

	mu        sync.RWMutex
	listeners []Listener
}

// New constructs a Manager over an already-built backend and registry.
// Driver selection (which concrete queue.Backend to build) happens
// before this call, in the host's configuration layer; queue.ErrUnknownDriver
// is the error that layer returns for an unrecognized driver name, per
// spec.md §7 "Unknown queue driver (fatal at Manager construction)".
func New(cfg Config, backend queue.Backend, reg *registry.Registry) *Manager {
	return &Manager{
		backend:  backend,
		registry: reg,
		cfg:      cfg.withDefaults(),
	}
}

// Config returns the effective (defaulted) configuration.
func (m *Manager) Config() Config { return m.cfg }

// Backend returns the underlying backend, e.g. for cmd/queuectl's
// failed-job and stats operations.
func (m *Manager) Backend() queue.Backend { return m.backend }

// Subscribe registers l to receive JobProcessed, JobFailed, and
// JobMaxAttemptsReached events. Delivery is synchronous and best-effort:
// a panicking Listener is recovered and logged, never allowed to
// prevent record cleanup.
func (m *Manager) Subscribe(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

func (m *Manager) emit(ctx context.Context, fn func(Listener)) {
	m.mu.RLock()
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.RUnlock()
	Notify(ctx, listeners, fn)
}

// Dispatch resolves queue to DefaultQueue when empty and forwards to the
// backend's Push.
func (m *Manager) Dispatch(ctx context.Context, handler string, args map[string]any, queueName string, delay time.Duration) (string, error) {
	if queueName == "" {
		queueName = m.cfg.DefaultQueue
	}
	id, err := m.backend.Push(ctx, handler, args, queueName, delay)
	if err != nil {
		return "", fmt.Errorf("manager: dispatch: %w", err)
	}
	return id, nil
}

// DispatchNow invokes the handler synchronously in the caller's
// goroutine, bypassing all queue machinery, and returns its result.
func (m *Manager) DispatchNow(ctx context.Context, handler string, args map[string]any) (any, error) {
	h, err := m.registry.Resolve(handler)
	if err != nil {
		return nil, err
	}
	return invoke(ctx, h, args)
}

// invoke calls h.Execute with panic recovery, converting any panic into
// a job.HandlerFailure carrying a captured stack trace, following the
// teacher's GenerationWorker.executeWithRecovery.
func invoke(ctx context.Context, h registry.Handler, args map[string]any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = job.HandlerFailure{Panic: r, StackTrace: string(debug.Stack())}
		}
	}()
	result, err = h.Execute(ctx, args)
	if err != nil {
		err = job.HandlerFailure{Cause: err}
	}
	return result, err
}

// ProcessNextJob is the worker's single-step primitive: pop one record
// from queueName (DefaultQueue if empty), execute its handler, and apply
// the success/retry/failure policy. It reports false only when the
// queue had no eligible record; a failed or retried handler invocation
// still returns true, since "work happened".
func (m *Manager) ProcessNextJob(ctx context.Context, queueName string) (bool, error) {
	if queueName == "" {
		queueName = m.cfg.DefaultQueue
	}

	rec, err := m.backend.Pop(ctx, queueName, m.cfg.RetryAfter)
	if err != nil {
		return false, fmt.Errorf("manager: pop %q: %w", queueName, err)
	}
	if rec == nil {
		return false, nil
	}

	handlerName, args, decodeErr := rec.Handler()
	if decodeErr != nil {
		return true, m.handleFailure(ctx, rec, handlerName, args, fmt.Errorf("manager: decode payload: %w", decodeErr))
	}

	start := time.Now()
	h, resolveErr := m.registry.Resolve(handlerName)
	var execErr error
	if resolveErr != nil {
		execErr = resolveErr
	} else {
		_, execErr = invoke(ctx, h, args)
	}
	elapsed := time.Since(start)

	if execErr == nil {
		if err := m.backend.Delete(ctx, rec); err != nil {
			// At-least-once: the record will be redelivered once its
			// visibility timeout expires. No compensating action.
			slog.ErrorContext(ctx, "manager: delete after success failed, record will be redelivered",
				"job", rec.ID, "queue", queueName, "error", err)
		}
		m.emit(ctx, func(l Listener) {
			l.JobProcessed(ctx, JobProcessedEvent{
				JobID:            rec.ID,
				Handler:          handlerName,
				Args:             args,
				Queue:            queueName,
				ExecutionSeconds: elapsed.Seconds(),
			})
		})
		return true, nil
	}

	return true, m.handleFailure(ctx, rec, handlerName, args, execErr)
}

// handleFailure applies the retry policy (spec.md §4.4): release with
// backoff while attempts remain, else move to Failed Record storage.
func (m *Manager) handleFailure(ctx context.Context, rec *job.Record, handlerName string, args map[string]any, cause error) error {
	if rec.Attempts < m.cfg.MaxAttempts {
		delay := m.calculateBackoff(rec.Attempts)
		if err := m.backend.Release(ctx, rec, delay); err != nil {
			return fmt.Errorf("manager: release after failure: %w", err)
		}
		m.emit(ctx, func(l Listener) {
			l.JobFailed(ctx, JobFailedEvent{
				JobID:    rec.ID,
				Handler:  handlerName,
				Args:     args,
				Queue:    rec.Queue,
				Err:      cause,
				Attempts: rec.Attempts,
			})
		})
		return nil
	}

	if err := m.backend.Failed(ctx, rec, cause.Error()); err != nil {
		return fmt.Errorf("manager: move to failed storage: %w", err)
	}
	m.emit(ctx, func(l Listener) {
		l.JobMaxAttemptsReached(ctx, JobMaxAttemptsReachedEvent{
			JobID:       rec.ID,
			Handler:     handlerName,
			Args:        args,
			Queue:       rec.Queue,
			Err:         cause,
			MaxAttempts: m.cfg.MaxAttempts,
		})
	})
	return nil
}

// calculateBackoff implements backoff × 2^(attempts-1), attempts being
// the post-increment count Pop already applied. Zero backoff disables
// delay entirely (immediate re-enqueue). The result is capped at
// maxBackoff, per spec.md §4.4 and the Open Questions in §9.
func (m *Manager) calculateBackoff(attempts int) time.Duration {
	if m.cfg.Backoff <= 0 {
		return 0
	}
	if attempts < 1 {
		attempts = 1
	}
	// Cap the shift to avoid overflow for pathologically large attempts
	// counts; any shift beyond this already exceeds maxBackoff.
	shift := attempts - 1
	if shift > 32 {
		return maxBackoff
	}
	delay := m.cfg.Backoff * (1 << shift)
	if delay > maxBackoff || delay < 0 {
		return maxBackoff
	}
	return delay
}
