// Package syncqueue implements the synchronous backend variant: Push
// executes the handler immediately in the caller's goroutine and Pop
// never finds anything, matching the "testing and local development"
// backend described for inline execution.
package syncqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rezkam/chronoqueue/job"
	"github.com/rezkam/chronoqueue/registry"
)

// Backend is the synchronous queue.Backend implementation. It holds a
// Registry so that a pushed handler name can be resolved and invoked
// inline, exactly as manager.DispatchNow does.
type Backend struct {
	registry *registry.Registry
}

// New constructs a synchronous backend that resolves handlers from reg.
func New(reg *registry.Registry) *Backend {
	return &Backend{registry: reg}
}

// Push resolves and executes the handler immediately. Failures propagate
// directly to the caller, per the specified contract for this variant.
func (b *Backend) Push(ctx context.Context, handler string, args map[string]any, queue string, _ time.Duration) (string, error) {
	h, err := b.registry.Resolve(handler)
	if err != nil {
		return "", err
	}
	if _, err := h.Execute(ctx, args); err != nil {
		return "", fmt.Errorf("syncqueue: handler %q: %w", handler, err)
	}
	return uuid.NewString(), nil
}

// Pop always reports no record available.
func (b *Backend) Pop(context.Context, string, time.Duration) (*job.Record, error) { return nil, nil }

// Release is a no-op: the synchronous backend never holds records.
func (b *Backend) Release(context.Context, *job.Record, time.Duration) error { return nil }

// Delete is a no-op.
func (b *Backend) Delete(context.Context, *job.Record) error { return nil }

// Failed is a no-op: failures from Push already propagated to the caller.
func (b *Backend) Failed(context.Context, *job.Record, string) error { return nil }

// Size always reports zero.
func (b *Backend) Size(context.Context, string) (int, error) { return 0, nil }

// Clear always reports zero removed.
func (b *Backend) Clear(context.Context, string) (int, error) { return 0, nil }

// FailedJobs always reports an empty list.
func (b *Backend) FailedJobs(context.Context) ([]*job.FailedRecord, error) { return nil, nil }

// RetryFailedJob always reports false: there is never a Failed Record.
func (b *Backend) RetryFailedJob(context.Context, string) (bool, error) { return false, nil }

// ForgetFailedJob always reports false.
func (b *Backend) ForgetFailedJob(context.Context, string) (bool, error) { return false, nil }

// ClearFailedJobs always reports zero removed.
func (b *Backend) ClearFailedJobs(context.Context) (int, error) { return 0, nil }

// Close is a no-op: the synchronous backend owns no resources.
func (b *Backend) Close() error { return nil }
