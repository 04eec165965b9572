// Package queue declares the storage contract every queue backend
// variant (relational, filesystem, synchronous) implements: durable
// push, atomic reserve/release/delete/fail, and failed-job management.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/rezkam/chronoqueue/job"
)

// ErrUnknownDriver is returned by the host's configuration layer
// (config.BuildBackend) when the configured driver name does not match a
// backend variant. It surfaces at startup, before any Manager is
// constructed, not deferred to first use.
var ErrUnknownDriver = errors.New("queue: unknown driver")

// Backend is the common contract every storage variant satisfies. All
// operations must be safe to call concurrently from multiple Workers.
type Backend interface {
	// Push creates a new Pending record, durable before it returns, and
	// reports its assigned id. Concurrent pushes with identical content
	// produce distinct ids.
	Push(ctx context.Context, handler string, args map[string]any, queue string, delay time.Duration) (string, error)

	// Pop atomically selects and reserves the oldest eligible Pending
	// record in queue, performing a visibility sweep first. Returns
	// (nil, nil) when no record is eligible.
	Pop(ctx context.Context, queue string, retryAfter time.Duration) (*job.Record, error)

	// Release returns a Reserved record to Pending with available_at
	// bumped by delay. A no-op if the record no longer exists.
	Release(ctx context.Context, record *job.Record, delay time.Duration) error

	// Delete permanently removes a record. A no-op if absent.
	Delete(ctx context.Context, record *job.Record) error

	// Failed moves a record into failed storage with the given error
	// detail, atomically enough that a crash between the write and the
	// delete never leaves only the Failed Record behind.
	Failed(ctx context.Context, record *job.Record, errDetail string) error

	// Size counts Pending (unreserved) records in queue.
	Size(ctx context.Context, queue string) (int, error)

	// Clear deletes all records (Pending or Reserved) in queue and
	// reports the count removed.
	Clear(ctx context.Context, queue string) (int, error)

	// FailedJobs returns Failed Records sorted newest-first.
	FailedJobs(ctx context.Context) ([]*job.FailedRecord, error)

	// RetryFailedJob re-enqueues the named Failed Record as a new
	// Pending record with attempts reset to zero, deleting the Failed
	// Record in the same operation. Reports false if id is unknown.
	RetryFailedJob(ctx context.Context, id string) (bool, error)

	// ForgetFailedJob deletes the named Failed Record. Reports false
	// if id is unknown.
	ForgetFailedJob(ctx context.Context, id string) (bool, error)

	// ClearFailedJobs deletes every Failed Record and reports the
	// count removed.
	ClearFailedJobs(ctx context.Context) (int, error)

	// Close releases backend resources (connections, open handles).
	Close() error
}
