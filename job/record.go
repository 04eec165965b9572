package job

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Record is one queued unit of work. Fields mirror the live-jobs table:
// Queue and Payload are immutable after push; Attempts, ReservedAt, and
// AvailableAt are the mutable reservation state a Backend manipulates
// under the pop/release/delete/failed protocol.
type Record struct {
	ID          string
	Queue       string
	Payload     []byte
	Attempts    int
	ReservedAt  *time.Time
	AvailableAt time.Time
	CreatedAt   time.Time
}

// New allocates a fresh Pending record: a new id, zero attempts, no
// reservation, available after delay has elapsed.
func New(handler string, args map[string]any, queue string, delay time.Duration) (*Record, error) {
	payload, err := EncodePayload(handler, args)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &Record{
		ID:          uuid.NewString(),
		Queue:       queue,
		Payload:     payload,
		Attempts:    0,
		ReservedAt:  nil,
		AvailableAt: now.Add(delay),
		CreatedAt:   now,
	}, nil
}

// Rehydrate reconstructs a Record from storage-supplied field values. It
// performs no validation beyond what the caller already persisted.
func Rehydrate(id, queue string, payload []byte, attempts int, reservedAt *time.Time, availableAt, createdAt time.Time) *Record {
	return &Record{
		ID:          id,
		Queue:       queue,
		Payload:     payload,
		Attempts:    attempts,
		ReservedAt:  reservedAt,
		AvailableAt: availableAt,
		CreatedAt:   createdAt,
	}
}

// Reserved reports whether the record currently holds a reservation.
func (r *Record) Reserved() bool {
	return r.ReservedAt != nil
}

// Handler decodes the handler name and argument bag carried by Payload.
func (r *Record) Handler() (string, map[string]any, error) {
	return DecodePayload(r.Payload)
}

func (r *Record) String() string {
	return fmt.Sprintf("job=%s queue=%s attempts=%d", r.ID, r.Queue, r.Attempts)
}

// FailedRecord is a Job Record that reached max_attempts: the same
// identity and payload, plus a formatted error and the time it failed.
// Never consulted by Workers.
type FailedRecord struct {
	ID        string
	Queue     string
	Payload   []byte
	Exception string
	FailedAt  time.Time
}

func (f *FailedRecord) String() string {
	return fmt.Sprintf("failed-job=%s queue=%s", f.ID, f.Queue)
}
