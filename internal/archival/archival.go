// Package archival mirrors every Failed Record to a Google Cloud
// Storage bucket as a JSON blob, supplementing spec.md's failed-job
// store with the long-term off-box retention feature the distillation
// dropped (see original_source/ notes in DESIGN.md). It is grounded on
// the teacher's internal/storage/gcs/store.go and is wired in as a
// manager.Listener reacting only to JobMaxAttemptsReached; nil or unused
// Archiver is a no-op.
package archival

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/storage"

	"github.com/rezkam/chronoqueue/manager"
)

// Archiver writes Failed Records to a GCS bucket, keyed by job id, as
// they are moved to failed storage.
type Archiver struct {
	manager.NopListener
	client *storage.Client
	bucket string
}

// record is the JSON shape written to GCS: enough to reconstruct what
// failed and why, independent from whatever queue backend produced it.
type record struct {
	JobID       string         `json:"job_id"`
	Handler     string         `json:"handler"`
	Args        map[string]any `json:"args"`
	Queue       string         `json:"queue"`
	Exception   string         `json:"exception"`
	MaxAttempts int            `json:"max_attempts"`
	FailedAt    time.Time      `json:"failed_at"`
}

// New connects to GCS (assuming an already-authenticated environment,
// e.g. via GOOGLE_APPLICATION_CREDENTIALS) and returns an Archiver
// writing objects into bucket.
func New(ctx context.Context, bucket string) (*Archiver, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("archival: create gcs client: %w", err)
	}
	return &Archiver{client: client, bucket: bucket}, nil
}

func (a *Archiver) objectName(jobID string) string {
	return fmt.Sprintf("failed/%s.json", jobID)
}

// JobMaxAttemptsReached writes e to GCS. A write failure is logged, not
// returned: archival is a best-effort supplement to the authoritative
// failed-job store, never a gate on the Manager's own record cleanup.
func (a *Archiver) JobMaxAttemptsReached(ctx context.Context, e manager.JobMaxAttemptsReachedEvent) {
	errMsg := ""
	if e.Err != nil {
		errMsg = e.Err.Error()
	}
	rec := record{
		JobID:       e.JobID,
		Handler:     e.Handler,
		Args:        e.Args,
		Queue:       e.Queue,
		Exception:   errMsg,
		MaxAttempts: e.MaxAttempts,
		FailedAt:    time.Now().UTC(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		slog.ErrorContext(ctx, "archival: marshal failed record", "job_id", e.JobID, "error", err)
		return
	}

	obj := a.client.Bucket(a.bucket).Object(a.objectName(e.JobID))
	w := obj.NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		w.Close()
		slog.ErrorContext(ctx, "archival: write failed record", "job_id", e.JobID, "error", err)
		return
	}
	if err := w.Close(); err != nil {
		slog.ErrorContext(ctx, "archival: close failed record writer", "job_id", e.JobID, "error", err)
	}
}

// Close releases the underlying GCS client.
func (a *Archiver) Close() error {
	return a.client.Close()
}
