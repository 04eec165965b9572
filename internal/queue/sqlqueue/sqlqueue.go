// Package sqlqueue implements the relational queue.Backend variant on
// top of database/sql, supporting sqlite, mysql, and postgres (pgx)
// drivers selected by Adapter. Pop follows the sweep-then-conditional-
// update contention pattern: a bulk UPDATE reclaims expired
// reservations, a plain SELECT picks a candidate, and a conditional
// UPDATE ... WHERE reserved_at IS NULL claims it, retrying when another
// worker won the race. This is the only correct contention pattern for
// concurrent pop under this backend; a naive select-then-update is not
// acceptable.
package sqlqueue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rezkam/chronoqueue/job"
)

// Backend is the relational queue.Backend implementation.
type Backend struct {
	db      *sql.DB
	adapter Adapter
}

// NewBackend wraps an already-migrated *sql.DB. Use Open to construct
// the *sql.DB with pool sizing and migrations applied.
func NewBackend(db *sql.DB, adapter Adapter) *Backend {
	return &Backend{db: db, adapter: adapter}
}

// bind rewrites a query written with '?' placeholders into the dialect
// Backend.adapter expects. sqlite and mysql accept '?' natively; pgx
// over database/sql requires positional $n placeholders.
func (b *Backend) bind(query string) string {
	if b.adapter != AdapterPgSQL {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func (b *Backend) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return b.db.ExecContext(ctx, b.bind(query), args...)
}

func (b *Backend) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return b.db.QueryRowContext(ctx, b.bind(query), args...)
}

func (b *Backend) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return b.db.QueryContext(ctx, b.bind(query), args...)
}

// Push inserts a new Pending row. The insert is durable before it
// returns because database/sql's ExecContext does not return until the
// driver has completed the round trip.
func (b *Backend) Push(ctx context.Context, handler string, args map[string]any, queue string, delay time.Duration) (string, error) {
	rec, err := job.New(handler, args, queue, delay)
	if err != nil {
		return "", err
	}
	_, err = b.exec(ctx,
		`INSERT INTO jobs (id, queue, payload, attempts, reserved_at, available_at, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Queue, string(rec.Payload), rec.Attempts, nil, rec.AvailableAt.Unix(), rec.CreatedAt.Unix(),
	)
	if err != nil {
		return "", fmt.Errorf("sqlqueue: push: %w", err)
	}
	return rec.ID, nil
}

const maxPopRetries = 8

// Pop implements the three-step contention pattern: sweep expired
// reservations, select a candidate, conditionally claim it. If the
// conditional update affects zero rows, another worker won the race and
// Pop retries against a fresh candidate, up to maxPopRetries times.
func (b *Backend) Pop(ctx context.Context, queue string, retryAfter time.Duration) (*job.Record, error) {
	now := time.Now().UTC()

	if _, err := b.exec(ctx,
		`UPDATE jobs SET reserved_at = NULL, available_at = ? WHERE queue = ? AND reserved_at IS NOT NULL AND reserved_at < ?`,
		now.Unix(), queue, now.Add(-retryAfter).Unix(),
	); err != nil {
		return nil, fmt.Errorf("sqlqueue: visibility sweep: %w", err)
	}

	for attempt := 0; attempt < maxPopRetries; attempt++ {
		var (
			id          string
			payload     string
			attempts    int
			availableAt int64
			createdAt   int64
		)
		row := b.queryRow(ctx,
			`SELECT id, payload, attempts, available_at, created_at FROM jobs
			 WHERE queue = ? AND available_at <= ? AND reserved_at IS NULL
			 ORDER BY available_at ASC LIMIT 1`,
			queue, now.Unix(),
		)
		if err := row.Scan(&id, &payload, &attempts, &availableAt, &createdAt); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil
			}
			return nil, fmt.Errorf("sqlqueue: select candidate: %w", err)
		}

		result, err := b.exec(ctx,
			`UPDATE jobs SET reserved_at = ?, attempts = attempts + 1 WHERE id = ? AND reserved_at IS NULL`,
			now.Unix(), id,
		)
		if err != nil {
			return nil, fmt.Errorf("sqlqueue: claim candidate: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("sqlqueue: claim candidate rows affected: %w", err)
		}
		if n == 0 {
			continue // another worker won the race; retry
		}

		reservedAt := now
		return job.Rehydrate(id, queue, []byte(payload), attempts+1, &reservedAt,
			time.Unix(availableAt, 0).UTC(), time.Unix(createdAt, 0).UTC()), nil
	}
	return nil, fmt.Errorf("sqlqueue: pop: exhausted %d contention retries on queue %q", maxPopRetries, queue)
}

// Release returns record to Pending with available_at bumped by delay.
func (b *Backend) Release(ctx context.Context, record *job.Record, delay time.Duration) error {
	_, err := b.exec(ctx,
		`UPDATE jobs SET reserved_at = NULL, available_at = ? WHERE id = ?`,
		time.Now().UTC().Add(delay).Unix(), record.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlqueue: release: %w", err)
	}
	return nil
}

// Delete removes record's row. A no-op if it is already gone.
func (b *Backend) Delete(ctx context.Context, record *job.Record) error {
	if _, err := b.exec(ctx, `DELETE FROM jobs WHERE id = ?`, record.ID); err != nil {
		return fmt.Errorf("sqlqueue: delete: %w", err)
	}
	return nil
}

// Failed writes a failed_jobs row and deletes the live row inside one
// transaction, so a crash between the two always leaves either both
// rows present or only the live row, never only the failed row.
func (b *Backend) Failed(ctx context.Context, record *job.Record, errDetail string) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlqueue: failed: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, b.bind(
		`INSERT INTO failed_jobs (id, queue, payload, exception, failed_at) VALUES (?, ?, ?, ?, ?)`),
		record.ID, record.Queue, string(record.Payload), errDetail, time.Now().UTC().Unix(),
	); err != nil {
		return fmt.Errorf("sqlqueue: failed: insert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, b.bind(`DELETE FROM jobs WHERE id = ?`), record.ID); err != nil {
		return fmt.Errorf("sqlqueue: failed: delete live row: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlqueue: failed: commit: %w", err)
	}
	return nil
}

// Size counts unreserved rows in queue.
func (b *Backend) Size(ctx context.Context, queue string) (int, error) {
	var n int
	err := b.queryRow(ctx, `SELECT COUNT(*) FROM jobs WHERE queue = ? AND reserved_at IS NULL`, queue).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlqueue: size: %w", err)
	}
	return n, nil
}

// Clear deletes every row (Pending or Reserved) in queue.
func (b *Backend) Clear(ctx context.Context, queue string) (int, error) {
	result, err := b.exec(ctx, `DELETE FROM jobs WHERE queue = ?`, queue)
	if err != nil {
		return 0, fmt.Errorf("sqlqueue: clear: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlqueue: clear rows affected: %w", err)
	}
	return int(n), nil
}

// FailedJobs returns every failed_jobs row, newest first.
func (b *Backend) FailedJobs(ctx context.Context) ([]*job.FailedRecord, error) {
	rows, err := b.query(ctx, `SELECT id, queue, payload, exception, failed_at FROM failed_jobs ORDER BY failed_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("sqlqueue: failed jobs: %w", err)
	}
	defer rows.Close()

	var out []*job.FailedRecord
	for rows.Next() {
		var (
			fr       job.FailedRecord
			payload  string
			failedAt int64
		)
		if err := rows.Scan(&fr.ID, &fr.Queue, &payload, &fr.Exception, &failedAt); err != nil {
			return nil, fmt.Errorf("sqlqueue: scan failed job: %w", err)
		}
		fr.Payload = []byte(payload)
		fr.FailedAt = time.Unix(failedAt, 0).UTC()
		out = append(out, &fr)
	}
	return out, rows.Err()
}

// RetryFailedJob reads the named failed_jobs row, inserts a fresh
// Pending jobs row with a new id and zero attempts, and deletes the
// failed_jobs row, all inside one transaction.
func (b *Backend) RetryFailedJob(ctx context.Context, id string) (bool, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("sqlqueue: retry failed job: begin tx: %w", err)
	}
	defer tx.Rollback()

	var queue, payload string
	err = tx.QueryRowContext(ctx, b.bind(`SELECT queue, payload FROM failed_jobs WHERE id = ?`), id).Scan(&queue, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlqueue: retry failed job: select: %w", err)
	}

	now := time.Now().UTC()
	newID := uuid.NewString()
	if _, err := tx.ExecContext(ctx, b.bind(
		`INSERT INTO jobs (id, queue, payload, attempts, reserved_at, available_at, created_at) VALUES (?, ?, ?, 0, NULL, ?, ?)`),
		newID, queue, payload, now.Unix(), now.Unix(),
	); err != nil {
		return false, fmt.Errorf("sqlqueue: retry failed job: insert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, b.bind(`DELETE FROM failed_jobs WHERE id = ?`), id); err != nil {
		return false, fmt.Errorf("sqlqueue: retry failed job: delete: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("sqlqueue: retry failed job: commit: %w", err)
	}
	return true, nil
}

// ForgetFailedJob deletes the named failed_jobs row.
func (b *Backend) ForgetFailedJob(ctx context.Context, id string) (bool, error) {
	result, err := b.exec(ctx, `DELETE FROM failed_jobs WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("sqlqueue: forget failed job: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlqueue: forget failed job rows affected: %w", err)
	}
	return n > 0, nil
}

// ClearFailedJobs deletes every failed_jobs row.
func (b *Backend) ClearFailedJobs(ctx context.Context) (int, error) {
	result, err := b.exec(ctx, `DELETE FROM failed_jobs`)
	if err != nil {
		return 0, fmt.Errorf("sqlqueue: clear failed jobs: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlqueue: clear failed jobs rows affected: %w", err)
	}
	return int(n), nil
}

// Close closes the underlying *sql.DB.
func (b *Backend) Close() error {
	return b.db.Close()
}
