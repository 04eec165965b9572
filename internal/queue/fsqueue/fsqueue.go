// Package fsqueue implements the filesystem queue.Backend variant: one
// directory per queue, one JSON file per Job Record, advisory exclusive
// file locks for reservation, and a temp-file-then-rename write path for
// durability. Correct on local filesystems; advisory locks are
// unreliable on many network filesystems, a caveat inherited as-is from
// the design this backend follows.
package fsqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/rezkam/chronoqueue/job"
)

const (
	recordSuffix = ".job.json"
	tmpSuffix    = ".tmp"
	failedDir    = "failed"
)

// Backend is the filesystem queue.Backend implementation rooted at a
// base directory; one subdirectory is created per queue on first use.
type Backend struct {
	baseDir string
}

// New returns a Backend rooted at baseDir, creating it if necessary.
func New(baseDir string) (*Backend, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("fsqueue: create base dir: %w", err)
	}
	return &Backend{baseDir: baseDir}, nil
}

// diskRecord is the JSON-on-disk shape of a Job Record.
type diskRecord struct {
	ID          string     `json:"id"`
	Queue       string     `json:"queue"`
	Payload     []byte     `json:"payload"`
	Attempts    int        `json:"attempts"`
	ReservedAt  *time.Time `json:"reserved_at"`
	AvailableAt time.Time  `json:"available_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

func toRecord(d diskRecord) *job.Record {
	return job.Rehydrate(d.ID, d.Queue, d.Payload, d.Attempts, d.ReservedAt, d.AvailableAt, d.CreatedAt)
}

func fromRecord(r *job.Record) diskRecord {
	return diskRecord{
		ID:          r.ID,
		Queue:       r.Queue,
		Payload:     r.Payload,
		Attempts:    r.Attempts,
		ReservedAt:  r.ReservedAt,
		AvailableAt: r.AvailableAt,
		CreatedAt:   r.CreatedAt,
	}
}

func (b *Backend) queueDir(queue string) string {
	return filepath.Join(b.baseDir, queue)
}

func (b *Backend) failedDir(queue string) string {
	return filepath.Join(b.queueDir(queue), failedDir)
}

func (b *Backend) recordPath(queue, id string) string {
	return filepath.Join(b.queueDir(queue), id+recordSuffix)
}

func (b *Backend) failedPath(queue, id string) string {
	return filepath.Join(b.failedDir(queue), id+recordSuffix)
}

// atomicWrite writes data to path via a temp file in the same directory,
// fsync, then rename, so a crash mid-write never leaves a partial file
// visible at path.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+tmpSuffix+"*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

// Push writes a new Pending record file atomically.
func (b *Backend) Push(_ context.Context, handler string, args map[string]any, queue string, delay time.Duration) (string, error) {
	rec, err := job.New(handler, args, queue, delay)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(fromRecord(rec))
	if err != nil {
		return "", fmt.Errorf("fsqueue: marshal record: %w", err)
	}
	if err := atomicWrite(b.recordPath(queue, rec.ID), data); err != nil {
		return "", fmt.Errorf("fsqueue: push: %w", err)
	}
	return rec.ID, nil
}

// Pop scans queue's directory oldest-first, skipping files it cannot
// lock, and claims the first Pending-and-due record it finds. A record
// whose reservation is older than retryAfter is treated as Pending
// (the filesystem visibility sweep).
func (b *Backend) Pop(_ context.Context, queue string, retryAfter time.Duration) (*job.Record, error) {
	dir := b.queueDir(queue)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("fsqueue: readdir: %w", err)
	}

	type candidate struct {
		path    string
		modTime time.Time
	}
	var candidates []candidate
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), recordSuffix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{path: filepath.Join(dir, e.Name()), modTime: info.ModTime()})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].modTime.Before(candidates[j].modTime) })

	now := time.Now().UTC()
	for _, c := range candidates {
		lock := flock.New(c.path)
		locked, err := lock.TryLock()
		if err != nil || !locked {
			continue // another worker holds it, or it vanished
		}

		rec, data, err := readRecord(c.path)
		if err != nil {
			lock.Unlock()
			continue
		}

		expired := rec.ReservedAt != nil && now.Sub(*rec.ReservedAt) > retryAfter
		if rec.ReservedAt != nil && !expired {
			lock.Unlock()
			continue
		}
		if rec.AvailableAt.After(now) {
			lock.Unlock()
			continue
		}

		rec.ReservedAt = &now
		rec.Attempts++
		out, err := json.Marshal(fromRecord(rec))
		if err != nil {
			lock.Unlock()
			return nil, fmt.Errorf("fsqueue: marshal claimed record: %w", err)
		}
		writeErr := os.WriteFile(c.path, out, 0o644)
		lock.Unlock()
		if writeErr != nil {
			return nil, fmt.Errorf("fsqueue: claim record: %w", writeErr)
		}
		_ = data
		return rec, nil
	}
	return nil, nil
}

func readRecord(path string) (*job.Record, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	var d diskRecord
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, nil, err
	}
	return toRecord(d), data, nil
}

// Release returns record to Pending with available_at bumped by delay.
func (b *Backend) Release(_ context.Context, record *job.Record, delay time.Duration) error {
	path := b.recordPath(record.Queue, record.ID)
	lock := flock.New(path)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("fsqueue: release lock: %w", err)
	}
	defer lock.Unlock()

	rec, _, err := readRecord(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("fsqueue: release read: %w", err)
	}
	rec.ReservedAt = nil
	rec.AvailableAt = time.Now().UTC().Add(delay)
	data, err := json.Marshal(fromRecord(rec))
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Delete removes record's file. A no-op if it is already gone.
func (b *Backend) Delete(_ context.Context, record *job.Record) error {
	err := os.Remove(b.recordPath(record.Queue, record.ID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("fsqueue: delete: %w", err)
	}
	return nil
}

// Failed writes a Failed Record file then deletes the live record file.
// The failed file is written first so a crash between the two steps
// never leaves only the Failed Record visible without the data existing
// somewhere on disk already (the write completes before the delete).
func (b *Backend) Failed(_ context.Context, record *job.Record, errDetail string) error {
	failed := job.FailedRecord{
		ID:        record.ID,
		Queue:     record.Queue,
		Payload:   record.Payload,
		Exception: errDetail,
		FailedAt:  time.Now().UTC(),
	}
	data, err := json.Marshal(failed)
	if err != nil {
		return fmt.Errorf("fsqueue: marshal failed record: %w", err)
	}
	if err := atomicWrite(b.failedPath(record.Queue, record.ID), data); err != nil {
		return fmt.Errorf("fsqueue: write failed record: %w", err)
	}
	return b.Delete(context.Background(), record)
}

// Size counts unreserved record files in queue.
func (b *Backend) Size(_ context.Context, queue string) (int, error) {
	entries, err := os.ReadDir(b.queueDir(queue))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	count := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), recordSuffix) {
			continue
		}
		rec, _, err := readRecord(filepath.Join(b.queueDir(queue), e.Name()))
		if err != nil {
			continue
		}
		if !rec.Reserved() {
			count++
		}
	}
	return count, nil
}

// Clear deletes every record file (Pending or Reserved) in queue.
func (b *Backend) Clear(_ context.Context, queue string) (int, error) {
	entries, err := os.ReadDir(b.queueDir(queue))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), recordSuffix) {
			continue
		}
		if err := os.Remove(filepath.Join(b.queueDir(queue), e.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}

// FailedJobs walks every queue's failed/ directory and returns all
// Failed Records sorted newest-first.
func (b *Backend) FailedJobs(_ context.Context) ([]*job.FailedRecord, error) {
	queueDirs, err := os.ReadDir(b.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []*job.FailedRecord
	for _, qd := range queueDirs {
		if !qd.IsDir() {
			continue
		}
		fdir := filepath.Join(b.baseDir, qd.Name(), failedDir)
		entries, err := os.ReadDir(fdir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), recordSuffix) {
				continue
			}
			data, err := os.ReadFile(filepath.Join(fdir, e.Name()))
			if err != nil {
				continue
			}
			var fr job.FailedRecord
			if err := json.Unmarshal(data, &fr); err != nil {
				continue
			}
			out = append(out, &fr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FailedAt.After(out[j].FailedAt) })
	return out, nil
}

// RetryFailedJob re-enqueues a Failed Record found anywhere under
// baseDir as a brand-new Pending record, deleting the Failed Record.
func (b *Backend) RetryFailedJob(_ context.Context, id string) (bool, error) {
	path, fr, err := b.findFailed(id)
	if err != nil || fr == nil {
		return false, err
	}
	rec := &job.Record{
		ID:          uuid.NewString(),
		Queue:       fr.Queue,
		Payload:     fr.Payload,
		Attempts:    0,
		ReservedAt:  nil,
		AvailableAt: time.Now().UTC(),
		CreatedAt:   time.Now().UTC(),
	}
	data, err := json.Marshal(fromRecord(rec))
	if err != nil {
		return false, err
	}
	if err := atomicWrite(b.recordPath(rec.Queue, rec.ID), data); err != nil {
		return false, err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return false, err
	}
	return true, nil
}

// ForgetFailedJob deletes a Failed Record found anywhere under baseDir.
func (b *Backend) ForgetFailedJob(_ context.Context, id string) (bool, error) {
	path, fr, err := b.findFailed(id)
	if err != nil || fr == nil {
		return false, err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return false, err
	}
	return true, nil
}

func (b *Backend) findFailed(id string) (string, *job.FailedRecord, error) {
	queueDirs, err := os.ReadDir(b.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil, nil
		}
		return "", nil, err
	}
	for _, qd := range queueDirs {
		if !qd.IsDir() {
			continue
		}
		path := filepath.Join(b.baseDir, qd.Name(), failedDir, id+recordSuffix)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var fr job.FailedRecord
		if err := json.Unmarshal(data, &fr); err != nil {
			continue
		}
		return path, &fr, nil
	}
	return "", nil, nil
}

// ClearFailedJobs deletes every Failed Record under every queue.
func (b *Backend) ClearFailedJobs(_ context.Context) (int, error) {
	queueDirs, err := os.ReadDir(b.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	removed := 0
	for _, qd := range queueDirs {
		if !qd.IsDir() {
			continue
		}
		fdir := filepath.Join(b.baseDir, qd.Name(), failedDir)
		entries, err := os.ReadDir(fdir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if err := os.Remove(filepath.Join(fdir, e.Name())); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}

// Close is a no-op: the filesystem backend owns no long-lived handles
// beyond per-operation file locks.
func (b *Backend) Close() error { return nil }
