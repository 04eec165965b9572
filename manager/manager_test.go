package manager

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezkam/chronoqueue/internal/queue/fsqueue"
	"github.com/rezkam/chronoqueue/registry"
)

type stubHandler struct {
	calls int
	err   error
	panic any
}

func (h *stubHandler) Name() string { return "stub" }

func (h *stubHandler) Execute(context.Context, map[string]any) (any, error) {
	h.calls++
	if h.panic != nil {
		panic(h.panic)
	}
	if h.err != nil {
		return nil, h.err
	}
	return "ok", nil
}

func newTestManager(t *testing.T, cfg Config, h *stubHandler) *Manager {
	t.Helper()
	dir, err := os.MkdirTemp("", "manager-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	backend, err := fsqueue.New(dir)
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	reg := registry.New()
	reg.Register("stub", func() (registry.Handler, error) { return h, nil })

	return New(cfg, backend, reg)
}

type capturingListener struct {
	NopListener
	processed []JobProcessedEvent
	failed    []JobFailedEvent
	maxed     []JobMaxAttemptsReachedEvent
}

func (l *capturingListener) JobProcessed(_ context.Context, e JobProcessedEvent) {
	l.processed = append(l.processed, e)
}

func (l *capturingListener) JobFailed(_ context.Context, e JobFailedEvent) {
	l.failed = append(l.failed, e)
}

func (l *capturingListener) JobMaxAttemptsReached(_ context.Context, e JobMaxAttemptsReachedEvent) {
	l.maxed = append(l.maxed, e)
}

func TestProcessNextJobSuccessDeletesAndEmits(t *testing.T) {
	h := &stubHandler{}
	m := newTestManager(t, Config{MaxAttempts: 3}, h)
	listener := &capturingListener{}
	m.Subscribe(listener)

	ctx := context.Background()
	id, err := m.Dispatch(ctx, "stub", map[string]any{"x": float64(1)}, "default", 0)
	require.NoError(t, err)

	worked, err := m.ProcessNextJob(ctx, "default")
	require.NoError(t, err)
	assert.True(t, worked)
	assert.Equal(t, 1, h.calls)

	require.Len(t, listener.processed, 1)
	assert.Equal(t, id, listener.processed[0].JobID)
	assert.Equal(t, "stub", listener.processed[0].Handler)

	worked, err = m.ProcessNextJob(ctx, "default")
	require.NoError(t, err)
	assert.False(t, worked, "the queue should be empty after the record was deleted")
}

func TestProcessNextJobEmptyQueueReportsFalse(t *testing.T) {
	h := &stubHandler{}
	m := newTestManager(t, Config{}, h)

	worked, err := m.ProcessNextJob(context.Background(), "default")
	require.NoError(t, err)
	assert.False(t, worked)
}

func TestProcessNextJobRetriesUntilMaxAttempts(t *testing.T) {
	h := &stubHandler{err: errors.New("boom")}
	m := newTestManager(t, Config{MaxAttempts: 2, RetryAfter: time.Millisecond}, h)
	listener := &capturingListener{}
	m.Subscribe(listener)

	ctx := context.Background()
	_, err := m.Dispatch(ctx, "stub", nil, "default", 0)
	require.NoError(t, err)

	worked, err := m.ProcessNextJob(ctx, "default")
	require.NoError(t, err)
	assert.True(t, worked)
	require.Len(t, listener.failed, 1, "first failure has attempts remaining, so it's released not failed")
	assert.Empty(t, listener.maxed)

	time.Sleep(5 * time.Millisecond) // let the visibility window / release delay pass

	worked, err = m.ProcessNextJob(ctx, "default")
	require.NoError(t, err)
	assert.True(t, worked)
	require.Len(t, listener.maxed, 1, "second failure exhausts MaxAttempts")
	assert.Equal(t, 2, listener.maxed[0].MaxAttempts)
}

func TestProcessNextJobRecoversPanic(t *testing.T) {
	h := &stubHandler{panic: "kaboom"}
	m := newTestManager(t, Config{MaxAttempts: 1}, h)
	listener := &capturingListener{}
	m.Subscribe(listener)

	ctx := context.Background()
	_, err := m.Dispatch(ctx, "stub", nil, "default", 0)
	require.NoError(t, err)

	worked, err := m.ProcessNextJob(ctx, "default")
	require.NoError(t, err, "a recovered panic must not escape ProcessNextJob as an error")
	assert.True(t, worked)
	require.Len(t, listener.maxed, 1)
	assert.Contains(t, listener.maxed[0].Err.Error(), "kaboom")
}

func TestDispatchNowInvokesInline(t *testing.T) {
	h := &stubHandler{}
	m := newTestManager(t, Config{}, h)

	result, err := m.DispatchNow(context.Background(), "stub", map[string]any{"x": float64(1)})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 1, h.calls)
}

func TestCalculateBackoffDoublesAndCaps(t *testing.T) {
	m := &Manager{cfg: Config{Backoff: time.Second}.withDefaults()}
	m.cfg.Backoff = time.Second

	assert.Equal(t, time.Second, m.calculateBackoff(1))
	assert.Equal(t, 2*time.Second, m.calculateBackoff(2))
	assert.Equal(t, 4*time.Second, m.calculateBackoff(3))
	assert.Equal(t, maxBackoff, m.calculateBackoff(1000))
}

func TestCalculateBackoffZeroDisablesDelay(t *testing.T) {
	m := &Manager{cfg: Config{}.withDefaults()}
	assert.Equal(t, time.Duration(0), m.calculateBackoff(5))
}

func TestHandleFailureUnknownHandlerStillRecorded(t *testing.T) {
	reg := registry.New() // no "ghost" factory registered
	dir, err := os.MkdirTemp("", "manager-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	backend, err := fsqueue.New(dir)
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	m := New(Config{MaxAttempts: 1}, backend, reg)
	listener := &capturingListener{}
	m.Subscribe(listener)

	ctx := context.Background()
	_, err = m.Dispatch(ctx, "ghost", nil, "default", 0)
	require.NoError(t, err)

	worked, err := m.ProcessNextJob(ctx, "default")
	require.NoError(t, err)
	assert.True(t, worked)
	require.Len(t, listener.maxed, 1)
	assert.ErrorIs(t, listener.maxed[0].Err, registry.ErrHandlerNotFound)
}
