package syncqueue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezkam/chronoqueue/registry"
)

type recordingHandler struct {
	gotArgs map[string]any
	err     error
}

func (h *recordingHandler) Name() string { return "recording" }

func (h *recordingHandler) Execute(_ context.Context, args map[string]any) (any, error) {
	h.gotArgs = args
	if h.err != nil {
		return nil, h.err
	}
	return "ok", nil
}

func TestPushExecutesHandlerImmediately(t *testing.T) {
	h := &recordingHandler{}
	reg := registry.New()
	reg.Register("recording", func() (registry.Handler, error) { return h, nil })

	b := New(reg)
	id, err := b.Push(context.Background(), "recording", map[string]any{"x": float64(1)}, "default", 0)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, float64(1), h.gotArgs["x"])
}

func TestPushPropagatesHandlerFailure(t *testing.T) {
	boom := errors.New("boom")
	h := &recordingHandler{err: boom}
	reg := registry.New()
	reg.Register("recording", func() (registry.Handler, error) { return h, nil })

	b := New(reg)
	_, err := b.Push(context.Background(), "recording", nil, "default", 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestPushUnknownHandlerFails(t *testing.T) {
	reg := registry.New()
	b := New(reg)
	_, err := b.Push(context.Background(), "missing", nil, "default", 0)
	assert.Error(t, err)
}

func TestPopAlwaysEmpty(t *testing.T) {
	b := New(registry.New())
	rec, err := b.Pop(context.Background(), "default", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestNoOpsReportEmpty(t *testing.T) {
	b := New(registry.New())
	ctx := context.Background()

	size, err := b.Size(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, 0, size)

	n, err := b.Clear(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	failed, err := b.FailedJobs(ctx)
	require.NoError(t, err)
	assert.Empty(t, failed)

	ok, err := b.RetryFailedJob(ctx, "anything")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = b.ForgetFailedJob(ctx, "anything")
	require.NoError(t, err)
	assert.False(t, ok)

	cleared, err := b.ClearFailedJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, cleared)

	assert.NoError(t, b.Close())
}
