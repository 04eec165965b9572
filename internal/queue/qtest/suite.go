// Package qtest is a reusable compliance suite run against every
// queue.Backend variant, verifying the common contract's guarantees
// (push durability, exclusive pop, release/delete/failed semantics)
// independent of storage technology.
package qtest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezkam/chronoqueue/queue"
)

// Setup returns a fresh, empty Backend for one subtest, plus a teardown
// func invoked when the subtest finishes.
type Setup func() (queue.Backend, func())

// Run exercises the common Backend contract against setup. Callers
// invoke this once per backend variant from that package's own
// *_test.go file.
func Run(t *testing.T, setup Setup) {
	t.Run("PushThenPop", func(t *testing.T) {
		b, teardown := setup()
		defer teardown()
		ctx := context.Background()

		id, err := b.Push(ctx, "noop", map[string]any{"x": float64(1)}, "default", 0)
		require.NoError(t, err)
		require.NotEmpty(t, id)

		rec, err := b.Pop(ctx, "default", time.Minute)
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, id, rec.ID)
		assert.Equal(t, 1, rec.Attempts)
		assert.True(t, rec.Reserved())

		handler, args, err := rec.Handler()
		require.NoError(t, err)
		assert.Equal(t, "noop", handler)
		assert.Equal(t, float64(1), args["x"])
	})

	t.Run("PopExclusive", func(t *testing.T) {
		b, teardown := setup()
		defer teardown()
		ctx := context.Background()

		_, err := b.Push(ctx, "noop", nil, "default", 0)
		require.NoError(t, err)

		first, err := b.Pop(ctx, "default", time.Minute)
		require.NoError(t, err)
		require.NotNil(t, first)

		second, err := b.Pop(ctx, "default", time.Minute)
		require.NoError(t, err)
		assert.Nil(t, second, "a reserved record must not be returned by a concurrent pop")
	})

	t.Run("ConcurrentPopExclusive", func(t *testing.T) {
		b, teardown := setup()
		defer teardown()
		ctx := context.Background()

		const n = 20
		ids := make([]string, 0, n)
		for i := 0; i < n; i++ {
			id, err := b.Push(ctx, "noop", nil, "default", 0)
			require.NoError(t, err)
			ids = append(ids, id)
		}

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			seen    = make(map[string]int)
			workers = n
		)
		wg.Add(workers)
		for i := 0; i < workers; i++ {
			go func() {
				defer wg.Done()
				rec, err := b.Pop(ctx, "default", time.Minute)
				assert.NoError(t, err)
				if rec == nil {
					return
				}
				mu.Lock()
				seen[rec.ID]++
				mu.Unlock()
			}()
		}
		wg.Wait()

		require.Len(t, seen, n, "every pushed record must be delivered exactly once across concurrent workers")
		for _, id := range ids {
			count, ok := seen[id]
			require.True(t, ok, "record %s was never delivered", id)
			assert.Equal(t, 1, count, "record %s was delivered to more than one worker", id)
		}
	})

	t.Run("PopRespectsDelay", func(t *testing.T) {
		b, teardown := setup()
		defer teardown()
		ctx := context.Background()

		_, err := b.Push(ctx, "noop", nil, "default", time.Hour)
		require.NoError(t, err)

		rec, err := b.Pop(ctx, "default", time.Minute)
		require.NoError(t, err)
		assert.Nil(t, rec, "a record not yet available must not be popped")
	})

	t.Run("ReleaseReturnsToPending", func(t *testing.T) {
		b, teardown := setup()
		defer teardown()
		ctx := context.Background()

		_, err := b.Push(ctx, "noop", nil, "default", 0)
		require.NoError(t, err)
		rec, err := b.Pop(ctx, "default", time.Minute)
		require.NoError(t, err)
		require.NotNil(t, rec)

		require.NoError(t, b.Release(ctx, rec, 0))

		again, err := b.Pop(ctx, "default", time.Minute)
		require.NoError(t, err)
		require.NotNil(t, again)
		assert.Equal(t, 2, again.Attempts)
	})

	t.Run("VisibilityTimeoutReclaims", func(t *testing.T) {
		b, teardown := setup()
		defer teardown()
		ctx := context.Background()

		_, err := b.Push(ctx, "noop", nil, "default", 0)
		require.NoError(t, err)

		first, err := b.Pop(ctx, "default", 10*time.Millisecond)
		require.NoError(t, err)
		require.NotNil(t, first)

		// The relational backend stores reserved_at as whole unix
		// seconds, so the sleep must cross a second boundary for the
		// expired reservation to be visible to its sweep.
		time.Sleep(1100 * time.Millisecond)

		second, err := b.Pop(ctx, "default", 10*time.Millisecond)
		require.NoError(t, err)
		require.NotNil(t, second, "an expired reservation must become reclaimable")
		assert.GreaterOrEqual(t, second.Attempts, 2)
	})

	t.Run("DeleteRemovesRecord", func(t *testing.T) {
		b, teardown := setup()
		defer teardown()
		ctx := context.Background()

		_, err := b.Push(ctx, "noop", nil, "default", 0)
		require.NoError(t, err)
		rec, err := b.Pop(ctx, "default", time.Minute)
		require.NoError(t, err)
		require.NotNil(t, rec)

		require.NoError(t, b.Delete(ctx, rec))
		require.NoError(t, b.Delete(ctx, rec), "deleting an absent record must be a no-op")

		size, err := b.Size(ctx, "default")
		require.NoError(t, err)
		assert.Equal(t, 0, size)
	})

	t.Run("FailedMovesToFailedStorage", func(t *testing.T) {
		b, teardown := setup()
		defer teardown()
		ctx := context.Background()

		_, err := b.Push(ctx, "noop", nil, "default", 0)
		require.NoError(t, err)
		rec, err := b.Pop(ctx, "default", time.Minute)
		require.NoError(t, err)
		require.NotNil(t, rec)

		require.NoError(t, b.Failed(ctx, rec, "boom"))

		size, err := b.Size(ctx, "default")
		require.NoError(t, err)
		assert.Equal(t, 0, size)

		failed, err := b.FailedJobs(ctx)
		require.NoError(t, err)
		require.Len(t, failed, 1)
		assert.Equal(t, rec.ID, failed[0].ID)
		assert.Equal(t, "boom", failed[0].Exception)
	})

	t.Run("RetryFailedJobProducesFreshRecord", func(t *testing.T) {
		b, teardown := setup()
		defer teardown()
		ctx := context.Background()

		_, err := b.Push(ctx, "noop", nil, "default", 0)
		require.NoError(t, err)
		rec, err := b.Pop(ctx, "default", time.Minute)
		require.NoError(t, err)
		require.NoError(t, b.Failed(ctx, rec, "boom"))

		ok, err := b.RetryFailedJob(ctx, rec.ID)
		require.NoError(t, err)
		assert.True(t, ok)

		failed, err := b.FailedJobs(ctx)
		require.NoError(t, err)
		assert.Len(t, failed, 0)

		fresh, err := b.Pop(ctx, "default", time.Minute)
		require.NoError(t, err)
		require.NotNil(t, fresh)
		assert.NotEqual(t, rec.ID, fresh.ID)
		assert.Equal(t, 1, fresh.Attempts)
	})

	t.Run("ForgetFailedJobDeletes", func(t *testing.T) {
		b, teardown := setup()
		defer teardown()
		ctx := context.Background()

		_, err := b.Push(ctx, "noop", nil, "default", 0)
		require.NoError(t, err)
		rec, err := b.Pop(ctx, "default", time.Minute)
		require.NoError(t, err)
		require.NoError(t, b.Failed(ctx, rec, "boom"))

		ok, err := b.ForgetFailedJob(ctx, rec.ID)
		require.NoError(t, err)
		assert.True(t, ok)

		missing, err := b.ForgetFailedJob(ctx, rec.ID)
		require.NoError(t, err)
		assert.False(t, missing)
	})

	t.Run("ClearRemovesAllRecords", func(t *testing.T) {
		b, teardown := setup()
		defer teardown()
		ctx := context.Background()

		for i := 0; i < 3; i++ {
			_, err := b.Push(ctx, "noop", nil, "default", 0)
			require.NoError(t, err)
		}

		n, err := b.Clear(ctx, "default")
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		size, err := b.Size(ctx, "default")
		require.NoError(t, err)
		assert.Equal(t, 0, size)
	})
}
