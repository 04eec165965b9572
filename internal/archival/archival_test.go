package archival

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rezkam/chronoqueue/manager"
)

func TestArchiverWritesFailedRecordToGCS(t *testing.T) {
	bucket := os.Getenv("TEST_GCS_BUCKET")
	if bucket == "" {
		t.Skip("TEST_GCS_BUCKET not set, skipping GCS tests")
	}

	ctx := context.Background()
	a, err := New(ctx, bucket)
	require.NoError(t, err)
	defer a.Close()

	objectName := a.objectName("job-under-test")
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = a.client.Bucket(bucket).Object(objectName).Delete(cleanupCtx)
	}()

	a.JobMaxAttemptsReached(ctx, manager.JobMaxAttemptsReachedEvent{
		JobID:       "job-under-test",
		Handler:     "send_email",
		Args:        map[string]any{"to": "a@example.com"},
		Queue:       "default",
		Err:         context.DeadlineExceeded,
		MaxAttempts: 3,
	})

	_, err = a.client.Bucket(bucket).Object(objectName).Attrs(ctx)
	require.NoError(t, err, "the failed record object should exist after JobMaxAttemptsReached")
}
