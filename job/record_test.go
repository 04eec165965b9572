package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecordIsUnreservedAndRespectsDelay(t *testing.T) {
	before := time.Now().UTC()
	rec, err := New("noop", nil, "default", time.Minute)
	require.NoError(t, err)

	assert.Equal(t, 0, rec.Attempts)
	assert.False(t, rec.Reserved())
	assert.NotEmpty(t, rec.ID)
	assert.True(t, rec.AvailableAt.After(before.Add(30*time.Second)))
}

func TestRecordHandlerDecodesPushedPayload(t *testing.T) {
	rec, err := New("send_email", map[string]any{"to": "a@example.com"}, "default", 0)
	require.NoError(t, err)

	handler, args, err := rec.Handler()
	require.NoError(t, err)
	assert.Equal(t, "send_email", handler)
	assert.Equal(t, "a@example.com", args["to"])
}

func TestRehydrateReservedReflectsReservedAt(t *testing.T) {
	now := time.Now().UTC()
	rec := Rehydrate("id-1", "default", []byte(`{"class":"noop","args":{}}`), 1, &now, now, now)
	assert.True(t, rec.Reserved())

	rec2 := Rehydrate("id-2", "default", []byte(`{"class":"noop","args":{}}`), 0, nil, now, now)
	assert.False(t, rec2.Reserved())
}

func TestScheduleEntryQueuedReflectsQueueField(t *testing.T) {
	inline := ScheduleEntry{Name: "A", Cron: "* * * * *", Handler: "H"}
	assert.False(t, inline.Queued())

	queued := ScheduleEntry{Name: "B", Cron: "* * * * *", Handler: "H", Queue: "emails"}
	assert.True(t, queued.Queued())
}
