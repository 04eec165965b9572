package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezkam/chronoqueue/manager"
)

type fakeDispatcher struct {
	mu         sync.Mutex
	dispatched []string // handler names passed to Dispatch
	inline     []string // handler names passed to DispatchNow
	dispatchErr error
	inlineErr   error
}

func (d *fakeDispatcher) Dispatch(_ context.Context, handler string, _ map[string]any, _ string, _ time.Duration) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dispatched = append(d.dispatched, handler)
	if d.dispatchErr != nil {
		return "", d.dispatchErr
	}
	return "job-id", nil
}

func (d *fakeDispatcher) DispatchNow(_ context.Context, handler string, _ map[string]any) (any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inline = append(d.inline, handler)
	if d.inlineErr != nil {
		return nil, d.inlineErr
	}
	return nil, nil
}

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestAddRejectsInvalidCron(t *testing.T) {
	s := New(&fakeDispatcher{})
	err := s.Add("bad", "not a cron", "H", nil, "")
	assert.Error(t, err)
	assert.Empty(t, s.Entries())
}

func TestPollFiresDueEntryInlineWhenNoQueue(t *testing.T) {
	d := &fakeDispatcher{}
	s := New(d)
	s.Now = fixedNow(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, s.Add("A", "* * * * *", "H", nil, ""))

	fired := s.Poll(context.Background())
	assert.Equal(t, 1, fired)
	assert.Equal(t, []string{"H"}, d.inline)
	assert.Empty(t, d.dispatched)
}

func TestPollFiresDueEntryThroughQueueWhenQueueSet(t *testing.T) {
	d := &fakeDispatcher{}
	s := New(d)
	s.Now = fixedNow(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, s.Add("A", "* * * * *", "H", nil, "emails"))

	fired := s.Poll(context.Background())
	assert.Equal(t, 1, fired)
	assert.Equal(t, []string{"H"}, d.dispatched)
	assert.Empty(t, d.inline)
}

func TestPollSingleFirePerMinute(t *testing.T) {
	d := &fakeDispatcher{}
	s := New(d)
	now := time.Date(2024, 1, 1, 0, 0, 30, 0, time.UTC)
	s.Now = fixedNow(now)
	require.NoError(t, s.Add("A", "* * * * *", "H", nil, ""))

	assert.Equal(t, 1, s.Poll(context.Background()), "first poll within the minute fires")

	s.Now = fixedNow(now.Add(15 * time.Second))
	assert.Equal(t, 0, s.Poll(context.Background()), "second poll within the same minute must not re-fire")

	s.Now = fixedNow(now.Add(35 * time.Second)) // crosses into the next minute
	assert.Equal(t, 1, s.Poll(context.Background()), "poll in the following minute fires again")
}

func TestPollSkipsNotYetDueEntry(t *testing.T) {
	d := &fakeDispatcher{}
	s := New(d)
	s.Now = fixedNow(time.Date(2024, 1, 1, 0, 30, 0, 0, time.UTC))
	require.NoError(t, s.Add("midnight-only", "0 0 * * *", "H", nil, ""))

	assert.Equal(t, 0, s.Poll(context.Background()))
	assert.Empty(t, d.inline)
}

func TestPollSwallowsDispatchErrors(t *testing.T) {
	d := &fakeDispatcher{dispatchErr: assertError("boom")}
	s := New(d)
	s.Now = fixedNow(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, s.Add("A", "* * * * *", "H", nil, "q"))

	assert.NotPanics(t, func() {
		fired := s.Poll(context.Background())
		assert.Equal(t, 1, fired, "fire count reflects due-ness, not dispatch success")
	})
}

func TestPollEmitsSchedulerJobTriggered(t *testing.T) {
	d := &fakeDispatcher{}
	s := New(d)
	s.Now = fixedNow(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, s.Add("A", "* * * * *", "H", nil, "q"))

	var events []manager.SchedulerJobTriggeredEvent
	s.Subscribe(&triggerListener{onTriggered: func(e manager.SchedulerJobTriggeredEvent) { events = append(events, e) }})

	s.Poll(context.Background())
	require.Len(t, events, 1)
	assert.Equal(t, "A", events[0].Name)
	assert.Equal(t, "H", events[0].HandlerClass)
}

func TestRunForeverDebugStopsAfterOneTick(t *testing.T) {
	d := &fakeDispatcher{}
	s := New(d)
	s.Now = fixedNow(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	s.SetDebug(true)
	require.NoError(t, s.Add("A", "* * * * *", "H", nil, ""))

	done := make(chan struct{})
	go func() {
		s.RunForever(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunForever with SetDebug(true) did not return after one tick")
	}
	assert.Equal(t, []string{"H"}, d.inline)
}

type triggerListener struct {
	manager.NopListener
	onTriggered func(manager.SchedulerJobTriggeredEvent)
}

func (l *triggerListener) SchedulerJobTriggered(_ context.Context, e manager.SchedulerJobTriggeredEvent) {
	if l.onTriggered != nil {
		l.onTriggered(e)
	}
}

type assertError string

func (e assertError) Error() string { return string(e) }
