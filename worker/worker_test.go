package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezkam/chronoqueue/manager"
)

// fakeProcessor hands out a scripted sequence of (worked, err) results
// per queue, recording call order so the priority-scan can be asserted.
type fakeProcessor struct {
	mu      sync.Mutex
	script  map[string][]bool // queue -> results, consumed front-to-back; false once exhausted
	calls   []string
	failAll error
}

func (p *fakeProcessor) ProcessNextJob(_ context.Context, queue string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, queue)
	if p.failAll != nil {
		return false, p.failAll
	}
	results := p.script[queue]
	if len(results) == 0 {
		return false, nil
	}
	worked := results[0]
	p.script[queue] = results[1:]
	return worked, nil
}

func TestRunScansQueuesInPriorityOrderAndRestartsOnWork(t *testing.T) {
	p := &fakeProcessor{script: map[string][]bool{
		"high": {false, true, false},
		"low":  {true},
	}}
	w := New(p, Config{Queues: []string{"high", "low"}, MaxJobs: 2, SleepSeconds: 1})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	w.Run(ctx)

	assert.Equal(t, 2, w.JobsProcessed())
	// high empty -> low worked -> restart from high -> high worked -> stop (MaxJobs=2)
	assert.Equal(t, []string{"high", "low", "high"}, p.calls)
}

func TestRunStopWhenEmptyExitsWithoutSleeping(t *testing.T) {
	p := &fakeProcessor{script: map[string][]bool{}}
	w := New(p, Config{Queues: []string{"default"}, StopWhenEmpty: true, SleepSeconds: 60})

	done := make(chan struct{})
	go func() {
		w.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return promptly with StopWhenEmpty and an empty queue")
	}
	assert.Equal(t, 0, w.JobsProcessed())
}

func TestStopEndsRunLoopCooperatively(t *testing.T) {
	p := &fakeProcessor{script: map[string][]bool{"default": {}}}
	w := New(p, Config{Queues: []string{"default"}, SleepSeconds: 60})

	done := make(chan struct{})
	go func() {
		w.Run(context.Background())
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	w.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

func TestRunEmitsStartedAndStoppedEvents(t *testing.T) {
	p := &fakeProcessor{script: map[string][]bool{}}
	w := New(p, Config{Queues: []string{"default"}, StopWhenEmpty: true})

	var started []manager.WorkerStartedEvent
	var stopped []manager.WorkerStoppedEvent
	w.Subscribe(&captureListener{onStarted: func(e manager.WorkerStartedEvent) { started = append(started, e) },
		onStopped: func(e manager.WorkerStoppedEvent) { stopped = append(stopped, e) }})

	w.Run(context.Background())

	require.Len(t, started, 1)
	assert.Equal(t, w.ID(), started[0].WorkerID)
	require.Len(t, stopped, 1)
	assert.Equal(t, w.ID(), stopped[0].WorkerID)
}

func TestRunContinuesAfterProcessorError(t *testing.T) {
	p := &fakeProcessor{failAll: errors.New("backend down")}
	w := New(p, Config{Queues: []string{"default"}, SleepSeconds: 60})

	go w.Run(context.Background())
	time.Sleep(10 * time.Millisecond)
	w.Stop()
	time.Sleep(10 * time.Millisecond)

	p.mu.Lock()
	calls := len(p.calls)
	p.mu.Unlock()
	assert.Greater(t, calls, 0, "a ProcessNextJob error must not abort the run loop")
}

// captureListener implements manager.Listener, forwarding only the
// events this test cares about to the supplied callbacks.
type captureListener struct {
	manager.NopListener
	onStarted func(manager.WorkerStartedEvent)
	onStopped func(manager.WorkerStoppedEvent)
}

func (c *captureListener) WorkerStarted(_ context.Context, e manager.WorkerStartedEvent) {
	if c.onStarted != nil {
		c.onStarted(e)
	}
}

func (c *captureListener) WorkerStopped(_ context.Context, e manager.WorkerStoppedEvent) {
	if c.onStopped != nil {
		c.onStopped(e)
	}
}
