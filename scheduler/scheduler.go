// Package scheduler evaluates cron expressions against wall-clock time
// and, for each due Schedule Entry, either invokes its handler inline or
// dispatches it through a Queue Manager. It owns no durable state: a
// missed tick while the process is down is lost, by design (spec.md
// §4.6 "Scheduler is not durable").
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rezkam/chronoqueue/job"
	"github.com/rezkam/chronoqueue/manager"
)

// Dispatcher is the subset of *manager.Manager a Scheduler depends on.
type Dispatcher interface {
	Dispatch(ctx context.Context, handler string, args map[string]any, queue string, delay time.Duration) (string, error)
	DispatchNow(ctx context.Context, handler string, args map[string]any) (any, error)
}

type entry struct {
	job.ScheduleEntry
	schedule cron.Schedule
}

// Scheduler owns an in-memory list of Schedule Entries and their
// compiled cron expressions. One Scheduler is a single serial executor:
// running multiple Scheduler processes against the same schedule
// duplicates firings, since there is no leader election.
type Scheduler struct {
	dispatcher Dispatcher

	mu      sync.Mutex
	entries []*entry
	// lastFired tracks, per entry name, the last minute that entry
	// fired, guarding against re-firing within the same minute when the
	// poll interval is shorter than a minute. In-memory only: it is not
	// persisted across restarts (spec.md §9 Open Questions — donor
	// behavior is ephemeral, and the specification leaves cross-restart
	// dedup unspecified).
	lastFired map[string]time.Time

	interval time.Duration
	debug    bool

	// Now returns the current time; overridable in tests.
	Now func() time.Time

	listeners []manager.Listener
}

// New constructs an empty Scheduler dispatching through d.
func New(d Dispatcher) *Scheduler {
	return &Scheduler{
		dispatcher: d,
		lastFired:  make(map[string]time.Time),
		interval:   time.Minute,
		Now:        time.Now,
	}
}

// Subscribe registers l to receive SchedulerJobTriggered events.
func (s *Scheduler) Subscribe(l manager.Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// standardParser accepts the 5-field minute/hour/dom/month/dow form
// described in spec.md §4.6 (Sunday=0, *, ranges, lists, steps), with no
// seconds field and no predefined descriptors.
var standardParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Add appends a Schedule Entry. An invalid cron expression is rejected
// here, at load time, not deferred to the first poll.
func (s *Scheduler) Add(name, cronExpr, handler string, args map[string]any, queue string) error {
	sched, err := standardParser.Parse(cronExpr)
	if err != nil {
		return fmt.Errorf("scheduler: entry %q: invalid cron expression %q: %w", name, cronExpr, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, &entry{
		ScheduleEntry: job.ScheduleEntry{
			Name:    name,
			Cron:    cronExpr,
			Handler: handler,
			Args:    args,
			Queue:   queue,
		},
		schedule: sched,
	})
	return nil
}

// AddEntries appends every job.ScheduleEntry in entries, in order,
// stopping at the first invalid cron expression.
func (s *Scheduler) AddEntries(entries []job.ScheduleEntry) error {
	for _, e := range entries {
		if err := s.Add(e.Name, e.Cron, e.Handler, e.Args, e.Queue); err != nil {
			return err
		}
	}
	return nil
}

// Entries returns a snapshot of the loaded Schedule Entries, for
// diagnostics (e.g. cmd/scheduler's startup log of the entry count).
func (s *Scheduler) Entries() []job.ScheduleEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]job.ScheduleEntry, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.ScheduleEntry
	}
	return out
}

// SetInterval sets the sleep interval RunForever uses between polls.
func (s *Scheduler) SetInterval(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interval = d
}

// SetDebug, when true, makes RunForever return after a single tick,
// for tests.
func (s *Scheduler) SetDebug(debug bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.debug = debug
}

// isDue reports whether sched has a firing time inside the one-minute
// window starting at minute (which callers pass already truncated to
// the minute). cron.Schedule.Next returns the earliest match strictly
// after its argument, so the window is due iff that match lands exactly
// on minute.
func isDue(sched cron.Schedule, minute time.Time) bool {
	return sched.Next(minute.Add(-time.Minute)).Equal(minute)
}

// Poll evaluates every entry's cron expression against the current
// minute and fires each due entry exactly once for that minute, even if
// Poll is called multiple times within it (P-Scheduler-Single-Fire-Per-Minute).
// It returns the count of due entries.
func (s *Scheduler) Poll(ctx context.Context) int {
	now := s.Now()
	minute := now.Truncate(time.Minute)

	s.mu.Lock()
	due := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		if !isDue(e.schedule, minute) {
			continue
		}
		if last, ok := s.lastFired[e.Name]; ok && last.Equal(minute) {
			continue
		}
		s.lastFired[e.Name] = minute
		due = append(due, e)
	}
	listeners := append([]manager.Listener(nil), s.listeners...)
	s.mu.Unlock()

	for _, e := range due {
		s.fire(ctx, e)
		manager.Notify(ctx, listeners, func(l manager.Listener) {
			l.SchedulerJobTriggered(ctx, manager.SchedulerJobTriggeredEvent{
				Name:         e.Name,
				HandlerClass: e.Handler,
				Cron:         e.Cron,
				Queue:        e.Queue,
			})
		})
	}
	return len(due)
}

// fire runs one due entry: inline, synchronously in this process, when
// no queue is attached, or dispatched through the Manager when one is.
// Exceptions from either path are logged and swallowed; they must not
// abort the tick.
func (s *Scheduler) fire(ctx context.Context, e *entry) {
	if !e.Queued() {
		if _, err := s.dispatcher.DispatchNow(ctx, e.Handler, e.Args); err != nil {
			slog.ErrorContext(ctx, "scheduler: inline invocation failed", "entry", e.Name, "handler", e.Handler, "error", err)
		}
		return
	}
	if _, err := s.dispatcher.Dispatch(ctx, e.Handler, e.Args, e.Queue, 0); err != nil {
		slog.ErrorContext(ctx, "scheduler: dispatch failed", "entry", e.Name, "handler", e.Handler, "queue", e.Queue, "error", err)
	}
}

// RunForever polls on a fixed interval until ctx is cancelled. With
// SetDebug(true), it polls exactly once and returns, for tests.
func (s *Scheduler) RunForever(ctx context.Context) {
	s.mu.Lock()
	interval := s.interval
	debug := s.debug
	s.mu.Unlock()

	for {
		s.Poll(ctx)
		if debug {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}
