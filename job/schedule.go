package job

// ScheduleEntry is a static scheduling record loaded once at startup:
// a name, a cron expression, a handler name, an argument bag, and an
// optional target queue. Read-only after construction.
type ScheduleEntry struct {
	Name    string
	Cron    string
	Handler string
	Args    map[string]any
	Queue   string // empty means "invoke inline, no queue attached"
}

// Queued reports whether firing this entry should go through a Queue
// Manager rather than running the handler inline in the scheduler process.
func (e ScheduleEntry) Queued() bool {
	return e.Queue != ""
}
