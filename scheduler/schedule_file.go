package scheduler

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/rezkam/chronoqueue/job"
	"github.com/rezkam/chronoqueue/registry"
)

// scheduleFile is the YAML shape described in spec.md §6: a top-level
// "schedule" key mapping entry names to their cron expression, handler
// class, optional args, and optional queue.
type scheduleFile struct {
	Schedule map[string]scheduleFileEntry `yaml:"schedule"`
}

type scheduleFileEntry struct {
	Class string         `yaml:"class"`
	Cron  string         `yaml:"cron"`
	Args  map[string]any `yaml:"args"`
	Queue string         `yaml:"queue"`
}

// LoadEntries reads a schedule YAML document at path and returns the
// Schedule Entries it describes, in name-sorted order for deterministic
// polling. Each entry's handler class must already be registered in
// reg: an unknown class is rejected here, at load time, the same way an
// invalid cron expression is rejected at Scheduler.Add time rather than
// deferred to the first poll. A missing or malformed file is the
// caller's to handle: per spec.md §7 ("Schedule file missing or
// malformed: logged; the Scheduler starts with an empty entry set; not
// fatal"), the caller should log the returned error and proceed with no
// entries — it should not treat this as fatal unless it chooses to.
func LoadEntries(path string, reg *registry.Registry) ([]job.ScheduleEntry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scheduler: read schedule file %q: %w", path, err)
	}

	var doc scheduleFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("scheduler: parse schedule file %q: %w", path, err)
	}

	names := make([]string, 0, len(doc.Schedule))
	for name := range doc.Schedule {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]job.ScheduleEntry, 0, len(names))
	for _, name := range names {
		e := doc.Schedule[name]
		if e.Class == "" {
			return nil, fmt.Errorf("scheduler: entry %q: class is required", name)
		}
		if e.Cron == "" {
			return nil, fmt.Errorf("scheduler: entry %q: cron is required", name)
		}
		if !reg.Has(e.Class) {
			return nil, fmt.Errorf("scheduler: entry %q: %w: %s", name, registry.ErrHandlerNotFound, e.Class)
		}
		entries = append(entries, job.ScheduleEntry{
			Name:    name,
			Cron:    e.Cron,
			Handler: e.Class,
			Args:    e.Args,
			Queue:   e.Queue,
		})
	}
	return entries, nil
}

// LoadFile reads a schedule YAML document at path via LoadEntries and
// adds every entry it describes to s. A convenience wrapper over
// LoadEntries for callers that want to load straight into a live
// Scheduler, e.g. cmd/scheduler.
func (s *Scheduler) LoadFile(path string, reg *registry.Registry) error {
	entries, err := LoadEntries(path, reg)
	if err != nil {
		return err
	}
	return s.AddEntries(entries)
}
