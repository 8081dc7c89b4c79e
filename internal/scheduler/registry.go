package scheduler

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ErlanBelekov/pipeline-scheduler/internal/cronspec"
	"github.com/ErlanBelekov/pipeline-scheduler/internal/domain"
	"github.com/ErlanBelekov/pipeline-scheduler/internal/metrics"
)

type entry struct {
	domain.ScheduleEntry
	schedule cronspec.Schedule
}

// Registry holds the parsed schedule of every registered job. The dispatcher
// is the only caller that advances fire times; other callers only read.
type Registry struct {
	mu       sync.RWMutex
	entries  map[string]*entry
	now      func() time.Time
	lastTick time.Time
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithClock overrides the time source used at registration.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// EntryOption configures a single registration.
type EntryOption func(*domain.ScheduleEntry)

// WithRetryPolicy attaches a per-job retry policy. Zero fields fall back to
// the runner's defaults.
func WithRetryPolicy(p domain.RetryPolicy) EntryOption {
	return func(e *domain.ScheduleEntry) { e.Retry = p }
}

func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register validates cronExpr and adds the job with its first fire time
// strictly after now.
func (r *Registry) Register(jobID, cronExpr string, job domain.Job, opts ...EntryOption) error {
	if jobID == "" {
		return fmt.Errorf("%w: empty job id", domain.ErrInvalidSchedule)
	}
	if job == nil {
		return fmt.Errorf("%w: job %s has no handle", domain.ErrInvalidSchedule, jobID)
	}
	sched, err := cronspec.Parse(cronExpr)
	if err != nil {
		return fmt.Errorf("%w: job %s: %v", domain.ErrInvalidSchedule, jobID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[jobID]; ok {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateJob, jobID)
	}

	e := &entry{
		ScheduleEntry: domain.ScheduleEntry{
			JobID:      jobID,
			CronExpr:   cronExpr,
			Job:        job,
			NextFireAt: sched.Next(r.now()),
		},
		schedule: sched,
	}
	for _, opt := range opts {
		opt(&e.ScheduleEntry)
	}
	r.entries[jobID] = e
	metrics.RegisteredSchedules.Set(float64(len(r.entries)))
	return nil
}

// Unregister removes the job. No-op if absent.
func (r *Registry) Unregister(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, jobID)
	metrics.RegisteredSchedules.Set(float64(len(r.entries)))
}

// DueEntries returns a firing for every entry whose next fire time is at or
// before now and advances each of them to its next match strictly after now.
// Instants missed in between are skipped. A clock that moved backwards since
// the previous call yields ErrClockAnomaly and leaves the registry untouched.
func (r *Registry) DueEntries(now time.Time) ([]domain.Firing, error) {
	if now.IsZero() {
		return nil, fmt.Errorf("%w: zero time", domain.ErrClockAnomaly)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if now.Before(r.lastTick) {
		return nil, fmt.Errorf("%w: now %s is before previous tick %s",
			domain.ErrClockAnomaly, now.Format(time.RFC3339Nano), r.lastTick.Format(time.RFC3339Nano))
	}
	r.lastTick = now

	var due []domain.Firing
	for _, e := range r.entries {
		if e.NextFireAt.IsZero() || e.NextFireAt.After(now) {
			continue
		}
		due = append(due, domain.Firing{
			JobID:       e.JobID,
			Job:         e.Job,
			Retry:       e.Retry,
			ScheduledAt: e.NextFireAt,
		})
		e.NextFireAt = e.schedule.Next(now)
	}

	sort.Slice(due, func(i, j int) bool { return due[i].JobID < due[j].JobID })
	return due, nil
}

// Get returns a copy of the entry registered under jobID.
func (r *Registry) Get(jobID string) (domain.ScheduleEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[jobID]
	if !ok {
		return domain.ScheduleEntry{}, fmt.Errorf("%w: %s", domain.ErrScheduleNotFound, jobID)
	}
	return e.ScheduleEntry, nil
}

// Entries returns a snapshot of all entries sorted by job id.
func (r *Registry) Entries() []domain.ScheduleEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.ScheduleEntry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.ScheduleEntry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JobID < out[j].JobID })
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
