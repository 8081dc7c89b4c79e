package domain

import (
	"errors"
	"time"
)

var (
	ErrInvalidSchedule  = errors.New("invalid schedule")
	ErrDuplicateJob     = errors.New("job is already registered")
	ErrScheduleNotFound = errors.New("schedule not found")
	ErrClockAnomaly     = errors.New("clock anomaly")
)

// ScheduleEntry is one registered pipeline job. Only NextFireAt changes
// after registration.
type ScheduleEntry struct {
	JobID      string
	CronExpr   string
	Job        Job
	Retry      RetryPolicy
	NextFireAt time.Time
}

// Firing is a single due instant of an entry, handed to the job runner.
type Firing struct {
	JobID       string
	Job         Job
	Retry       RetryPolicy
	ScheduledAt time.Time
	Manual      bool // triggered through the admin API, not by the clock
}
