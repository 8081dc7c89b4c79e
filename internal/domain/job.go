package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrJobFailed = errors.New("job failed after exhausting retries")

// Job is the opaque unit of work a schedule entry points at.
type Job interface {
	Run(ctx context.Context) (Result, error)
}

// JobFunc adapts a plain function to Job.
type JobFunc func(ctx context.Context) (Result, error)

func (f JobFunc) Run(ctx context.Context) (Result, error) { return f(ctx) }

type Result struct {
	Records int64
}

// RetryPolicy controls how a failing job is re-executed. MaxAttempts counts
// every execution, including the first one.
type RetryPolicy struct {
	MaxAttempts int
	MinDelay    time.Duration
	MaxDelay    time.Duration
	Jitter      bool
}

// Merge fills the zero fields of p from def. A zero field cannot override a
// non-zero default, and Jitter can only be switched on.
func (p RetryPolicy) Merge(def RetryPolicy) RetryPolicy {
	if p.MaxAttempts == 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.MinDelay == 0 {
		p.MinDelay = def.MinDelay
	}
	if p.MaxDelay == 0 {
		p.MaxDelay = def.MaxDelay
	}
	if !p.Jitter {
		p.Jitter = def.Jitter
	}
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	return p
}

type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeFailure   Outcome = "failure"
	OutcomeCancelled Outcome = "cancelled"
)

// JobRun records one execution attempt.
type JobRun struct {
	ID          string
	JobID       string
	Attempt     int
	ScheduledAt time.Time
	StartedAt   time.Time
	EndedAt     time.Time
	Outcome     Outcome
	Error       string
	Records     int64
}

func (r *JobRun) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

// JobExecutionError wraps the failure of a single attempt.
type JobExecutionError struct {
	JobID   string
	Attempt int
	Err     error
}

func (e *JobExecutionError) Error() string {
	return fmt.Sprintf("job %s attempt %d: %v", e.JobID, e.Attempt, e.Err)
}

func (e *JobExecutionError) Unwrap() error { return e.Err }
