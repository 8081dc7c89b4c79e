package repository

import (
	"context"
	"time"

	"github.com/ErlanBelekov/pipeline-scheduler/internal/domain"
)

type ListRunsInput struct {
	JobID string // empty = all jobs
	Limit int
}

// RunRepository stores the history of job run attempts. The scheduler only
// appends to it; nothing in the history is read back to drive scheduling.
type RunRepository interface {
	// Create appends one finished attempt.
	Create(ctx context.Context, run *domain.JobRun) error

	// List returns the most recent attempts first.
	List(ctx context.Context, input ListRunsInput) ([]*domain.JobRun, error)

	// DeleteBefore prunes attempts that ended before cutoff, at most limit rows.
	DeleteBefore(ctx context.Context, cutoff time.Time, limit int) (int, error)
}
