// Package memory holds in-process repository implementations used when no
// database is configured.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/ErlanBelekov/pipeline-scheduler/internal/domain"
	"github.com/ErlanBelekov/pipeline-scheduler/internal/repository"
)

const defaultListLimit = 50

// RunRepository keeps the most recent runs in memory, oldest first. Once
// capacity is reached the oldest run is evicted.
type RunRepository struct {
	mu       sync.RWMutex
	runs     []domain.JobRun
	capacity int
}

var _ repository.RunRepository = (*RunRepository)(nil)

func NewRunRepository(capacity int) *RunRepository {
	if capacity < 1 {
		capacity = 1
	}
	return &RunRepository{capacity: capacity}
}

func (r *RunRepository) Create(_ context.Context, run *domain.JobRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.runs) >= r.capacity {
		copy(r.runs, r.runs[1:])
		r.runs = r.runs[:len(r.runs)-1]
	}
	r.runs = append(r.runs, *run)
	return nil
}

func (r *RunRepository) List(_ context.Context, input repository.ListRunsInput) ([]*domain.JobRun, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.JobRun
	for i := len(r.runs) - 1; i >= 0 && len(out) < limit; i-- {
		if input.JobID != "" && r.runs[i].JobID != input.JobID {
			continue
		}
		run := r.runs[i]
		out = append(out, &run)
	}
	return out, nil
}

func (r *RunRepository) DeleteBefore(_ context.Context, cutoff time.Time, limit int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.runs[:0]
	deleted := 0
	for _, run := range r.runs {
		if deleted < limit && run.EndedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, run)
	}
	clear(r.runs[len(kept):])
	r.runs = kept
	return deleted, nil
}
