package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ErlanBelekov/pipeline-scheduler/internal/domain"
	"github.com/ErlanBelekov/pipeline-scheduler/internal/infrastructure/memory"
	"github.com/ErlanBelekov/pipeline-scheduler/internal/repository"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeNotifier struct {
	mu       sync.Mutex
	runs     []domain.JobRun
	attempts []int
}

func (n *fakeNotifier) NotifyJobFailed(_ context.Context, run *domain.JobRun, attempts int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.runs = append(n.runs, *run)
	n.attempts = append(n.attempts, attempts)
	return nil
}

// recordingSleep captures backoff delays without waiting.
type recordingSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func runsFor(repo *memory.RunRepository, jobID string) []*domain.JobRun {
	runs, _ := repo.List(context.Background(), repository.ListRunsInput{JobID: jobID, Limit: 1000})
	// oldest first reads more naturally in assertions
	for i, j := 0, len(runs)-1; i < j; i, j = i+1, j-1 {
		runs[i], runs[j] = runs[j], runs[i]
	}
	return runs
}
