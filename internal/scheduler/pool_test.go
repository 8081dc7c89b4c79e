package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ErlanBelekov/pipeline-scheduler/internal/domain"
)

func TestPool_SizeLimitsConcurrentRuns(t *testing.T) {
	arrived := make(chan string, 2)
	release := make(chan struct{})

	runner, _ := newTestRunner(domain.RetryPolicy{MaxAttempts: 1}, &recordingSleep{})
	pool := NewPool(runner, discardLogger(), 1)

	start := time.Now()
	for _, id := range []string{"a", "b"} {
		if err := pool.Submit(firing(id, blockingJob(arrived, release, id))); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	if time.Since(start) > time.Second {
		t.Error("Submit must not block the caller")
	}

	<-arrived
	select {
	case id := <-arrived:
		t.Fatalf("job %s started while the only slot was busy", id)
	case <-time.After(50 * time.Millisecond):
	}
	if got := pool.InFlight(); got != 2 {
		t.Errorf("waiting runs count as in flight, got %d", got)
	}

	close(release)
	if err := pool.Drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if got := pool.InFlight(); got != 0 {
		t.Errorf("expected nothing in flight after drain, got %d", got)
	}
}

func TestPool_RejectsSubmitAfterDrain(t *testing.T) {
	runner, _ := newTestRunner(domain.RetryPolicy{MaxAttempts: 1}, &recordingSleep{})
	pool := NewPool(runner, discardLogger(), 0)

	if err := pool.Drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if err := pool.Submit(firing("orders", noopJob)); !errors.Is(err, ErrDraining) {
		t.Errorf("expected ErrDraining, got %v", err)
	}
}

func TestPool_DrainDeadlineCancelsRuns(t *testing.T) {
	arrived := make(chan string, 1)
	never := make(chan struct{})

	runner, repo := newTestRunner(domain.RetryPolicy{MaxAttempts: 3}, &recordingSleep{})
	pool := NewPool(runner, discardLogger(), 0)
	_ = pool.Submit(firing("orders", blockingJob(arrived, never, "orders")))
	<-arrived

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := pool.Drain(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	runs := runsFor(repo, "orders")
	if len(runs) != 1 || runs[0].Outcome != domain.OutcomeCancelled {
		t.Errorf("expected a single cancelled attempt, got %+v", runs)
	}
}
