package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ErlanBelekov/pipeline-scheduler/internal/domain"
	"github.com/ErlanBelekov/pipeline-scheduler/internal/metrics"
)

// ErrDraining is returned for firings submitted once shutdown has begun.
var ErrDraining = errors.New("scheduler is draining")

const defaultAbortGrace = 5 * time.Second

// FiringRunner executes a single firing to completion.
type FiringRunner interface {
	Run(ctx context.Context, f domain.Firing) domain.JobRun
}

// Pool runs every submitted firing on its own goroutine. With a size above
// zero at most size runs execute at once; the rest wait for a slot without
// blocking the submitter.
type Pool struct {
	runner     FiringRunner
	logger     *slog.Logger
	sem        chan struct{} // nil = unbounded
	abortGrace time.Duration

	runCtx context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	draining bool
	wg       sync.WaitGroup
	inFlight atomic.Int64
}

func NewPool(runner FiringRunner, logger *slog.Logger, size int) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		runner:     runner,
		logger:     logger.With("component", "pool"),
		abortGrace: defaultAbortGrace,
		runCtx:     ctx,
		cancel:     cancel,
	}
	if size > 0 {
		p.sem = make(chan struct{}, size)
	}
	return p
}

// Submit hands f to a new goroutine and returns immediately.
func (p *Pool) Submit(f domain.Firing) error {
	p.mu.Lock()
	if p.draining {
		p.mu.Unlock()
		p.logger.Warn("firing dropped, pool is draining", "job_id", f.JobID, "scheduled_at", f.ScheduledAt)
		return ErrDraining
	}
	p.wg.Add(1)
	p.mu.Unlock()

	p.inFlight.Add(1)
	metrics.JobsInFlight.Inc()

	go func() {
		defer p.wg.Done()
		defer metrics.JobsInFlight.Dec()
		defer p.inFlight.Add(-1)

		if p.sem != nil {
			select {
			case p.sem <- struct{}{}:
				defer func() { <-p.sem }()
			case <-p.runCtx.Done():
				p.logger.Warn("firing abandoned while waiting for a worker slot", "job_id", f.JobID)
				return
			}
		}
		p.runner.Run(p.runCtx, f)
	}()
	return nil
}

// InFlight counts runs that are executing or waiting for a slot.
func (p *Pool) InFlight() int {
	return int(p.inFlight.Load())
}

// Drain stops accepting firings and waits for submitted runs to finish. If
// ctx ends first the runs are cancelled and given a short grace period to
// record their outcome; ctx's error is returned in that case.
func (p *Pool) Drain(ctx context.Context) error {
	p.mu.Lock()
	p.draining = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	p.logger.Info("draining in-flight runs", "in_flight", p.InFlight())

	select {
	case <-done:
		p.cancel()
		p.logger.Info("pool drained")
		return nil
	case <-ctx.Done():
	}

	p.logger.Warn("drain interrupted, cancelling in-flight runs", "in_flight", p.InFlight(), "error", ctx.Err())
	p.cancel()

	t := time.NewTimer(p.abortGrace)
	defer t.Stop()
	select {
	case <-done:
	case <-t.C:
		p.logger.Error("runs still active after cancellation", "in_flight", p.InFlight())
	}
	return ctx.Err()
}
