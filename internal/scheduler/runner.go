package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/ErlanBelekov/pipeline-scheduler/internal/domain"
	ctxlog "github.com/ErlanBelekov/pipeline-scheduler/internal/log"
	"github.com/ErlanBelekov/pipeline-scheduler/internal/metrics"
	"github.com/ErlanBelekov/pipeline-scheduler/internal/repository"
)

const recordTimeout = 5 * time.Second

// FailureNotifier is told about jobs that exhausted their retries.
type FailureNotifier interface {
	NotifyJobFailed(ctx context.Context, run *domain.JobRun, attempts int) error
}

// Runner executes one firing with retries. Runners share nothing mutable
// except the logger and the run repository, both safe for concurrent use.
type Runner struct {
	logger   *slog.Logger
	defaults domain.RetryPolicy
	runs     repository.RunRepository
	notifier FailureNotifier

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	rand  func() float64
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

func WithRunRepository(repo repository.RunRepository) RunnerOption {
	return func(r *Runner) { r.runs = repo }
}

func WithFailureNotifier(n FailureNotifier) RunnerOption {
	return func(r *Runner) { r.notifier = n }
}

// WithSleep replaces the backoff wait, mainly for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) RunnerOption {
	return func(r *Runner) { r.sleep = sleep }
}

func WithRunnerClock(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

func NewRunner(logger *slog.Logger, defaults domain.RetryPolicy, opts ...RunnerOption) *Runner {
	if defaults.MaxAttempts < 1 {
		defaults.MaxAttempts = 1
	}
	r := &Runner{
		logger:   logger.With("component", "runner"),
		defaults: defaults,
		now:      time.Now,
		sleep:    sleepContext,
		rand:     rand.Float64,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the firing until it succeeds, is cancelled or exhausts its
// retry policy, and returns the last attempt. Failures never escape.
func (r *Runner) Run(ctx context.Context, f domain.Firing) domain.JobRun {
	policy := f.Retry.Merge(r.defaults)

	for attempt := 1; ; attempt++ {
		run, err := r.attempt(ctx, f, attempt)
		r.record(ctx, &run)

		if run.Outcome != domain.OutcomeFailure {
			return run
		}

		runCtx := ctxlog.WithRun(ctx, run.JobID, run.ID)
		if attempt >= policy.MaxAttempts {
			r.fail(runCtx, &run, attempt, err)
			return run
		}

		delay := RetryDelay(policy, attempt)
		if policy.Jitter {
			delay = jitter(delay, policy.MaxDelay, r.rand)
		}
		metrics.JobRetriesTotal.Inc()
		r.logger.WarnContext(runCtx, "job attempt failed, will retry",
			"attempt", attempt,
			"max_attempts", policy.MaxAttempts,
			"retry_in", delay,
			"error", run.Error,
		)

		if err := r.sleep(ctx, delay); err != nil {
			r.logger.WarnContext(runCtx, "job run cancelled during backoff", "attempt", attempt, "error", err)
			run.Outcome = domain.OutcomeCancelled
			return run
		}
	}
}

func (r *Runner) attempt(ctx context.Context, f domain.Firing, attempt int) (domain.JobRun, error) {
	run := domain.JobRun{
		ID:          ctxlog.NewID(),
		JobID:       f.JobID,
		Attempt:     attempt,
		ScheduledAt: f.ScheduledAt,
		StartedAt:   r.now(),
	}
	runCtx := ctxlog.WithRun(ctx, f.JobID, run.ID)

	r.logger.InfoContext(runCtx, "job started",
		"attempt", attempt,
		"scheduled_at", f.ScheduledAt,
		"manual", f.Manual,
	)

	res, err := execute(runCtx, f, attempt)
	run.EndedAt = r.now()

	switch {
	case err == nil:
		run.Outcome = domain.OutcomeSuccess
		run.Records = res.Records
		metrics.JobRecordsTotal.WithLabelValues(f.JobID).Add(float64(res.Records))
		r.logger.InfoContext(runCtx, "job completed",
			"attempt", attempt,
			"duration", run.Duration(),
			"records", res.Records,
		)
	case ctx.Err() != nil:
		run.Outcome = domain.OutcomeCancelled
		run.Error = err.Error()
		r.logger.WarnContext(runCtx, "job cancelled", "attempt", attempt, "duration", run.Duration(), "error", err)
	default:
		run.Outcome = domain.OutcomeFailure
		run.Error = err.Error()
	}

	metrics.JobAttemptsTotal.WithLabelValues(string(run.Outcome)).Inc()
	metrics.JobExecutionDuration.WithLabelValues(string(run.Outcome)).Observe(run.Duration().Seconds())
	return run, err
}

// execute runs the job handle, turning a panic into an attempt failure.
func execute(ctx context.Context, f domain.Firing, attempt int) (res domain.Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &domain.JobExecutionError{JobID: f.JobID, Attempt: attempt, Err: fmt.Errorf("panic: %v", p)}
		}
	}()

	res, err = f.Job.Run(ctx)
	if err != nil {
		return res, &domain.JobExecutionError{JobID: f.JobID, Attempt: attempt, Err: err}
	}
	return res, nil
}

func (r *Runner) fail(ctx context.Context, run *domain.JobRun, attempts int, cause error) {
	err := fmt.Errorf("%w: %s after %d attempt(s): %w", domain.ErrJobFailed, run.JobID, attempts, cause)
	metrics.JobsFailedTotal.WithLabelValues(run.JobID).Inc()
	r.logger.ErrorContext(ctx, "job permanently failed",
		"attempts", attempts,
		"duration", run.Duration(),
		"error", err,
	)

	if r.notifier == nil {
		return
	}
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := r.notifier.NotifyJobFailed(notifyCtx, run, attempts); err != nil {
		r.logger.ErrorContext(ctx, "notify job failure", "error", err)
	}
}

// record appends the attempt to the run history. It must outlive a
// cancelled run context so the cancellation itself is kept.
func (r *Runner) record(ctx context.Context, run *domain.JobRun) {
	if r.runs == nil {
		return
	}
	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := r.runs.Create(recCtx, run); err != nil {
		r.logger.ErrorContext(ctxlog.WithRun(ctx, run.JobID, run.ID), "record job run", "error", err)
	}
}

// RetryDelay is the wait after failed attempt n (1-indexed):
// min(MaxDelay, MinDelay * 2^(n-1)). A zero MaxDelay means no cap.
func RetryDelay(p domain.RetryPolicy, n int) time.Duration {
	if n < 1 {
		n = 1
	}
	d := float64(p.MinDelay) * math.Pow(2, float64(n-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	if d >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// jitter spreads d by ±25% and keeps it under maxDelay.
func jitter(d, maxDelay time.Duration, rnd func() float64) time.Duration {
	if d <= 0 {
		return d
	}
	d += time.Duration((rnd()*0.5 - 0.25) * float64(d))
	if maxDelay > 0 && d > maxDelay {
		d = maxDelay
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

