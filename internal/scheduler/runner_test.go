package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ErlanBelekov/pipeline-scheduler/internal/domain"
	"github.com/ErlanBelekov/pipeline-scheduler/internal/infrastructure/memory"
)

var errBoom = errors.New("boom")

func newTestRunner(defaults domain.RetryPolicy, sleep *recordingSleep, opts ...RunnerOption) (*Runner, *memory.RunRepository) {
	repo := memory.NewRunRepository(100)
	opts = append([]RunnerOption{WithRunRepository(repo), WithSleep(sleep.sleep)}, opts...)
	return NewRunner(discardLogger(), defaults, opts...), repo
}

func firing(jobID string, job domain.Job) domain.Firing {
	return domain.Firing{JobID: jobID, Job: job, ScheduledAt: t0}
}

func TestRun_AlwaysFailingJobExhaustsAttempts(t *testing.T) {
	var calls atomic.Int32
	job := domain.JobFunc(func(context.Context) (domain.Result, error) {
		calls.Add(1)
		return domain.Result{}, errBoom
	})

	sleep := &recordingSleep{}
	notifier := &fakeNotifier{}
	policy := domain.RetryPolicy{MaxAttempts: 4, MinDelay: time.Second, MaxDelay: 3 * time.Second}
	r, repo := newTestRunner(policy, sleep, WithFailureNotifier(notifier))

	run := r.Run(context.Background(), firing("orders", job))

	if run.Outcome != domain.OutcomeFailure {
		t.Errorf("expected failure outcome, got %s", run.Outcome)
	}
	if got := calls.Load(); got != 4 {
		t.Errorf("expected 4 executions, got %d", got)
	}

	want := []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}
	if len(sleep.delays) != len(want) {
		t.Fatalf("expected %d backoff waits, got %v", len(want), sleep.delays)
	}
	for i := range want {
		if sleep.delays[i] != want[i] {
			t.Errorf("delay %d: got %s, want %s", i, sleep.delays[i], want[i])
		}
	}

	runs := runsFor(repo, "orders")
	if len(runs) != 4 {
		t.Fatalf("expected 4 recorded attempts, got %d", len(runs))
	}
	for i, rec := range runs {
		if rec.Attempt != i+1 || rec.Outcome != domain.OutcomeFailure {
			t.Errorf("attempt %d recorded as %+v", i+1, rec)
		}
		if !strings.Contains(rec.Error, "boom") {
			t.Errorf("attempt %d error %q does not carry cause", i+1, rec.Error)
		}
	}

	if len(notifier.attempts) != 1 || notifier.attempts[0] != 4 {
		t.Errorf("expected one failure notification after 4 attempts, got %v", notifier.attempts)
	}
}

func TestRun_SucceedsAfterRetry(t *testing.T) {
	var calls atomic.Int32
	job := domain.JobFunc(func(context.Context) (domain.Result, error) {
		if calls.Add(1) == 1 {
			return domain.Result{}, errBoom
		}
		return domain.Result{Records: 42}, nil
	})

	sleep := &recordingSleep{}
	notifier := &fakeNotifier{}
	r, repo := newTestRunner(domain.RetryPolicy{MaxAttempts: 3, MinDelay: time.Second}, sleep, WithFailureNotifier(notifier))

	run := r.Run(context.Background(), firing("orders", job))

	if run.Outcome != domain.OutcomeSuccess || run.Attempt != 2 || run.Records != 42 {
		t.Errorf("unexpected final run: %+v", run)
	}
	if len(runsFor(repo, "orders")) != 2 {
		t.Errorf("expected 2 recorded attempts")
	}
	if len(notifier.runs) != 0 {
		t.Error("successful job must not notify")
	}
}

func TestRun_PanicIsAFailedAttempt(t *testing.T) {
	job := domain.JobFunc(func(context.Context) (domain.Result, error) {
		panic("nil map")
	})

	r, _ := newTestRunner(domain.RetryPolicy{MaxAttempts: 2}, &recordingSleep{})
	run := r.Run(context.Background(), firing("orders", job))

	if run.Outcome != domain.OutcomeFailure || run.Attempt != 2 {
		t.Fatalf("expected failure after 2 attempts, got %+v", run)
	}
	if !strings.Contains(run.Error, "panic: nil map") {
		t.Errorf("error %q does not mention the panic", run.Error)
	}
}

func TestRun_CancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	job := domain.JobFunc(func(context.Context) (domain.Result, error) {
		calls.Add(1)
		return domain.Result{}, errBoom
	})
	cancelOnSleep := WithSleep(func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	})

	r, repo := newTestRunner(domain.RetryPolicy{MaxAttempts: 5, MinDelay: time.Second}, &recordingSleep{}, cancelOnSleep)
	run := r.Run(ctx, firing("orders", job))

	if run.Outcome != domain.OutcomeCancelled {
		t.Errorf("expected cancelled outcome, got %s", run.Outcome)
	}
	if calls.Load() != 1 {
		t.Errorf("expected no further attempts after cancellation, got %d", calls.Load())
	}
	if runs := runsFor(repo, "orders"); len(runs) != 1 || runs[0].Outcome != domain.OutcomeFailure {
		t.Errorf("the failed attempt must be recorded as a failure, got %+v", runs)
	}
}

func TestRun_CancelledJobIsRecorded(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	job := domain.JobFunc(func(ctx context.Context) (domain.Result, error) {
		cancel()
		<-ctx.Done()
		return domain.Result{}, ctx.Err()
	})

	r, repo := newTestRunner(domain.RetryPolicy{MaxAttempts: 3}, &recordingSleep{})
	run := r.Run(ctx, firing("orders", job))

	if run.Outcome != domain.OutcomeCancelled || run.Attempt != 1 {
		t.Fatalf("unexpected run: %+v", run)
	}
	runs := runsFor(repo, "orders")
	if len(runs) != 1 || runs[0].Outcome != domain.OutcomeCancelled {
		t.Errorf("cancelled attempt must be recorded, got %+v", runs)
	}
}

func TestRun_FiringPolicyOverridesDefaults(t *testing.T) {
	var calls atomic.Int32
	job := domain.JobFunc(func(context.Context) (domain.Result, error) {
		calls.Add(1)
		return domain.Result{}, errBoom
	})

	r, _ := newTestRunner(domain.RetryPolicy{MaxAttempts: 5, MinDelay: time.Second}, &recordingSleep{})
	f := firing("orders", job)
	f.Retry = domain.RetryPolicy{MaxAttempts: 1}

	r.Run(context.Background(), f)
	if calls.Load() != 1 {
		t.Errorf("expected a single execution, got %d", calls.Load())
	}
}

func TestRetryDelay(t *testing.T) {
	p := domain.RetryPolicy{MinDelay: time.Second, MaxDelay: 10 * time.Second}
	cases := []struct {
		n    int
		want time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{500, 10 * time.Second},
	}
	for _, tc := range cases {
		if got := RetryDelay(p, tc.n); got != tc.want {
			t.Errorf("RetryDelay(%d) = %s, want %s", tc.n, got, tc.want)
		}
	}

	uncapped := domain.RetryPolicy{MinDelay: time.Second}
	if got := RetryDelay(uncapped, 200); got <= 0 {
		t.Errorf("uncapped delay overflowed: %s", got)
	}
}

func TestJitter_StaysWithinQuarterAndCap(t *testing.T) {
	d := 8 * time.Second
	if got := jitter(d, time.Minute, func() float64 { return 0 }); got != 6*time.Second {
		t.Errorf("low jitter = %s, want 6s", got)
	}
	if got := jitter(d, time.Minute, func() float64 { return 0.5 }); got != d {
		t.Errorf("mid jitter = %s, want %s", got, d)
	}
	if got := jitter(d, 9*time.Second, func() float64 { return 0.999 }); got != 9*time.Second {
		t.Errorf("jitter must be capped at max delay, got %s", got)
	}
}
