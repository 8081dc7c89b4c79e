package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ErlanBelekov/pipeline-scheduler/internal/domain"
)

var t0 = time.Date(2024, 5, 10, 10, 0, 0, 0, time.UTC)

var noopJob = domain.JobFunc(func(context.Context) (domain.Result, error) {
	return domain.Result{}, nil
})

func newTestRegistry(now time.Time) *Registry {
	return NewRegistry(WithClock(func() time.Time { return now }))
}

func TestRegister_FirstFireStrictlyAfterNow(t *testing.T) {
	r := newTestRegistry(t0)
	if err := r.Register("orders", "0 */5 * * * *", noopJob); err != nil {
		t.Fatalf("register: %v", err)
	}

	e, err := r.Get("orders")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if want := t0.Add(5 * time.Minute); !e.NextFireAt.Equal(want) {
		t.Errorf("next fire %s, want %s", e.NextFireAt, want)
	}
}

func TestRegister_InvalidExpression(t *testing.T) {
	r := newTestRegistry(t0)
	for _, expr := range []string{"", "* * * * *", "61 * * * * *", "@daily", "0 0 0 30 2 *"} {
		err := r.Register("bad", expr, noopJob)
		if !errors.Is(err, domain.ErrInvalidSchedule) {
			t.Errorf("%q: expected ErrInvalidSchedule, got %v", expr, err)
		}
	}
	if r.Len() != 0 {
		t.Errorf("invalid registrations must not be kept, got %d entries", r.Len())
	}
}

func TestRegister_DuplicateKeepsFirst(t *testing.T) {
	r := newTestRegistry(t0)
	if err := r.Register("orders", "0 */5 * * * *", noopJob); err != nil {
		t.Fatalf("register: %v", err)
	}

	err := r.Register("orders", "0 0 * * * *", noopJob)
	if !errors.Is(err, domain.ErrDuplicateJob) {
		t.Fatalf("expected ErrDuplicateJob, got %v", err)
	}

	e, _ := r.Get("orders")
	if e.CronExpr != "0 */5 * * * *" {
		t.Errorf("first registration must be kept, got %q", e.CronExpr)
	}
}

func TestRegister_RetryPolicyOption(t *testing.T) {
	r := newTestRegistry(t0)
	p := domain.RetryPolicy{MaxAttempts: 7}
	if err := r.Register("orders", "0 * * * * *", noopJob, WithRetryPolicy(p)); err != nil {
		t.Fatalf("register: %v", err)
	}
	e, _ := r.Get("orders")
	if e.Retry.MaxAttempts != 7 {
		t.Errorf("expected retry policy to be attached, got %+v", e.Retry)
	}
}

func TestDueEntries_SameNowNeverFiresTwice(t *testing.T) {
	r := newTestRegistry(t0)
	_ = r.Register("orders", "0 */5 * * * *", noopJob)

	now := t0.Add(5 * time.Minute)
	first, err := r.DueEntries(now)
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(first) != 1 || !first[0].ScheduledAt.Equal(now) {
		t.Fatalf("expected one firing at %s, got %+v", now, first)
	}

	second, err := r.DueEntries(now)
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(second) != 0 {
		t.Errorf("expected no firings on repeated tick, got %d", len(second))
	}
}

func TestDueEntries_FireTimesIncreaseOnCadence(t *testing.T) {
	r := newTestRegistry(t0)
	_ = r.Register("orders", "0 */5 * * * *", noopJob)

	var fired []time.Time
	for now := t0; now.Before(t0.Add(time.Hour)); now = now.Add(time.Second) {
		firings, err := r.DueEntries(now)
		if err != nil {
			t.Fatalf("due at %s: %v", now, err)
		}
		for _, f := range firings {
			fired = append(fired, f.ScheduledAt)
		}
	}

	if len(fired) != 11 {
		t.Fatalf("expected 11 firings in the hour after registration, got %d", len(fired))
	}
	for i, at := range fired {
		if at.Unix()%300 != 0 {
			t.Errorf("firing %d at %s is not on a 5 minute boundary", i, at)
		}
		if i > 0 && !at.After(fired[i-1]) {
			t.Errorf("firing %d at %s does not follow %s", i, at, fired[i-1])
		}
	}
}

func TestDueEntries_SkipsMissedInstants(t *testing.T) {
	r := newTestRegistry(t0)
	_ = r.Register("orders", "0 */5 * * * *", noopJob)

	// Three instants (10:05, 10:10, 10:15) are overdue; only one firing is produced.
	now := t0.Add(17*time.Minute + 30*time.Second)
	firings, err := r.DueEntries(now)
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(firings) != 1 {
		t.Fatalf("expected a single firing, got %d", len(firings))
	}
	if want := t0.Add(5 * time.Minute); !firings[0].ScheduledAt.Equal(want) {
		t.Errorf("scheduled at %s, want %s", firings[0].ScheduledAt, want)
	}

	e, _ := r.Get("orders")
	if want := t0.Add(20 * time.Minute); !e.NextFireAt.Equal(want) {
		t.Errorf("next fire %s, want %s", e.NextFireAt, want)
	}
}

func TestDueEntries_OrderedByJobID(t *testing.T) {
	r := newTestRegistry(t0)
	for _, id := range []string{"c", "a", "b"} {
		_ = r.Register(id, "* * * * * *", noopJob)
	}

	firings, err := r.DueEntries(t0.Add(time.Second))
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(firings) != 3 {
		t.Fatalf("expected 3 firings, got %d", len(firings))
	}
	for i, want := range []string{"a", "b", "c"} {
		if firings[i].JobID != want {
			t.Errorf("firing %d: got %s, want %s", i, firings[i].JobID, want)
		}
	}
}

func TestDueEntries_ClockAnomalyLeavesRegistryUntouched(t *testing.T) {
	r := newTestRegistry(t0)
	_ = r.Register("orders", "0 */5 * * * *", noopJob)

	if _, err := r.DueEntries(t0.Add(time.Minute)); err != nil {
		t.Fatalf("due: %v", err)
	}
	before, _ := r.Get("orders")

	_, err := r.DueEntries(t0.Add(30 * time.Second))
	if !errors.Is(err, domain.ErrClockAnomaly) {
		t.Fatalf("expected ErrClockAnomaly, got %v", err)
	}
	if _, err := r.DueEntries(time.Time{}); !errors.Is(err, domain.ErrClockAnomaly) {
		t.Fatalf("expected ErrClockAnomaly for zero time, got %v", err)
	}

	after, _ := r.Get("orders")
	if !after.NextFireAt.Equal(before.NextFireAt) {
		t.Errorf("next fire changed from %s to %s", before.NextFireAt, after.NextFireAt)
	}

	// The clock recovering resumes normal operation.
	firings, err := r.DueEntries(t0.Add(5 * time.Minute))
	if err != nil || len(firings) != 1 {
		t.Errorf("expected recovery firing, got %d firings, err %v", len(firings), err)
	}
}

func TestUnregister(t *testing.T) {
	r := newTestRegistry(t0)
	_ = r.Register("orders", "* * * * * *", noopJob)

	r.Unregister("orders")
	r.Unregister("missing")

	if _, err := r.Get("orders"); !errors.Is(err, domain.ErrScheduleNotFound) {
		t.Errorf("expected ErrScheduleNotFound, got %v", err)
	}
	firings, _ := r.DueEntries(t0.Add(time.Minute))
	if len(firings) != 0 {
		t.Errorf("unregistered job fired")
	}
}
