package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/pipeline-scheduler/internal/domain"
	"github.com/ErlanBelekov/pipeline-scheduler/internal/metrics"
)

// Submitter accepts firings without blocking.
type Submitter interface {
	Submit(f domain.Firing) error
}

// Dispatcher is the single loop that turns clock ticks into firings.
type Dispatcher struct {
	registry *Registry
	pool     Submitter
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time

	// consecutive ticks rejected as clock anomalies; only touched by dispatch
	anomalies int
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherClock sets the time source ticks are evaluated against. Its
// location decides which wall clock the cron fields match.
func WithDispatcherClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.now = now }
}

func NewDispatcher(registry *Registry, pool Submitter, logger *slog.Logger, interval time.Duration, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		pool:     pool,
		logger:   logger.With("component", "dispatcher"),
		interval: interval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start blocks until ctx is cancelled. Once it returns no further firings
// are submitted.
func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.logger.Info("dispatcher started", "interval", d.interval, "schedules", d.registry.Len())

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher shut down")
			return
		case <-ticker.C:
			// A tick racing with cancellation must not fire.
			if ctx.Err() != nil {
				continue
			}
			d.dispatch(ctx, d.now())
		}
	}
}

// dispatch submits every firing due at now and returns how many were handed off.
func (d *Dispatcher) dispatch(ctx context.Context, now time.Time) int {
	metrics.DispatcherTicksTotal.Inc()

	firings, err := d.registry.DueEntries(now)
	if err != nil {
		metrics.DispatcherTickErrorsTotal.Inc()
		d.anomalies++
		// A clock stepped backwards rejects every tick until it catches up
		// again, so only the first of a streak is logged at error level.
		if d.anomalies == 1 {
			d.logger.ErrorContext(ctx, "dispatcher tick skipped", "now", now, "error", err)
		} else {
			d.logger.DebugContext(ctx, "dispatcher tick skipped", "now", now, "skipped", d.anomalies, "error", err)
		}
		return 0
	}
	if d.anomalies > 0 {
		d.logger.InfoContext(ctx, "dispatcher clock recovered", "skipped_ticks", d.anomalies)
		d.anomalies = 0
	}

	submitted := 0
	for _, f := range firings {
		if err := d.pool.Submit(f); err != nil {
			continue
		}
		submitted++
		metrics.FiringsTotal.WithLabelValues("schedule").Inc()
		metrics.DispatchLag.Observe(now.Sub(f.ScheduledAt).Seconds())
	}
	if submitted > 0 {
		d.logger.DebugContext(ctx, "dispatcher fired jobs", "count", submitted)
	}
	return submitted
}

// Trigger fires a registered job once, right now, without moving its
// scheduled fire time.
func (d *Dispatcher) Trigger(ctx context.Context, jobID string) (domain.Firing, error) {
	entry, err := d.registry.Get(jobID)
	if err != nil {
		return domain.Firing{}, err
	}

	f := domain.Firing{
		JobID:       entry.JobID,
		Job:         entry.Job,
		Retry:       entry.Retry,
		ScheduledAt: d.now(),
		Manual:      true,
	}
	if err := d.pool.Submit(f); err != nil {
		return domain.Firing{}, err
	}
	metrics.FiringsTotal.WithLabelValues("manual").Inc()
	d.logger.InfoContext(ctx, "job triggered manually", "job_id", jobID)
	return f, nil
}

