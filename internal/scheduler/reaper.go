package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/pipeline-scheduler/internal/metrics"
	"github.com/ErlanBelekov/pipeline-scheduler/internal/repository"
)

const reapBatchSize = 500

// Reaper prunes run history older than the retention window.
type Reaper struct {
	repo      repository.RunRepository
	logger    *slog.Logger
	interval  time.Duration
	retention time.Duration
	now       func() time.Time
}

func NewReaper(repo repository.RunRepository, logger *slog.Logger, interval, retention time.Duration) *Reaper {
	return &Reaper{
		repo:      repo,
		logger:    logger.With("component", "reaper"),
		interval:  interval,
		retention: retention,
		now:       time.Now,
	}
}

func (r *Reaper) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("reaper started", "interval", r.interval, "retention", r.retention)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reaper shut down")
			return
		case <-ticker.C:
			r.reap(ctx)
		}
	}
}

// reap deletes expired runs in batches until a short batch comes back.
func (r *Reaper) reap(ctx context.Context) int {
	cutoff := r.now().Add(-r.retention)
	total := 0
	for {
		n, err := r.repo.DeleteBefore(ctx, cutoff, reapBatchSize)
		if err != nil {
			r.logger.ErrorContext(ctx, "reaper: prune runs", "error", err)
			break
		}
		total += n
		if n < reapBatchSize || ctx.Err() != nil {
			break
		}
	}
	if total > 0 {
		metrics.RunsPrunedTotal.Add(float64(total))
		r.logger.InfoContext(ctx, "reaper: pruned runs", "count", total, "cutoff", cutoff)
	}
	return total
}
