package scheduler

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/ErlanBelekov/pipeline-scheduler/internal/metrics"
)

type State int32

const (
	StateRunning State = iota
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Coordinator owns the process lifecycle: it runs the dispatcher until the
// first shutdown signal, then drains the pool.
type Coordinator struct {
	dispatcher   *Dispatcher
	pool         *Pool
	logger       *slog.Logger
	drainTimeout time.Duration // 0 = wait forever

	state atomic.Int32
}

func NewCoordinator(dispatcher *Dispatcher, pool *Pool, logger *slog.Logger, drainTimeout time.Duration) *Coordinator {
	return &Coordinator{
		dispatcher:   dispatcher,
		pool:         pool,
		logger:       logger.With("component", "coordinator"),
		drainTimeout: drainTimeout,
	}
}

func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// Running implements health.Lifecycle.
func (c *Coordinator) Running() bool {
	return c.State() == StateRunning
}

// Start blocks until the scheduler has stopped. The first value on signals,
// or the end of ctx, starts a graceful shutdown; a second signal while
// draining cancels in-flight runs. The returned error is non-nil only when
// the drain was cut short.
func (c *Coordinator) Start(ctx context.Context, signals <-chan os.Signal) error {
	metrics.StartTime.SetToCurrentTime()

	dispatchCtx, stopDispatch := context.WithCancel(ctx)
	defer stopDispatch()

	dispatcherDone := make(chan struct{})
	go func() {
		defer close(dispatcherDone)
		c.dispatcher.Start(dispatchCtx)
	}()

	select {
	case sig := <-signals:
		c.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		c.logger.Info("context cancelled, shutting down")
	case <-dispatcherDone:
	}

	c.state.Store(int32(StateDraining))
	stopDispatch()
	<-dispatcherDone

	var (
		drainCtx context.Context
		cancel   context.CancelFunc
	)
	if c.drainTimeout > 0 {
		drainCtx, cancel = context.WithTimeout(context.Background(), c.drainTimeout)
	} else {
		drainCtx, cancel = context.WithCancel(context.Background())
	}
	defer cancel()

	go func() {
		select {
		case sig := <-signals:
			c.logger.Warn("second signal received, forcing shutdown", "signal", sig.String())
			cancel()
		case <-drainCtx.Done():
		}
	}()

	start := time.Now()
	err := c.pool.Drain(drainCtx)
	metrics.DrainDuration.Observe(time.Since(start).Seconds())

	c.state.Store(int32(StateStopped))
	c.logger.Info("scheduler stopped", "drain_duration", time.Since(start))
	return err
}
