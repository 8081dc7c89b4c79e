package health

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Lifecycle reports whether the scheduler is still accepting ticks.
type Lifecycle interface {
	Running() bool
}

// CheckResult represents the health of a single dependency.
type CheckResult struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// HealthResult is the top-level health response.
type HealthResult struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// Checker verifies that the scheduler and its dependencies are usable.
type Checker struct {
	db        Pinger // nil when run history is kept in memory
	lifecycle Lifecycle
	logger    *slog.Logger
	gauge     *prometheus.GaugeVec
}

// NewChecker creates a health checker and registers its Prometheus gauge.
func NewChecker(db Pinger, lifecycle Lifecycle, logger *slog.Logger, reg prometheus.Registerer) *Checker {
	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "scheduler",
		Name:      "health_check_up",
		Help:      "Whether a dependency is reachable. 1 = up, 0 = down.",
	}, []string{"dependency"})
	reg.MustRegister(gauge)

	return &Checker{
		db:        db,
		lifecycle: lifecycle,
		logger:    logger.With("component", "health"),
		gauge:     gauge,
	}
}

// Liveness returns a simple "up" response if the process is running.
func (c *Checker) Liveness(_ context.Context) HealthResult {
	return HealthResult{Status: "up"}
}

// Readiness checks the scheduler state and pings every dependency.
func (c *Checker) Readiness(ctx context.Context) HealthResult {
	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	result := HealthResult{
		Status: "up",
		Checks: make(map[string]CheckResult),
	}

	if c.lifecycle != nil {
		if c.lifecycle.Running() {
			c.markUp(&result, "scheduler")
		} else {
			c.markDown(&result, "scheduler", "scheduler is shutting down")
		}
	}

	if c.db != nil {
		if err := c.db.Ping(checkCtx); err != nil {
			c.logger.Warn("postgres health check failed", "error", err)
			c.markDown(&result, "postgres", err.Error())
		} else {
			c.markUp(&result, "postgres")
		}
	}

	return result
}

func (c *Checker) markUp(result *HealthResult, dep string) {
	result.Checks[dep] = CheckResult{Status: "up"}
	c.gauge.WithLabelValues(dep).Set(1)
}

func (c *Checker) markDown(result *HealthResult, dep, reason string) {
	result.Status = "down"
	result.Checks[dep] = CheckResult{Status: "down", Error: reason}
	c.gauge.WithLabelValues(dep).Set(0)
}
