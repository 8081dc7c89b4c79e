package metrics

import (
	"encoding/json"
	"net/http"

	"github.com/ErlanBelekov/pipeline-scheduler/internal/health"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Dispatcher metrics

	DispatcherTicksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "dispatcher_ticks_total",
		Help:      "Total dispatcher ticks.",
	})

	DispatcherTickErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "dispatcher_tick_errors_total",
		Help:      "Ticks skipped because due entries could not be computed.",
	})

	FiringsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "firings_total",
		Help:      "Total job firings handed to the worker pool, by trigger.",
	}, []string{"trigger"})

	DispatchLag = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "scheduler",
		Name:      "dispatch_lag_seconds",
		Help:      "Time between a scheduled instant and its dispatch.",
		Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2, 5, 10},
	})

	RegisteredSchedules = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "scheduler",
		Name:      "registered_schedules",
		Help:      "Number of schedule entries in the registry.",
	})

	// Runner metrics

	JobAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "job_attempts_total",
		Help:      "Total job execution attempts, by outcome.",
	}, []string{"outcome"})

	JobRetriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "job_retries_total",
		Help:      "Total retries scheduled after a failed attempt.",
	})

	JobsFailedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "jobs_failed_total",
		Help:      "Jobs that exhausted their retries.",
	}, []string{"job_id"})

	JobExecutionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "scheduler",
		Name:      "job_execution_duration_seconds",
		Help:      "Duration of a single job attempt.",
		Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 300},
	}, []string{"outcome"})

	JobRecordsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "job_records_total",
		Help:      "Records processed by successful job runs.",
	}, []string{"job_id"})

	JobsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "scheduler",
		Name:      "jobs_in_flight",
		Help:      "Number of job runs currently executing or waiting for a worker slot.",
	})

	// Lifecycle

	StartTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "scheduler",
		Name:      "start_time_seconds",
		Help:      "Unix timestamp when the scheduler started.",
	})

	DrainDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "scheduler",
		Name:      "drain_duration_seconds",
		Help:      "Time spent draining in-flight runs on shutdown.",
		Buckets:   []float64{.1, .5, 1, 5, 10, 30, 60, 300},
	})

	// Reaper metrics

	RunsPrunedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "runs_pruned_total",
		Help:      "Run history rows removed by the reaper.",
	})

	// HTTP metrics

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "scheduler",
		Name:      "http_request_duration_seconds",
		Help:      "Admin API request latency by route and status class.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "route", "status_class"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "http_requests_total",
		Help:      "Admin API requests by route and status class.",
	}, []string{"method", "route", "status_class"})
)

func Register() {
	prometheus.MustRegister(
		DispatcherTicksTotal,
		DispatcherTickErrorsTotal,
		FiringsTotal,
		DispatchLag,
		RegisteredSchedules,
		JobAttemptsTotal,
		JobRetriesTotal,
		JobsFailedTotal,
		JobExecutionDuration,
		JobRecordsTotal,
		JobsInFlight,
		StartTime,
		DrainDuration,
		RunsPrunedTotal,
		HTTPRequestDuration,
		HTTPRequestsTotal,
	)
}

// NewServer serves /metrics plus the liveness and readiness probes.
func NewServer(addr string, checker *health.Checker) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeHealth(w, checker.Liveness(r.Context()))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		writeHealth(w, checker.Readiness(r.Context()))
	})
	return &http.Server{Addr: addr, Handler: mux}
}

func writeHealth(w http.ResponseWriter, result health.HealthResult) {
	status := http.StatusOK
	if result.Status != "up" {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(result)
}
