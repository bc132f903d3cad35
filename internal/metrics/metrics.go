// Package metrics exports the judge's prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "judged_submissions_total",
			Help: "Finished submissions by terminal status",
		},
		[]string{"status"},
	)

	ExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "judged_execution_duration_ms",
			Help:    "Wall time spent in the sandbox in milliseconds",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
		[]string{"language", "phase"}, // phase: "compile" or "run"
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "judged_queue_depth",
			Help: "Jobs waiting in the judge queue",
		},
	)

	ActiveWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "judged_active_workers",
			Help: "Workers currently executing a job",
		},
	)

	SandboxFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "judged_sandbox_failures_total",
			Help: "Sandbox infrastructure failures, not judged outcomes",
		},
	)

	WatchdogReaped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "judged_watchdog_reaped_total",
			Help: "Stale RUNNING submissions reaped by the watchdog",
		},
		[]string{"action"}, // action: "requeued" or "failed"
	)

	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "judged_rate_limit_hits_total",
			Help: "Submissions rejected by rate limiting",
		},
	)
)
