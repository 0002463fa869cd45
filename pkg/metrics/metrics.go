package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Coordinator metrics
	TasksCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fuzzfleet_tasks_created_total",
			Help: "Total number of scan tasks created",
		},
	)

	TasksCompletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fuzzfleet_tasks_completed_total",
			Help: "Total number of scan tasks completed",
		},
	)

	ResultsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fuzzfleet_results_processed_total",
			Help: "Total number of worker results processed by status",
		},
		[]string{"status"},
	)

	FindingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fuzzfleet_findings_total",
			Help: "Total number of findings saved by severity",
		},
		[]string{"severity"},
	)

	WorkersActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fuzzfleet_workers_active",
			Help: "Number of workers with a fresh heartbeat",
		},
	)

	// Worker metrics
	FuzzerRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fuzzfleet_fuzzer_runs_total",
			Help: "Total number of fuzzer invocations by outcome",
		},
		[]string{"outcome"},
	)

	FuzzerRunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fuzzfleet_fuzzer_run_duration_seconds",
			Help:    "Wall-clock duration of fuzzer invocations",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8), // 1s .. ~4.5h
		},
	)
)

// Register registers all collectors with the default registry.
// Call once at process start.
func Register() {
	prometheus.MustRegister(
		TasksCreatedTotal,
		TasksCompletedTotal,
		ResultsProcessedTotal,
		FindingsTotal,
		WorkersActive,
		FuzzerRunsTotal,
		FuzzerRunDuration,
	)
}

// Handler returns the HTTP handler exposing the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
