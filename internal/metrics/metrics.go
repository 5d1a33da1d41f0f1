package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds the backend collectors. It is separate from the prometheus
// default registry so CLI runs can write a clean textfile.
var Registry = prometheus.NewRegistry()

var (
	// RunsTotal counts engine invocations by outcome.
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prophet_backend_runs_total",
			Help: "Number of inference engine runs by backend, operation and status.",
		},
		[]string{"backend", "operation", "status"},
	)

	// RunSeconds is a histogram of engine run latency.
	RunSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "prophet_backend_run_seconds",
			Help:    "Histogram of inference engine run latency (seconds).",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 300},
		},
		[]string{"backend", "operation"},
	)

	// FallbacksTotal counts optimizer fallbacks.
	FallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prophet_backend_fallbacks_total",
			Help: "Number of optimizations retried with the fallback algorithm.",
		},
		[]string{"backend"},
	)
)

func init() {
	Registry.MustRegister(RunsTotal, RunSeconds, FallbacksTotal)
}

// RecordRun records the outcome and latency of an engine run.
func RecordRun(backend, operation string, started time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	RunsTotal.WithLabelValues(backend, operation, status).Inc()
	RunSeconds.WithLabelValues(backend, operation).Observe(time.Since(started).Seconds())
}

// RecordFallback records a retry with the fallback algorithm.
func RecordFallback(backend string) {
	FallbacksTotal.WithLabelValues(backend).Inc()
}

// WriteTextfile writes the collectors in the node exporter textfile format.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, Registry)
}
