package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "customer_export",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	exportRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "customer_export",
			Name:      "export_runs_total",
			Help:      "Export workflow runs by outcome.",
		},
		[]string{"outcome"},
	)

	pollAttempts = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "customer_export",
			Name:      "poll_attempts",
			Help:      "Poll attempts spent before an export run resolved.",
			Buckets:   []float64{1, 2, 3, 5, 10, 20},
		},
	)

	downloadFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "customer_export",
			Name:      "download_fallbacks_total",
			Help:      "Download candidates that failed before one succeeded.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, exportRuns, pollAttempts, downloadFallbacks)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

// IncExportRun records one finished export workflow run.
func IncExportRun(outcome string) {
	exportRuns.WithLabelValues(outcome).Inc()
}

// ObservePollAttempts records how many poll cycles a run used.
func ObservePollAttempts(n int) {
	pollAttempts.Observe(float64(n))
}

// IncDownloadFallback counts one failed download candidate.
func IncDownloadFallback() {
	downloadFallbacks.Inc()
}
