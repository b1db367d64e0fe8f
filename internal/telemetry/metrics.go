package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	ImportsStarted   = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "imports_started_total", Help: "Import jobs registered"}, []string{"import_type"})
	ImportsFinished  = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "imports_finished_total", Help: "Import jobs finalized, by terminal status"}, []string{"import_type", "status"})
	RowsProcessed    = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "import_rows_total", Help: "Rows processed, by outcome"}, []string{"import_type", "outcome"})
	CreateLatency    = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "import_create_call_seconds", Help: "Latency of remote create calls", Buckets: prometheus.DefBuckets})
	EnqueueCounter   = prometheus.NewCounter(prometheus.CounterOpts{Name: "imports_enqueued_total", Help: "Async imports handed to workers"})
	RateLimitRejects = prometheus.NewCounter(prometheus.CounterOpts{Name: "imports_rate_limit_rejects_total", Help: "Uploads rejected by rate limiter"})
	LeasesExpired    = prometheus.NewCounter(prometheus.CounterOpts{Name: "imports_lease_expired_total", Help: "Async imports failed because the worker lease expired"})
	QueueDepthGauge  = prometheus.NewGauge(prometheus.GaugeOpts{Name: "imports_queue_depth", Help: "Async imports waiting for a worker"})
	InFlightGauge    = prometheus.NewGauge(prometheus.GaugeOpts{Name: "imports_inflight", Help: "Import jobs currently executing"})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	Register()
	return promhttp.Handler()
}

// Register adds the import collectors to the default registry once.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			ImportsStarted,
			ImportsFinished,
			RowsProcessed,
			CreateLatency,
			EnqueueCounter,
			RateLimitRejects,
			LeasesExpired,
			QueueDepthGauge,
			InFlightGauge,
		)
	})
}
