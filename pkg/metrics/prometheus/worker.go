// Package prometheus implements the metrics interfaces with
// prometheus/client_golang collectors registered on the global registry.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/fsbridge/pkg/metrics"
)

// workerMetrics is the Prometheus implementation of metrics.WorkerMetrics.
type workerMetrics struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	bytesTransferred *prometheus.CounterVec
	uploadsTotal     *prometheus.CounterVec
	cacheLookups     *prometheus.CounterVec
	searchDuration   prometheus.Histogram
	searchTimeouts   prometheus.Counter
	activePeers      prometheus.Gauge
	rateLimited      prometheus.Counter
}

// NewWorkerMetrics creates a new Prometheus-backed WorkerMetrics instance.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not called).
func NewWorkerMetrics() metrics.WorkerMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopWorkerMetrics()
	}

	reg := metrics.GetRegistry()

	return &workerMetrics{
		requestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fsbridge_requests_total",
				Help: "Total number of protocol requests by operation and status",
			},
			[]string{"op", "status", "error_code"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "fsbridge_request_duration_milliseconds",
				Help: "Duration of protocol requests in milliseconds",
				Buckets: []float64{
					1,     // 1ms
					10,    // 10ms
					100,   // 100ms
					1000,  // 1s
					10000, // 10s
				},
			},
			[]string{"op"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fsbridge_bytes_transferred_total",
				Help: "Total payload bytes transferred by direction",
			},
			[]string{"direction"},
		),
		uploadsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fsbridge_uploads_total",
				Help: "Total number of finished upload sessions by outcome",
			},
			[]string{"outcome"},
		),
		cacheLookups: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fsbridge_upload_cache_lookups_total",
				Help: "Total number of upload cache checks by result",
			},
			[]string{"result"},
		),
		searchDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "fsbridge_search_duration_seconds",
				Help: "Duration of file searches in seconds",
				Buckets: []float64{
					0.01, // 10ms
					0.1,  // 100ms
					0.5,  // 500ms
					1,    // 1s
					5,    // 5s
					10,   // 10s
				},
			},
		),
		searchTimeouts: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "fsbridge_search_timeouts_total",
				Help: "Total number of searches stopped by their deadline",
			},
		),
		activePeers: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "fsbridge_active_peers",
				Help: "Current number of connected peers",
			},
		),
		rateLimited: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "fsbridge_requests_rate_limited_total",
				Help: "Total number of requests rejected by the per-peer rate limit",
			},
		),
	}
}

func (m *workerMetrics) RecordRequest(op string, duration time.Duration, errorCode string) {
	status := "success"
	if errorCode != "" {
		status = "error"
	}

	m.requestsTotal.WithLabelValues(op, status, errorCode).Inc()
	m.requestDuration.WithLabelValues(op).Observe(duration.Seconds() * 1000) // Convert to milliseconds
}

func (m *workerMetrics) RecordBytesTransferred(direction string, bytes int64) {
	m.bytesTransferred.WithLabelValues(direction).Add(float64(bytes))
}

func (m *workerMetrics) RecordUpload(outcome string) {
	m.uploadsTotal.WithLabelValues(outcome).Inc()
}

func (m *workerMetrics) RecordCacheLookup(result string) {
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *workerMetrics) RecordSearch(duration time.Duration, timedOut bool) {
	m.searchDuration.Observe(duration.Seconds())
	if timedOut {
		m.searchTimeouts.Inc()
	}
}

func (m *workerMetrics) SetActivePeers(count int32) {
	m.activePeers.Set(float64(count))
}

func (m *workerMetrics) RecordRateLimited() {
	m.rateLimited.Inc()
}
