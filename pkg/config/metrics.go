package config

import (
	"github.com/marmos91/fsbridge/pkg/metrics"
	promMetrics "github.com/marmos91/fsbridge/pkg/metrics/prometheus"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// WorkerMetrics is shared by adapters and engines (never nil, no-op if disabled)
	WorkerMetrics metrics.WorkerMetrics
}

// InitializeMetrics creates the metrics components selected by cfg.
//
// If metrics are enabled the global Prometheus registry is initialized and
// Prometheus-backed collectors are returned with an HTTP server. Otherwise
// the server is nil and the collectors are no-ops.
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Server.Metrics.Enabled {
		return &MetricsResult{WorkerMetrics: metrics.NewNoopWorkerMetrics()}
	}

	metrics.InitRegistry()

	return &MetricsResult{
		Server: metrics.NewServer(metrics.ServerConfig{
			Port:            cfg.Server.Metrics.Port,
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
		}),
		WorkerMetrics: promMetrics.NewWorkerMetrics(),
	}
}
