// Package metrics defines the observability interfaces of the worker and
// owns the Prometheus registry they are exported through.
//
// Collection is opt-in. The serve command calls InitRegistry when
// server.metrics.enabled is set; before that, constructors in
// pkg/metrics/prometheus hand out no-op implementations and adapters and
// engines record into nothing.
//
//	metrics.InitRegistry()
//	m := prometheus.NewWorkerMetrics()
//	a, err := webrtc.New(config, m)
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Namespace prefixes every worker metric name.
const Namespace = "fsbridge"

var (
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry creates the worker registry. Later calls are no-ops.
//
// Besides the worker collectors registered by pkg/metrics/prometheus, the
// registry exports Go runtime and process statistics, so a long-running
// worker's goroutine count (one per peer session) and open file
// descriptors (one per active upload or download) are visible alongside
// the request metrics.
func InitRegistry() {
	registryOnce.Do(func() {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: Namespace}),
		)
		registry = reg
	})
}

// GetRegistry returns the worker registry, or nil while metrics are
// disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled reports whether InitRegistry has run.
func IsEnabled() bool {
	return GetRegistry() != nil
}
