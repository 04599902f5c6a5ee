// Package metrics provides Prometheus metrics collection for lustrebulk.
//
// All metrics are optional - if not initialized, components use no-op
// implementations. Benchmarks usually run without metrics; enable them to
// watch long runs from a Prometheus server.
//
// Usage:
//
//	// Initialize global registry (typically in main.go)
//	metrics.InitRegistry()
//
//	// Create metrics instances for components
//	engineMetrics := metrics.NewEngineMetrics()
//	transport = group.WithMetrics(transport, metrics.NewTransportMetrics())
//
//	// Or use nil for no-op behavior
//	e := &engine.Engine{Direction: engine.Read} // No metrics
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// registry is the global Prometheus registry for all lustrebulk metrics
	// Protected by registryOnce for write-once, read-many pattern
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry initializes the global Prometheus registry.
//
// This must be called before creating any metrics instances. It's safe to call
// multiple times - subsequent calls are ignored. The registry also carries
// the Go runtime and process collectors.
//
// If not called, GetRegistry() will return nil and all metrics constructors
// will return nil, which components treat as "no metrics".
func InitRegistry() {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
}

// GetRegistry returns the global Prometheus registry.
//
// Returns nil if InitRegistry() has not been called, indicating metrics
// are disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled returns true if metrics collection is enabled.
func IsEnabled() bool {
	return GetRegistry() != nil
}
