package config

import (
	"fmt"

	"github.com/marmos91/lustrebulk/pkg/bench"
	"github.com/marmos91/lustrebulk/pkg/engine"
	"github.com/marmos91/lustrebulk/pkg/group"
	"github.com/marmos91/lustrebulk/pkg/metrics"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// Engine observes file operations (nil if disabled)
	Engine engine.Metrics

	// Transport observes message traffic (nil if disabled)
	Transport group.Metrics

	// Runs records strategy totals on the coordinator (nil if disabled)
	Runs bench.Metrics
}

// InitializeMetrics creates and initializes all metrics components based on configuration.
//
// If metrics are enabled in the configuration:
//   - Initializes the global Prometheus registry
//   - Creates the metrics HTTP server on port + localRank, so that every
//     process of a node gets its own endpoint
//   - Creates Prometheus-backed metrics instances for all components
//
// If metrics are disabled every field is nil, which components treat as
// no-op (zero overhead).
//
// Metric instances register on the global registry, so with several
// ranks in one OS process they must be created once and shared.
func InitializeMetrics(cfg *Config, localRank int) *MetricsResult {
	if !cfg.Metrics.Enabled {
		return &MetricsResult{}
	}

	metrics.InitRegistry()

	return &MetricsResult{
		Server: metrics.NewServer(metrics.ServerConfig{
			Port:  cfg.Metrics.Port + localRank,
			Label: fmt.Sprintf("local rank %d", localRank),
		}),
		Engine:    metrics.NewEngineMetrics(),
		Transport: metrics.NewTransportMetrics(),
		Runs:      metrics.NewRunMetrics(),
	}
}
