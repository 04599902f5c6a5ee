package engine

import "time"

// Metrics observes the file operations of the engine.
//
// This is optional: a nil Metrics disables collection. The prometheus
// implementation lives in pkg/metrics.
type Metrics interface {
	// ObserveMetadata records an open or close.
	ObserveMetadata(op string, duration time.Duration, err error)

	// ObserveData records one read or write call.
	ObserveData(direction string, bytes int, duration time.Duration)

	// RecordAbandoned records a file whose transfer was given up.
	RecordAbandoned(strategy string)
}

type noopMetrics struct{}

func (noopMetrics) ObserveMetadata(string, time.Duration, error) {}
func (noopMetrics) ObserveData(string, int, time.Duration)       {}
func (noopMetrics) RecordAbandoned(string)                       {}
