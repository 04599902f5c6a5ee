package bench

import "time"

// Metrics records the outcome of each strategy run on the coordinator.
type Metrics interface {
	ObserveRun(strategy, direction string, bytes uint64, elapsed time.Duration, errors int, mismatch bool)
}

type noopMetrics struct{}

func (noopMetrics) ObserveRun(string, string, uint64, time.Duration, int, bool) {}
