package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/lustrebulk/pkg/bench"
)

// runMetrics is the Prometheus implementation of bench.Metrics.
type runMetrics struct {
	runsTotal   *prometheus.CounterVec
	lastBytes   *prometheus.GaugeVec
	lastSeconds *prometheus.GaugeVec
	lastErrors  *prometheus.GaugeVec
	mismatches  prometheus.Counter
}

// NewRunMetrics creates a Prometheus-backed bench.Metrics, or nil when
// metrics are disabled.
func NewRunMetrics() bench.Metrics {
	if !IsEnabled() {
		return nil
	}
	return newRunMetrics(GetRegistry())
}

func newRunMetrics(reg prometheus.Registerer) *runMetrics {
	return &runMetrics{
		runsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "lustrebulk_runs_total",
				Help: "Completed benchmark runs by strategy and direction",
			},
			[]string{"strategy", "direction"},
		),
		lastBytes: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "lustrebulk_last_run_bytes",
				Help: "Bytes transferred by the last run, summed over all processes",
			},
			[]string{"strategy", "direction"},
		),
		lastSeconds: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "lustrebulk_last_run_seconds",
				Help: "Wall time of the last run",
			},
			[]string{"strategy", "direction"},
		),
		lastErrors: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "lustrebulk_last_run_errors",
				Help: "Abandoned files in the last run, summed over all processes",
			},
			[]string{"strategy", "direction"},
		),
		mismatches: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "lustrebulk_total_mismatches_total",
				Help: "Runs whose byte total differed from the file set total",
			},
		),
	}
}

// ObserveRun records one run.
func (m *runMetrics) ObserveRun(strategy, direction string, bytes uint64, elapsed time.Duration, errors int, mismatch bool) {
	m.runsTotal.WithLabelValues(strategy, direction).Inc()
	m.lastBytes.WithLabelValues(strategy, direction).Set(float64(bytes))
	m.lastSeconds.WithLabelValues(strategy, direction).Set(elapsed.Seconds())
	m.lastErrors.WithLabelValues(strategy, direction).Set(float64(errors))
	if mismatch {
		m.mismatches.Inc()
	}
}
