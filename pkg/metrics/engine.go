package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/lustrebulk/pkg/engine"
)

// engineMetrics is the Prometheus implementation of engine.Metrics.
type engineMetrics struct {
	metadataDuration *prometheus.HistogramVec
	metadataErrors   *prometheus.CounterVec
	dataDuration     *prometheus.HistogramVec
	bytesTotal       *prometheus.CounterVec
	abandonedTotal   *prometheus.CounterVec
}

// NewEngineMetrics creates a Prometheus-backed engine.Metrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called), which
// makes the engine use its built-in no-op implementation.
func NewEngineMetrics() engine.Metrics {
	if !IsEnabled() {
		return nil
	}
	return newEngineMetrics(GetRegistry())
}

func newEngineMetrics(reg prometheus.Registerer) *engineMetrics {
	return &engineMetrics{
		metadataDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "lustrebulk_metadata_operation_duration_seconds",
				Help: "Duration of open and close calls in seconds",
				Buckets: []float64{
					0.0001, // 100us
					0.001,  // 1ms
					0.01,   // 10ms
					0.1,    // 100ms
					1.0,    // 1s
					10.0,   // 10s
				},
			},
			[]string{"operation"},
		),
		metadataErrors: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "lustrebulk_metadata_operation_errors_total",
				Help: "Failed open and close calls",
			},
			[]string{"operation"},
		),
		dataDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "lustrebulk_data_operation_duration_seconds",
				Help: "Duration of positioned read and write calls in seconds",
				Buckets: []float64{
					0.0001, // 100us
					0.001,  // 1ms
					0.005,  // 5ms
					0.025,  // 25ms
					0.1,    // 100ms
					0.5,    // 500ms
					2.5,    // 2.5s
				},
			},
			[]string{"direction"},
		),
		bytesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "lustrebulk_bytes_total",
				Help: "Bytes transferred by the I/O engine",
			},
			[]string{"direction"},
		),
		abandonedTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "lustrebulk_abandoned_files_total",
				Help: "Files whose transfer was abandoned after an error",
			},
			[]string{"strategy"},
		),
	}
}

func (m *engineMetrics) ObserveMetadata(op string, duration time.Duration, err error) {
	m.metadataDuration.WithLabelValues(op).Observe(duration.Seconds())
	if err != nil {
		m.metadataErrors.WithLabelValues(op).Inc()
	}
}

func (m *engineMetrics) ObserveData(direction string, bytes int, duration time.Duration) {
	m.dataDuration.WithLabelValues(direction).Observe(duration.Seconds())
	if bytes > 0 {
		m.bytesTotal.WithLabelValues(direction).Add(float64(bytes))
	}
}

func (m *engineMetrics) RecordAbandoned(strategy string) {
	m.abandonedTotal.WithLabelValues(strategy).Inc()
}
