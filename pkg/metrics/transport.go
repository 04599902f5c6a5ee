package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/lustrebulk/pkg/group"
)

// transportMetrics is the Prometheus implementation of group.Metrics.
type transportMetrics struct {
	messagesTotal *prometheus.CounterVec
	bytesTotal    *prometheus.CounterVec
	receiveWait   *prometheus.HistogramVec
	errorsTotal   *prometheus.CounterVec
}

// NewTransportMetrics creates a Prometheus-backed group.Metrics.
//
// Returns nil if metrics are not enabled, in which case group.WithMetrics
// leaves the transport unwrapped.
func NewTransportMetrics() group.Metrics {
	if !IsEnabled() {
		return nil
	}
	return newTransportMetrics(GetRegistry())
}

func newTransportMetrics(reg prometheus.Registerer) *transportMetrics {
	return &transportMetrics{
		messagesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "lustrebulk_transport_messages_total",
				Help: "Messages exchanged between processes by direction and tag",
			},
			[]string{"direction", "tag"},
		),
		bytesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "lustrebulk_transport_bytes_total",
				Help: "Payload bytes exchanged between processes by direction and tag",
			},
			[]string{"direction", "tag"},
		),
		receiveWait: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lustrebulk_transport_receive_wait_seconds",
				Help:    "Time spent blocked waiting for a message",
				Buckets: prometheus.ExponentialBuckets(0.0001, 10, 7),
			},
			[]string{"tag"},
		),
		errorsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "lustrebulk_transport_errors_total",
				Help: "Failed sends and receives",
			},
			[]string{"operation", "tag"},
		),
	}
}

func (m *transportMetrics) RecordSend(tag group.Tag, bytes int) {
	m.messagesTotal.WithLabelValues("send", tag.String()).Inc()
	m.bytesTotal.WithLabelValues("send", tag.String()).Add(float64(bytes))
}

func (m *transportMetrics) RecordReceive(tag group.Tag, bytes int, wait time.Duration) {
	m.messagesTotal.WithLabelValues("receive", tag.String()).Inc()
	m.bytesTotal.WithLabelValues("receive", tag.String()).Add(float64(bytes))
	m.receiveWait.WithLabelValues(tag.String()).Observe(wait.Seconds())
}

func (m *transportMetrics) RecordError(op string, tag group.Tag) {
	m.errorsTotal.WithLabelValues(op, tag.String()).Inc()
}
