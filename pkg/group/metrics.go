package group

import (
	"context"
	"time"
)

// Metrics observes the traffic of a Transport.
//
// This is optional: a nil Metrics disables collection. The prometheus
// implementation lives in pkg/metrics.
type Metrics interface {
	// RecordSend records one payload sent under tag.
	RecordSend(tag Tag, bytes int)

	// RecordReceive records one payload received under tag, with the time
	// spent blocked waiting for it.
	RecordReceive(tag Tag, bytes int, wait time.Duration)

	// RecordError records a failed send or receive.
	RecordError(op string, tag Tag)
}

type instrumented struct {
	Transport
	metrics Metrics
}

// WithMetrics wraps t so that every Send and Receive is observed by m.
// A nil m returns t unchanged.
func WithMetrics(t Transport, m Metrics) Transport {
	if m == nil {
		return t
	}
	return &instrumented{Transport: t, metrics: m}
}

func (i *instrumented) Send(ctx context.Context, to int, tag Tag, payload []byte) error {
	if err := i.Transport.Send(ctx, to, tag, payload); err != nil {
		i.metrics.RecordError("send", tag)
		return err
	}
	i.metrics.RecordSend(tag, len(payload))
	return nil
}

func (i *instrumented) Receive(ctx context.Context, from int, tag Tag) ([]byte, error) {
	start := time.Now()
	payload, err := i.Transport.Receive(ctx, from, tag)
	if err != nil {
		i.metrics.RecordError("receive", tag)
		return nil, err
	}
	i.metrics.RecordReceive(tag, len(payload), time.Since(start))
	return payload, nil
}
