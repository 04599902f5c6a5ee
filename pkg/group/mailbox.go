package group

import (
	"context"
	"sync"
)

type mailboxKey struct {
	from int
	tag  Tag
}

// Mailbox queues received payloads per (source, tag) until they are taken.
//
// Queues are unbounded: a sender never waits for the receiver to call
// Take. Transports put payloads from their reader goroutines and serve
// Receive with Take.
type Mailbox struct {
	mu      sync.Mutex
	queues  map[mailboxKey][][]byte
	waiters map[mailboxKey]chan struct{}
	sources map[int]error
	err     error
	done    chan struct{}
}

// NewMailbox returns an empty mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{
		queues:  make(map[mailboxKey][][]byte),
		waiters: make(map[mailboxKey]chan struct{}),
		sources: make(map[int]error),
		done:    make(chan struct{}),
	}
}

// Put enqueues payload. It fails once the mailbox has failed.
func (m *Mailbox) Put(from int, tag Tag, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}

	key := mailboxKey{from, tag}
	m.queues[key] = append(m.queues[key], payload)
	if ch, ok := m.waiters[key]; ok {
		close(ch)
		delete(m.waiters, key)
	}
	return nil
}

// Take removes and returns the oldest payload from (from, tag), blocking
// until one arrives, ctx is done, or the mailbox (or that source) fails.
// Payloads queued before a failure are still returned.
func (m *Mailbox) Take(ctx context.Context, from int, tag Tag) ([]byte, error) {
	key := mailboxKey{from, tag}

	for {
		m.mu.Lock()
		if q := m.queues[key]; len(q) > 0 {
			payload := q[0]
			q[0] = nil
			if len(q) == 1 {
				delete(m.queues, key)
			} else {
				m.queues[key] = q[1:]
			}
			m.mu.Unlock()
			return payload, nil
		}
		if m.err != nil {
			err := m.err
			m.mu.Unlock()
			return nil, err
		}
		if err, ok := m.sources[from]; ok {
			m.mu.Unlock()
			return nil, err
		}
		ch, ok := m.waiters[key]
		if !ok {
			ch = make(chan struct{})
			m.waiters[key] = ch
		}
		m.mu.Unlock()

		select {
		case <-ch:
		case <-m.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// FailSource marks a single source as gone. Takes from it return err once
// its queued payloads are drained.
func (m *Mailbox) FailSource(from int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sources[from]; ok {
		return
	}
	m.sources[from] = err
	for key, ch := range m.waiters {
		if key.from == from {
			close(ch)
			delete(m.waiters, key)
		}
	}
}

// Fail aborts the mailbox: every blocked and future Take returns err once
// the queues it reads are empty. Only the first error is kept.
func (m *Mailbox) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return
	}
	m.err = err
	close(m.done)
}

// Err returns the error the mailbox failed with, if any.
func (m *Mailbox) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}
