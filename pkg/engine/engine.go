// Package engine performs the actual reads and writes of a benchmark run.
//
// The aligned strategy acts on the strided records delivered to this
// process; the two baseline strategies transfer whole files from the
// replicated file set. All strategies account bytes and time the same
// way so their totals can be compared.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/marmos91/lustrebulk/internal/ratelimiter"
	"github.com/marmos91/lustrebulk/pkg/group"
)

// Direction selects reading or writing.
type Direction int

const (
	Read Direction = iota
	Write
)

func (d Direction) String() string {
	if d == Write {
		return "write"
	}
	return "read"
}

// ParseDirection converts "read" or "write".
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "read":
		return Read, nil
	case "write":
		return Write, nil
	}
	return Read, fmt.Errorf("unknown direction %q (expected read or write)", s)
}

// DefaultBufferSize is the transfer size of the whole-file strategies.
const DefaultBufferSize = 1 << 20

// Stats accumulates the outcome of a strategy on one or more processes.
type Stats struct {
	// Bytes successfully transferred, including the bytes of files that
	// were abandoned part way.
	Bytes uint64

	// Files (or records, for the aligned strategy) processed.
	Files int

	// Errors counts abandoned files.
	Errors int

	// MetadataTime is the time spent opening and closing files.
	MetadataTime time.Duration

	// DataTime is the time spent in read and write calls.
	DataTime time.Duration
}

// Add folds o into s.
func (s *Stats) Add(o Stats) {
	s.Bytes += o.Bytes
	s.Files += o.Files
	s.Errors += o.Errors
	s.MetadataTime += o.MetadataTime
	s.DataTime += o.DataTime
}

// Engine executes transfers for one process.
type Engine struct {
	// Direction selects reads or writes.
	Direction Direction

	// BufferSize is the transfer size of whole-file strategies.
	BufferSize int

	// Limiter throttles data calls. Nil means unlimited.
	Limiter *ratelimiter.RateLimiter

	// Metrics observes file operations. Nil disables collection.
	Metrics Metrics

	// FS opens files. Nil uses the operating system.
	FS FileSystem

	// Prefix tags log messages, normally the process rank.
	Prefix string
}

func (e *Engine) fs() FileSystem {
	if e.FS == nil {
		return OSFileSystem{}
	}
	return e.FS
}

func (e *Engine) metrics() Metrics {
	if e.Metrics == nil {
		return noopMetrics{}
	}
	return e.Metrics
}

func (e *Engine) bufferSize() int {
	if e.BufferSize <= 0 {
		return DefaultBufferSize
	}
	return e.BufferSize
}

// ReduceStats sums s across every process of t. The total is returned on
// root; other processes get a zero Stats. Every process must call it.
func ReduceStats(ctx context.Context, t group.Transport, root int, s Stats) (Stats, error) {
	counts, err := group.Reduce(ctx, t, root, []int64{int64(s.Bytes), int64(s.Files), int64(s.Errors)}, group.OpSum)
	if err != nil {
		return Stats{}, fmt.Errorf("reduce counters: %w", err)
	}
	times, err := group.Reduce(ctx, t, root, []float64{s.MetadataTime.Seconds(), s.DataTime.Seconds()}, group.OpSum)
	if err != nil {
		return Stats{}, fmt.Errorf("reduce timings: %w", err)
	}
	if t.Rank() != root {
		return Stats{}, nil
	}

	return Stats{
		Bytes:        uint64(counts[0]),
		Files:        int(counts[1]),
		Errors:       int(counts[2]),
		MetadataTime: time.Duration(times[0] * float64(time.Second)),
		DataTime:     time.Duration(times[1] * float64(time.Second)),
	}, nil
}
