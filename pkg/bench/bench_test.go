package bench

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/marmos91/lustrebulk/pkg/content"
	"github.com/marmos91/lustrebulk/pkg/engine"
	"github.com/marmos91/lustrebulk/pkg/group/loopback"
	"github.com/marmos91/lustrebulk/pkg/report"
	"github.com/marmos91/lustrebulk/pkg/scan"
	"github.com/marmos91/lustrebulk/pkg/scan/static"
	"github.com/marmos91/lustrebulk/pkg/topology"
)

var fixtureSizes = []uint64{0, 1, 1048575, 1048576, 3145729}

func fixture(t *testing.T) (string, uint64) {
	t.Helper()

	dir := t.TempDir()
	var total uint64
	for i, size := range fixtureSizes {
		path := filepath.Join(dir, fmt.Sprintf("file-%d", i))
		require.NoError(t, os.WriteFile(path, make([]byte, size), 0644))
		total += size
	}
	return dir, total
}

type recordingMetrics struct {
	mu   sync.Mutex
	runs []string
}

func (m *recordingMetrics) ObserveRun(strategy, _ string, _ uint64, _ time.Duration, _ int, _ bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, strategy)
}

// runJob runs a Runner on every rank of a loopback network and returns
// the coordinator's report.
func runJob(t *testing.T, size, nodes int, dir engine.Direction, roots []string, configure func(*Runner)) (*report.Report, error) {
	t.Helper()

	hosts := loopback.Nodes(size, nodes)
	network := loopback.NewWithHosts(hosts)
	defer network.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	collector := static.New(static.Config{StripeCount: 3, StripeSize: 1 << 20, TargetCount: 3})

	var rep *report.Report
	g, gctx := errgroup.WithContext(ctx)
	for rank := 0; rank < size; rank++ {
		rank := rank
		g.Go(func() error {
			topo, err := topology.Build(hosts, rank)
			if err != nil {
				return err
			}
			r := &Runner{
				Transport: network.Endpoint(rank),
				Topology:  topo,
				Engine:    &engine.Engine{Direction: dir, Prefix: fmt.Sprintf("[%d]", rank)},
				TestCount: 1,
				BlobLimit: 64,
			}
			if rank == 0 {
				r.Scanner = scan.New(collector)
			}
			if configure != nil {
				configure(r)
			}

			got, err := r.Run(gctx, roots)
			if rank == 0 {
				rep = got
			} else if got != nil {
				return fmt.Errorf("rank %d returned a report", rank)
			}
			return err
		})
	}
	return rep, g.Wait()
}

func TestRunRead(t *testing.T) {
	dir, total := fixture(t)
	m := &recordingMetrics{}
	var listed int

	rep, err := runJob(t, 4, 2, engine.Read, []string{dir}, func(r *Runner) {
		r.TestCount = 2
		r.Single = true
		r.JobID = "job-1"
		r.Metrics = m
		r.Listing = func(content.TargetID, content.StridedContent) { listed++ }
	})
	require.NoError(t, err)
	require.NotNil(t, rep)

	assert.Equal(t, "job-1", rep.Job)
	assert.Equal(t, "read", rep.Direction)
	assert.Equal(t, 2, rep.Nodes)
	assert.Equal(t, 4, rep.Processes)
	assert.Equal(t, len(fixtureSizes), rep.Files)
	assert.Equal(t, total, rep.Bytes)
	assert.Equal(t, 3, rep.Targets)
	assert.Equal(t, rep.Records, listed)

	require.Len(t, rep.Results, 6)
	for _, res := range rep.Results {
		assert.Equal(t, total, res.Bytes, "%s iteration %d", res.Strategy, res.Iteration)
		assert.False(t, res.Mismatch)
		assert.Zero(t, res.Errors)
	}
	assert.Equal(t, engine.StrategyAligned, rep.Results[0].Strategy)
	assert.Equal(t, engine.StrategyRoundRobin, rep.Results[1].Strategy)
	assert.Equal(t, engine.StrategySingle, rep.Results[2].Strategy)
	assert.Equal(t, 1, rep.Results[3].Iteration)

	assert.Len(t, m.runs, 6, "metrics only recorded on the coordinator")
}

func TestRunWrite(t *testing.T) {
	dir, total := fixture(t)

	rep, err := runJob(t, 3, 1, engine.Write, []string{dir}, nil)
	require.NoError(t, err)

	require.Len(t, rep.Results, 2)
	for _, res := range rep.Results {
		assert.Equal(t, total, res.Bytes)
	}

	for i, size := range fixtureSizes {
		info, err := os.Stat(filepath.Join(dir, fmt.Sprintf("file-%d", i)))
		require.NoError(t, err)
		assert.Equal(t, int64(size), info.Size())
	}
}

func TestRunDefaultsJobID(t *testing.T) {
	dir, _ := fixture(t)

	rep, err := runJob(t, 1, 1, engine.Read, []string{dir}, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, rep.Job)
}

func TestRunNoFiles(t *testing.T) {
	rep, err := runJob(t, 3, 2, engine.Read, []string{t.TempDir()}, nil)
	assert.ErrorIs(t, err, ErrNoFiles)
	assert.Nil(t, rep)
}

// brokenCollector fails every residency query.
type brokenCollector struct {
	scan.Collector
}

func (brokenCollector) Residency(context.Context, string) (int, uint64, error) {
	return 0, 0, errors.New("no layout")
}

func TestRunEveryFileFails(t *testing.T) {
	dir, _ := fixture(t)
	require.NoError(t, os.Symlink(filepath.Join(dir, "missing"), filepath.Join(dir, "dangling")))

	inner := static.New(static.Config{})
	rep, err := runJob(t, 2, 1, engine.Read, []string{dir}, func(r *Runner) {
		if r.Transport.Rank() == 0 {
			r.Scanner = scan.New(brokenCollector{Collector: inner})
		}
	})
	assert.ErrorIs(t, err, ErrNoFiles)
	assert.Nil(t, rep)
}

func TestRunMismatchFlagged(t *testing.T) {
	dir, _ := fixture(t)

	// Shrinking a file after the scan makes every read strategy come up short.
	rep, err := runJob(t, 2, 1, engine.Read, []string{dir}, func(r *Runner) {
		if r.Transport.Rank() == 0 {
			r.Listing = func(_ content.TargetID, sc content.StridedContent) {
				if sc.FileSize == 3145729 && sc.Offset == 0 {
					require.NoError(t, os.Truncate(sc.FileName, 10))
				}
			}
		}
	})
	require.NoError(t, err)

	for _, res := range rep.Results {
		assert.True(t, res.Mismatch, res.Strategy)
		assert.Positive(t, res.Errors, res.Strategy)
	}
}
