// Package bench drives a complete benchmark job.
//
// The coordinator (rank 0) scans the input paths, every process receives
// the replicated file set and its share of the strided records, and then
// each test iteration times the aligned strategy against the whole-file
// baselines. Every process of the job runs the same Runner.
package bench

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/marmos91/lustrebulk/internal/logger"
	"github.com/marmos91/lustrebulk/pkg/assign"
	"github.com/marmos91/lustrebulk/pkg/content"
	"github.com/marmos91/lustrebulk/pkg/distribute"
	"github.com/marmos91/lustrebulk/pkg/engine"
	"github.com/marmos91/lustrebulk/pkg/group"
	"github.com/marmos91/lustrebulk/pkg/report"
	"github.com/marmos91/lustrebulk/pkg/scan"
	"github.com/marmos91/lustrebulk/pkg/topology"
)

// DefaultTestCount is the number of iterations when TestCount is zero.
const DefaultTestCount = 3

// ErrNoFiles is returned by every process when the scan found nothing,
// including when every file failed in the collector. The job did not
// fail: callers should exit cleanly.
var ErrNoFiles = errors.New("no files found")

// Runner executes one job on one process.
type Runner struct {
	Transport group.Transport
	Topology  *topology.Topology

	// Scanner is only used on the coordinator.
	Scanner *scan.Scanner

	// Listing, if set, also receives every scanned record.
	Listing scan.Sink

	Engine *engine.Engine

	// TestCount is the number of iterations. Zero means DefaultTestCount.
	TestCount int

	// Single adds the single-process baseline to every iteration.
	Single bool

	// BlobLimit caps the filename blob of one distribution chunk.
	BlobLimit int

	// JobID names the report. Empty generates a random one.
	JobID string

	Metrics Metrics
}

// Run executes the job. The coordinator returns the report; the other
// processes return nil.
func (r *Runner) Run(ctx context.Context, roots []string) (*report.Report, error) {
	t := r.Transport
	coordinator := t.Rank() == 0

	var rep *report.Report
	var cm *assign.ContentMap
	var files *content.FileSet

	if coordinator {
		rep = &report.Report{
			Job:       r.jobID(),
			Direction: r.Engine.Direction.String(),
			Started:   time.Now().UTC(),
			Nodes:     r.Topology.NodeCount,
			Processes: t.Size(),
		}
		logger.Info("lustrebulk job %s nodes=%d np=%d", rep.Job, rep.Nodes, rep.Processes)
		logger.Info("Scanning files...")

		cm = assign.NewContentMap()
		sink := scan.Sink(cm.Add)
		if r.Listing != nil {
			sink = scan.Tee(sink, r.Listing)
		}

		fs, stats, err := r.Scanner.Scan(ctx, roots, sink)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		files = fs

		rep.Files = stats.Files
		rep.Bytes = files.TotalBytes()
		rep.Records = stats.Records
		rep.Targets = len(cm.Targets())
		rep.ScanErrors = stats.Errors
		rep.ScanSeconds = stats.Duration.Seconds()

		logger.Info("%d files scanned in %.6fs, total %s", stats.Files, rep.ScanSeconds, humanize.IBytes(rep.Bytes))
	}

	files, err := distribute.BroadcastFileSet(ctx, t, 0, files)
	if err != nil {
		return nil, err
	}
	if files.Len() == 0 {
		if coordinator {
			logger.Warn("No files found!")
		}
		return nil, ErrNoFiles
	}

	d := distribute.Distributor{Transport: t, Topology: r.Topology, BlobLimit: r.BlobLimit}
	mine, err := d.Distribute(ctx, cm)
	if err != nil {
		return nil, fmt.Errorf("distribute: %w", err)
	}
	logger.Debug("%s %d records, %s to %s", r.Engine.Prefix, len(mine),
		humanize.IBytes(content.TotalCoveredBytes(mine)), r.Engine.Direction)

	expected := files.TotalBytes()
	testCount := r.TestCount
	if testCount <= 0 {
		testCount = DefaultTestCount
	}

	for i := 0; i < testCount; i++ {
		if coordinator {
			logger.Info("Test %d", i)
		}

		runs := []struct {
			strategy string
			fn       func() engine.Stats
		}{
			{engine.StrategyAligned, func() engine.Stats {
				return r.Engine.Aligned(ctx, mine)
			}},
			{engine.StrategyRoundRobin, func() engine.Stats {
				return r.Engine.RoundRobinFiles(ctx, files, t.Rank(), t.Size())
			}},
		}
		if r.Single {
			runs = append(runs, struct {
				strategy string
				fn       func() engine.Stats
			}{engine.StrategySingle, func() engine.Stats {
				if !coordinator {
					return engine.Stats{}
				}
				return r.Engine.SingleProcess(ctx, files)
			}})
		}

		for _, run := range runs {
			res, err := r.measure(ctx, i, run.strategy, expected, run.fn)
			if err != nil {
				return nil, err
			}
			if coordinator {
				rep.Results = append(rep.Results, res)
			}
		}
	}

	return rep, nil
}

// measure times fn between two barriers and sums its statistics on the
// coordinator.
func (r *Runner) measure(ctx context.Context, iteration int, strategy string, expected uint64, fn func() engine.Stats) (report.Result, error) {
	t := r.Transport

	if err := group.Barrier(ctx, t); err != nil {
		return report.Result{}, fmt.Errorf("%s: %w", strategy, err)
	}
	start := time.Now()
	local := fn()
	if err := group.Barrier(ctx, t); err != nil {
		return report.Result{}, fmt.Errorf("%s: %w", strategy, err)
	}
	elapsed := time.Since(start)

	total, err := engine.ReduceStats(ctx, t, 0, local)
	if err != nil {
		return report.Result{}, fmt.Errorf("%s: %w", strategy, err)
	}
	if t.Rank() != 0 {
		return report.Result{}, nil
	}

	res := report.Result{
		Iteration:       iteration,
		Strategy:        strategy,
		Seconds:         elapsed.Seconds(),
		Bytes:           total.Bytes,
		Files:           total.Files,
		Errors:          total.Errors,
		MetadataSeconds: total.MetadataTime.Seconds(),
		DataSeconds:     total.DataTime.Seconds(),
		Mismatch:        total.Bytes != expected,
	}

	if res.Mismatch {
		logger.Error("%s %s %d of %d bytes", strategy, r.Engine.Direction, total.Bytes, expected)
	}
	logger.Info("  %s: %.6fs, %s/s (%.1f%% metadata time)", strategy, res.Seconds,
		humanize.IBytes(uint64(res.Throughput())), 100*res.MetadataFraction())

	r.metrics().ObserveRun(strategy, r.Engine.Direction.String(), res.Bytes, elapsed, res.Errors, res.Mismatch)
	return res, nil
}

func (r *Runner) jobID() string {
	if r.JobID != "" {
		return r.JobID
	}
	return uuid.NewString()
}

func (r *Runner) metrics() Metrics {
	if r.Metrics == nil {
		return noopMetrics{}
	}
	return r.Metrics
}
