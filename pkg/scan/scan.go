// Package scan walks input paths and describes where every file's data
// lives.
//
// The scan runs on the coordinator only. For each regular file it asks a
// Collector for the file size and striping, and hands one StridedContent
// record per stripe to a Sink together with the storage target holding
// that stripe. Collectors for real Lustre filesystems and for emulated
// striping live in the lustre and static subpackages.
package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/marmos91/lustrebulk/internal/logger"
	"github.com/marmos91/lustrebulk/pkg/content"
)

var (
	// ErrNotRegular is returned for paths that are neither a regular file
	// nor a directory.
	ErrNotRegular = errors.New("not a regular file or directory")

	// ErrBadStriping is returned when a collector reports an unusable layout.
	ErrBadStriping = errors.New("invalid striping layout")
)

// Collector answers residency queries for single files.
//
// Errors are per file: the scanner logs them and skips the file.
type Collector interface {
	// Stat returns the size of path in bytes.
	Stat(ctx context.Context, path string) (uint64, error)

	// Residency returns the stripe count and stripe size of path.
	Residency(ctx context.Context, path string) (stripeCount int, stripeSize uint64, err error)

	// TargetIDs returns up to max storage targets holding path, in stripe
	// order.
	TargetIDs(ctx context.Context, path string, max int) ([]content.TargetID, error)
}

// Sink receives the records produced by a scan.
//
// assign.ContentMap.Add accumulates records per target; PrintSink writes a
// listing.
type Sink func(target content.TargetID, sc content.StridedContent)

// Stats summarizes a scan.
type Stats struct {
	// Files is the number of files added to the file set.
	Files int

	// Records is the number of records handed to the sink.
	Records int

	// Bytes is the total size of the scanned files.
	Bytes uint64

	// Errors counts files and paths skipped because of an error.
	Errors int

	// Duration is the wall time of the scan.
	Duration time.Duration
}

// Scanner ties a Walker to a Collector.
type Scanner struct {
	Collector Collector
	Walker    *Walker
}

// New returns a scanner using collector and a default walker.
func New(collector Collector) *Scanner {
	return &Scanner{Collector: collector, Walker: &Walker{}}
}

// Scan walks roots, emits records to sink and returns the set of files
// that were scanned successfully. Files are processed in walk order, so
// targets reach the sink in a deterministic first-encounter order.
//
// Per-file failures are logged and counted in Stats.Errors; only a
// cancelled context aborts the scan.
func (s *Scanner) Scan(ctx context.Context, roots []string, sink Sink) (*content.FileSet, Stats, error) {
	start := time.Now()
	files := content.NewFileSet()
	var stats Stats

	walker := s.Walker
	if walker == nil {
		walker = &Walker{}
	}

	err := walker.Walk(roots, func(path string, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			logger.Warn("Skipping %s: %v", path, walkErr)
			stats.Errors++
			return nil
		}

		records, size, err := s.scanFile(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn("Skipping %s: %v", path, err)
			stats.Errors++
			return nil
		}

		if err := files.Add(path, size); err != nil {
			logger.Warn("Skipping %s: %v", path, err)
			stats.Errors++
			return nil
		}
		for _, r := range records {
			sink(r.target, r.sc)
		}

		stats.Files++
		stats.Records += len(records)
		stats.Bytes += size
		return nil
	})

	stats.Duration = time.Since(start)
	if err != nil {
		return nil, stats, err
	}

	logger.Debug("Scanned %d files (%d records, %d errors) in %s", stats.Files, stats.Records, stats.Errors, stats.Duration)
	return files, stats, nil
}

type record struct {
	target content.TargetID
	sc     content.StridedContent
}

// scanFile queries the collector for one file. Stripes starting at or
// beyond the end of the file produce no record, so an empty file yields
// none at all.
func (s *Scanner) scanFile(ctx context.Context, path string) ([]record, uint64, error) {
	size, err := s.Collector.Stat(ctx, path)
	if err != nil {
		return nil, 0, fmt.Errorf("stat: %w", err)
	}

	count, stripeSize, err := s.Collector.Residency(ctx, path)
	if err != nil {
		return nil, 0, fmt.Errorf("residency: %w", err)
	}
	if count < 1 || stripeSize == 0 {
		return nil, 0, fmt.Errorf("%d stripes of %d bytes: %w", count, stripeSize, ErrBadStriping)
	}

	targets, err := s.Collector.TargetIDs(ctx, path, count)
	if err != nil {
		return nil, 0, fmt.Errorf("target ids: %w", err)
	}
	if len(targets) < count {
		return nil, 0, fmt.Errorf("%d targets for %d stripes: %w", len(targets), count, ErrBadStriping)
	}

	stride := stripeSize * uint64(count)
	var records []record
	for i := 0; i < count; i++ {
		offset := uint64(i) * stripeSize
		if offset >= size {
			break
		}
		records = append(records, record{
			target: targets[i],
			sc: content.StridedContent{
				FileName: path,
				Offset:   offset,
				Length:   stripeSize,
				Stride:   stride,
				FileSize: size,
			},
		})
	}
	return records, size, nil
}

// PrintSink returns a sink writing one line per record:
//
//	OST <target> (<offset>,<length>,<stride>) <path>
func PrintSink(w io.Writer) Sink {
	return func(target content.TargetID, sc content.StridedContent) {
		fmt.Fprintf(w, "OST %d (%d,%d,%d) %s\n", target, sc.Offset, sc.Length, sc.Stride, sc.FileName)
	}
}

// Tee returns a sink forwarding every record to each of sinks.
func Tee(sinks ...Sink) Sink {
	return func(target content.TargetID, sc content.StridedContent) {
		for _, s := range sinks {
			s(target, sc)
		}
	}
}
