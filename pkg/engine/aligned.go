package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/marmos91/lustrebulk/internal/logger"
	"github.com/marmos91/lustrebulk/pkg/content"
)

// Strategy names used in logs and metrics.
const (
	StrategyAligned    = "aligned"
	StrategyRoundRobin = "round_robin"
	StrategySingle     = "single"
)

// Aligned transfers the blocks described by list: for every record, one
// positioned call per block starting at Offset and stepping by Stride,
// with the last block cut at the end of the file.
//
// A failed open or a short transfer is logged with the file name and
// offset and abandons that record; the run continues with the next one.
// Bytes moved before the failure stay counted.
func (e *Engine) Aligned(ctx context.Context, list []content.StridedContent) Stats {
	var stats Stats
	var buf []byte

	for _, sc := range list {
		if ctx.Err() != nil {
			logger.Warn("%s aligned %s interrupted: %v", e.Prefix, e.Direction, ctx.Err())
			break
		}

		if uint64(len(buf)) < sc.Length {
			buf = make([]byte, sc.Length)
		}
		e.transferRecord(ctx, sc, buf, &stats)
	}
	return stats
}

func (e *Engine) transferRecord(ctx context.Context, sc content.StridedContent, buf []byte, stats *Stats) {
	m := e.metrics()
	stats.Files++

	start := time.Now()
	f, err := e.fs().Open(sc.FileName, e.Direction)
	elapsed := time.Since(start)
	stats.MetadataTime += elapsed
	m.ObserveMetadata("open", elapsed, err)
	if err != nil {
		e.abandon(StrategyAligned, stats, "%s error opening %s: %v", e.Prefix, sc.FileName, err)
		return
	}

	defer func() {
		start := time.Now()
		err := f.Close()
		elapsed := time.Since(start)
		stats.MetadataTime += elapsed
		m.ObserveMetadata("close", elapsed, err)
	}()

	sc.Blocks(func(pos, n uint64) bool {
		if err := e.Limiter.WaitN(ctx, int(n)); err != nil {
			e.abandon(StrategyAligned, stats, "%s %s of %s at %d interrupted: %v", e.Prefix, e.Direction, sc.FileName, pos, err)
			return false
		}

		block := buf[:n]
		start := time.Now()
		var done int
		if e.Direction == Write {
			done, err = f.WriteAt(block, int64(pos))
		} else {
			done, err = f.ReadAt(block, int64(pos))
		}
		elapsed := time.Since(start)

		stats.DataTime += elapsed
		stats.Bytes += uint64(done)
		m.ObserveData(e.Direction.String(), done, elapsed)

		if uint64(done) < n {
			if err == nil {
				err = fmt.Errorf("short %s", e.Direction)
			}
			e.abandon(StrategyAligned, stats, "%s error %s %s at %d (%d of %d bytes): %v",
				e.Prefix, verb(e.Direction), sc.FileName, pos, done, n, err)
			return false
		}
		return true
	})
}

func (e *Engine) abandon(strategy string, stats *Stats, format string, v ...any) {
	stats.Errors++
	e.metrics().RecordAbandoned(strategy)
	logger.Error(format, v...)
}

func verb(d Direction) string {
	if d == Write {
		return "writing"
	}
	return "reading"
}
