package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/marmos91/lustrebulk/internal/logger"
	"github.com/marmos91/lustrebulk/pkg/content"
)

// SingleProcess transfers every file of fs, sequentially, from this
// process. It is the single reader/writer baseline.
func (e *Engine) SingleProcess(ctx context.Context, fs *content.FileSet) Stats {
	return e.wholeFiles(ctx, fs, StrategySingle, func(int) bool { return true })
}

// RoundRobinFiles transfers the files whose position in fs satisfies
// index mod size == rank. Every process of the job calls it with its own
// rank; together they cover fs exactly once.
func (e *Engine) RoundRobinFiles(ctx context.Context, fs *content.FileSet, rank, size int) Stats {
	if size < 1 {
		size = 1
	}
	return e.wholeFiles(ctx, fs, StrategyRoundRobin, func(i int) bool { return i%size == rank })
}

func (e *Engine) wholeFiles(ctx context.Context, fs *content.FileSet, strategy string, mine func(int) bool) Stats {
	var stats Stats
	buf := make([]byte, e.bufferSize())

	fs.Each(func(i int, path string, size uint64) {
		if !mine(i) || ctx.Err() != nil {
			return
		}
		e.transferFile(ctx, strategy, path, size, buf, &stats)
	})

	if ctx.Err() != nil {
		logger.Warn("%s %s %s interrupted: %v", e.Prefix, strategy, e.Direction, ctx.Err())
	}
	return stats
}

// transferFile reads or writes size bytes of path sequentially. A read
// that ends before size bytes is an error.
func (e *Engine) transferFile(ctx context.Context, strategy, path string, size uint64, buf []byte, stats *Stats) {
	m := e.metrics()
	stats.Files++

	start := time.Now()
	f, err := e.fs().Open(path, e.Direction)
	elapsed := time.Since(start)
	stats.MetadataTime += elapsed
	m.ObserveMetadata("open", elapsed, err)
	if err != nil {
		e.abandon(strategy, stats, "%s error opening %s: %v", e.Prefix, path, err)
		return
	}

	var pos uint64
	start = time.Now()
	for pos < size {
		n := min(uint64(len(buf)), size-pos)
		if err = e.Limiter.WaitN(ctx, int(n)); err != nil {
			break
		}

		callStart := time.Now()
		var done int
		if e.Direction == Write {
			done, err = f.WriteAt(buf[:n], int64(pos))
		} else {
			done, err = f.ReadAt(buf[:n], int64(pos))
		}
		m.ObserveData(e.Direction.String(), done, time.Since(callStart))

		pos += uint64(done)
		if uint64(done) < n {
			if err == nil {
				err = fmt.Errorf("short %s", e.Direction)
			}
			break
		}
		err = nil
	}
	stats.DataTime += time.Since(start)
	stats.Bytes += pos

	if pos < size {
		e.abandon(strategy, stats, "%s error %s %s at %d (expected %d bytes): %v",
			e.Prefix, verb(e.Direction), path, pos, size, err)
	}

	start = time.Now()
	err = f.Close()
	elapsed = time.Since(start)
	stats.MetadataTime += elapsed
	m.ObserveMetadata("close", elapsed, err)
}
