package bench

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/marmos91/lustrebulk/internal/logger"
	"github.com/marmos91/lustrebulk/internal/ratelimiter"
	"github.com/marmos91/lustrebulk/pkg/engine"
)

// createBufferSize matches the write size used for test data.
const createBufferSize = 1000000

// CreateOptions describes a set of test files.
type CreateOptions struct {
	// Prefix is prepended to the zero-padded file index.
	Prefix string

	Count int
	Size  uint64

	// FS creates the files. Nil uses the operating system.
	FS engine.FileSystem

	Limiter *ratelimiter.RateLimiter
}

// CreateStats summarizes a Create call.
type CreateStats struct {
	Files    int
	Bytes    uint64
	Duration time.Duration
}

// CreateName returns the name of file i out of count: the prefix followed
// by i padded to the width of count-1.
func CreateName(prefix string, i, count int) string {
	width := len(strconv.Itoa(max(count-1, 0)))
	return fmt.Sprintf("%s%0*d", prefix, width, i)
}

// Create writes Count files of Size bytes filled with 0xff. It stops at
// the first failure and returns what was created so far with the error.
func Create(ctx context.Context, opts CreateOptions) (CreateStats, error) {
	if opts.Count <= 0 {
		return CreateStats{}, fmt.Errorf("invalid count %d", opts.Count)
	}
	fs := opts.FS
	if fs == nil {
		fs = engine.OSFileSystem{}
	}

	buf := make([]byte, createBufferSize)
	for i := range buf {
		buf[i] = 0xff
	}

	var stats CreateStats
	start := time.Now()

	for i := 0; i < opts.Count; i++ {
		name := CreateName(opts.Prefix, i, opts.Count)
		if err := createFile(ctx, fs, opts.Limiter, name, opts.Size, buf); err != nil {
			stats.Duration = time.Since(start)
			return stats, fmt.Errorf("create %s: %w", name, err)
		}
		stats.Files++
		stats.Bytes += opts.Size
	}

	stats.Duration = time.Since(start)
	logger.Info("Created %d files, wrote %s in %.6fs", stats.Files, humanize.IBytes(stats.Bytes), stats.Duration.Seconds())
	return stats, nil
}

func createFile(ctx context.Context, fs engine.FileSystem, limiter *ratelimiter.RateLimiter, name string, size uint64, buf []byte) error {
	f, err := fs.Open(name, engine.Write)
	if err != nil {
		return err
	}

	var pos uint64
	for pos < size {
		n := min(uint64(len(buf)), size-pos)
		if err := limiter.WaitN(ctx, int(n)); err != nil {
			_ = f.Close()
			return err
		}
		done, err := f.WriteAt(buf[:n], int64(pos))
		if uint64(done) < n {
			_ = f.Close()
			if err == nil {
				err = fmt.Errorf("short write")
			}
			return fmt.Errorf("out of space? %d of %d bytes at offset %d: %w", done, n, pos, err)
		}
		pos += n
	}
	return f.Close()
}

// ParseSize parses a byte count. Single-letter suffixes (k, m, g, t, p,
// x) are binary multiples, so "32m" is 32 MiB; anything else is handed to
// humanize.ParseBytes ("10 MB", "1.5GiB").
func ParseSize(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}

	last := strings.ToLower(s[len(s)-1:])
	switch last {
	case "k", "m", "g", "t", "p":
		s = s[:len(s)-1] + strings.ToUpper(last) + "iB"
	case "x":
		s = s[:len(s)-1] + "EiB"
	}

	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return n, nil
}
