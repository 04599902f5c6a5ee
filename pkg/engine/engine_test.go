package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/marmos91/lustrebulk/pkg/content"
	"github.com/marmos91/lustrebulk/pkg/group/loopback"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

var fixtureSizes = []uint64{0, 1, 1048575, 1048576, 3145729}

// fixture writes one file per size and returns the file set.
func fixture(t *testing.T) *content.FileSet {
	t.Helper()

	dir := t.TempDir()
	fs := content.NewFileSet()
	for i, size := range fixtureSizes {
		path := filepath.Join(dir, fmt.Sprintf("file-%d", i))
		require.NoError(t, os.WriteFile(path, make([]byte, size), 0644))
		require.NoError(t, fs.Add(path, size))
	}
	return fs
}

// stripes describes every file of fs striped over count targets.
func stripes(fs *content.FileSet, stripeSize uint64, count int) []content.StridedContent {
	var list []content.StridedContent
	fs.Each(func(_ int, path string, size uint64) {
		for i := 0; i < count; i++ {
			offset := uint64(i) * stripeSize
			if offset >= size {
				break
			}
			list = append(list, content.StridedContent{
				FileName: path,
				Offset:   offset,
				Length:   stripeSize,
				Stride:   stripeSize * uint64(count),
				FileSize: size,
			})
		}
	})
	return list
}

func TestStrategiesAgreeOnTotal(t *testing.T) {
	fs := fixture(t)
	e := &Engine{Direction: Read}
	ctx := context.Background()

	aligned := e.Aligned(ctx, stripes(fs, 1<<20, 3))
	single := e.SingleProcess(ctx, fs)

	var rr Stats
	for rank := 0; rank < 3; rank++ {
		rr.Add(e.RoundRobinFiles(ctx, fs, rank, 3))
	}

	assert.Equal(t, fs.TotalBytes(), aligned.Bytes)
	assert.Equal(t, fs.TotalBytes(), single.Bytes)
	assert.Equal(t, fs.TotalBytes(), rr.Bytes)
	assert.Zero(t, aligned.Errors+single.Errors+rr.Errors)
	assert.Equal(t, 5, single.Files)
	assert.Equal(t, 5, rr.Files)
}

func TestRoundRobinFilesPicksEveryPth(t *testing.T) {
	fs := fixture(t)
	e := &Engine{Direction: Read}

	s := e.RoundRobinFiles(context.Background(), fs, 1, 2)
	// Positions 1 and 3 in sorted order: sizes 1 and 1048576.
	assert.Equal(t, 2, s.Files)
	assert.Equal(t, uint64(1+1048576), s.Bytes)
}

func TestEmptyFileNeedsNoRecords(t *testing.T) {
	fs := content.NewFileSet()
	path := filepath.Join(t.TempDir(), "empty")
	require.NoError(t, os.WriteFile(path, nil, 0644))
	require.NoError(t, fs.Add(path, 0))

	assert.Empty(t, stripes(fs, 1<<20, 4))

	s := (&Engine{Direction: Read}).SingleProcess(context.Background(), fs)
	assert.Equal(t, uint64(0), s.Bytes)
	assert.Zero(t, s.Errors)
}

func TestWriteCreatesFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "new")
	list := []content.StridedContent{
		{FileName: path, Offset: 0, Length: 4096, Stride: 8192, FileSize: 10000},
		{FileName: path, Offset: 4096, Length: 4096, Stride: 8192, FileSize: 10000},
	}

	s := (&Engine{Direction: Write}).Aligned(context.Background(), list)
	assert.Equal(t, uint64(10000), s.Bytes)
	assert.Zero(t, s.Errors)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), info.Size())
	assert.Equal(t, os.FileMode(0644), info.Mode().Perm()&0644)
}

// shortFS truncates every read of one file after limit bytes.
type shortFS struct {
	path  string
	limit int64
}

type shortFile struct {
	*os.File
	limit int64
}

func (s shortFile) ReadAt(p []byte, off int64) (int, error) {
	if off+int64(len(p)) > s.limit {
		if off >= s.limit {
			return 0, errors.New("injected short read")
		}
		n, _ := s.File.ReadAt(p[:s.limit-off], off)
		return n, errors.New("injected short read")
	}
	return s.File.ReadAt(p, off)
}

func (s shortFS) Open(path string, dir Direction) (File, error) {
	f, err := OSFileSystem{}.Open(path, dir)
	if err != nil || path != s.path {
		return f, err
	}
	return shortFile{File: f.(*os.File), limit: s.limit}, nil
}

func TestShortReadAbandonsOnlyThatFile(t *testing.T) {
	fs := fixture(t)
	paths := fs.Paths()
	broken := paths[4] // 3145729 bytes

	e := &Engine{Direction: Read, FS: shortFS{path: broken, limit: 1500000}}
	list := stripes(fs, 1<<20, 1)
	s := e.Aligned(context.Background(), list)

	assert.Equal(t, 1, s.Errors)
	assert.Equal(t, fs.TotalBytes()-3145729+1500000, s.Bytes)

	s = e.SingleProcess(context.Background(), fs)
	assert.Equal(t, 1, s.Errors)
	assert.Equal(t, fs.TotalBytes()-3145729+1500000, s.Bytes)
}

func TestMissingFileIsCountedNotFatal(t *testing.T) {
	list := []content.StridedContent{
		{FileName: "/does/not/exist", Offset: 0, Length: 10, Stride: 10, FileSize: 10},
	}
	s := (&Engine{Direction: Read}).Aligned(context.Background(), list)
	assert.Equal(t, 1, s.Errors)
	assert.Equal(t, uint64(0), s.Bytes)
}

type recordingMetrics struct {
	data, abandoned int
	meta            map[string]int
}

func (r *recordingMetrics) ObserveMetadata(op string, _ time.Duration, _ error) { r.meta[op]++ }
func (r *recordingMetrics) ObserveData(string, int, time.Duration)             { r.data++ }
func (r *recordingMetrics) RecordAbandoned(string)                             { r.abandoned++ }

func TestMetrics(t *testing.T) {
	fs := fixture(t)
	m := &recordingMetrics{meta: map[string]int{}}
	e := &Engine{Direction: Read, Metrics: m}

	e.Aligned(context.Background(), stripes(fs, 1<<20, 1))
	assert.Equal(t, 4, m.meta["open"])
	assert.Equal(t, 4, m.meta["close"])
	// 1 + 1 + 1 + 4 blocks.
	assert.Equal(t, 7, m.data)
	assert.Zero(t, m.abandoned)
}

func TestReduceStats(t *testing.T) {
	n := loopback.New(3)
	defer n.Close()

	var total Stats
	g, ctx := errgroup.WithContext(context.Background())
	for rank := 0; rank < 3; rank++ {
		rank := rank
		g.Go(func() error {
			s := Stats{Bytes: uint64(rank + 1), Files: 1, Errors: rank % 2, MetadataTime: time.Second, DataTime: 2 * time.Second}
			got, err := ReduceStats(ctx, n.Endpoint(rank), 0, s)
			if rank == 0 {
				total = got
			}
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, uint64(6), total.Bytes)
	assert.Equal(t, 3, total.Files)
	assert.Equal(t, 1, total.Errors)
	assert.Equal(t, 3*time.Second, total.MetadataTime)
	assert.Equal(t, 6*time.Second, total.DataTime)
}

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection("write")
	require.NoError(t, err)
	assert.Equal(t, Write, d)

	_, err = ParseDirection("copy")
	assert.Error(t, err)
}
