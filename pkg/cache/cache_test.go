package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/marmos91/lustrebulk/pkg/content"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingCollector struct {
	residency int
	targets   int
}

func (c *countingCollector) Stat(_ context.Context, path string) (uint64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return uint64(info.Size()), nil
}

func (c *countingCollector) Residency(context.Context, string) (int, uint64, error) {
	c.residency++
	return 2, 1 << 20, nil
}

func (c *countingCollector) TargetIDs(_ context.Context, _ string, max int) ([]content.TargetID, error) {
	c.targets++
	return []content.TargetID{4, 9}[:max], nil
}

func openCache(t *testing.T, inner *countingCollector) *Collector {
	t.Helper()
	c, err := Open(context.Background(), Config{Path: filepath.Join(t.TempDir(), "db")}, inner)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCacheHit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0644))

	inner := &countingCollector{}
	c := openCache(t, inner)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		count, size, err := c.Residency(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, 2, count)
		assert.Equal(t, uint64(1<<20), size)

		targets, err := c.TargetIDs(ctx, path, count)
		require.NoError(t, err)
		assert.Equal(t, []content.TargetID{4, 9}, targets)
	}

	assert.Equal(t, 1, inner.residency)
	assert.Equal(t, 1, inner.targets)

	hits, misses := c.Stats()
	assert.Equal(t, int64(5), hits)
	assert.Equal(t, int64(1), misses)
}

func TestCacheInvalidatedByChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0644))

	inner := &countingCollector{}
	c := openCache(t, inner)
	ctx := context.Background()

	_, _, err := c.Residency(ctx, path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("longer data"), 0644))
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))

	_, _, err = c.Residency(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.residency)
}

func TestCacheTruncatesTargets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	c := openCache(t, &countingCollector{})
	targets, err := c.TargetIDs(context.Background(), path, 1)
	require.NoError(t, err)
	assert.Equal(t, []content.TargetID{4}, targets)
}

func TestCacheMissingFile(t *testing.T) {
	c := openCache(t, &countingCollector{})
	_, _, err := c.Residency(context.Background(), "/does/not/exist")
	assert.Error(t, err)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(context.Background(), Config{}, &countingCollector{})
	assert.Error(t, err)
}
