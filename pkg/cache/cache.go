// Package cache keeps file layouts across runs in a BadgerDB store.
//
// Residency queries are the slowest part of a scan on a busy metadata
// server. The cache wraps any scan.Collector and answers repeated queries
// for unchanged files from disk. An entry is reused only while the file
// keeps the size and modification time it had when the entry was written.
package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	xdr "github.com/rasky/go-xdr/xdr2"

	"github.com/marmos91/lustrebulk/internal/logger"
	"github.com/marmos91/lustrebulk/pkg/content"
	"github.com/marmos91/lustrebulk/pkg/scan"
)

// keyPrefix namespaces layout entries in the database.
const keyPrefix = "layout:"

// Config configures the residency cache.
type Config struct {
	// Path is the BadgerDB directory. Created if missing.
	Path string `mapstructure:"path" validate:"required" yaml:"path"`

	// TTL expires entries after this long. Zero keeps them forever.
	TTL time.Duration `mapstructure:"ttl" validate:"omitempty,gte=0" yaml:"ttl"`

	// BlockCacheSizeMB is BadgerDB's block cache size (default: 64).
	BlockCacheSizeMB int64 `mapstructure:"block_cache_size_mb" validate:"omitempty,gte=0" yaml:"block_cache_size_mb"`

	// IndexCacheSizeMB is BadgerDB's index cache size (default: 32).
	IndexCacheSizeMB int64 `mapstructure:"index_cache_size_mb" validate:"omitempty,gte=0" yaml:"index_cache_size_mb"`
}

// entry is the stored form of one file layout.
type entry struct {
	Size        uint64
	ModTime     int64
	StripeCount int32
	StripeSize  uint64
	Targets     []int32
}

// Collector is a scan.Collector answering from the cache when it can.
type Collector struct {
	inner scan.Collector
	db    *badger.DB
	ttl   time.Duration

	hits   atomic.Int64
	misses atomic.Int64
}

var _ scan.Collector = (*Collector)(nil)

// Open opens (or creates) the cache at cfg.Path in front of inner.
func Open(ctx context.Context, cfg Config, inner scan.Collector) (*Collector, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.Path == "" {
		return nil, errors.New("cache path is required")
	}

	blockCacheMB := cfg.BlockCacheSizeMB
	if blockCacheMB == 0 {
		blockCacheMB = 64
	}
	indexCacheMB := cfg.IndexCacheSizeMB
	if indexCacheMB == 0 {
		indexCacheMB = 32
	}

	opts := badger.DefaultOptions(cfg.Path).
		WithLoggingLevel(badger.WARNING).
		WithCompression(options.None).
		WithBlockCacheSize(blockCacheMB << 20).
		WithIndexCacheSize(indexCacheMB << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", cfg.Path, err)
	}

	logger.Debug("Residency cache opened at %s", cfg.Path)
	return &Collector{inner: inner, db: db, ttl: cfg.TTL}, nil
}

// Close flushes and closes the database.
func (c *Collector) Close() error {
	logger.Debug("Residency cache: %d hits, %d misses", c.hits.Load(), c.misses.Load())
	return c.db.Close()
}

// Stats returns the number of cache hits and misses so far.
func (c *Collector) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *Collector) Stat(ctx context.Context, path string) (uint64, error) {
	return c.inner.Stat(ctx, path)
}

func (c *Collector) Residency(ctx context.Context, path string) (int, uint64, error) {
	e, err := c.lookup(ctx, path)
	if err != nil {
		return 0, 0, err
	}
	return int(e.StripeCount), e.StripeSize, nil
}

func (c *Collector) TargetIDs(ctx context.Context, path string, max int) ([]content.TargetID, error) {
	e, err := c.lookup(ctx, path)
	if err != nil {
		return nil, err
	}

	n := min(max, len(e.Targets))
	targets := make([]content.TargetID, n)
	for i := range targets {
		targets[i] = content.TargetID(e.Targets[i])
	}
	return targets, nil
}

// lookup returns the layout of path from the cache, querying the inner
// collector and storing the result on a miss.
func (c *Collector) lookup(ctx context.Context, path string) (*entry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	size, mtime := uint64(info.Size()), info.ModTime().UnixNano()
	key := []byte(keyPrefix + path)

	cached, err := c.get(key)
	if err != nil {
		logger.Debug("Residency cache read for %s failed: %v", path, err)
	}
	if cached != nil && cached.Size == size && cached.ModTime == mtime {
		c.hits.Add(1)
		return cached, nil
	}
	c.misses.Add(1)

	count, stripeSize, err := c.inner.Residency(ctx, path)
	if err != nil {
		return nil, err
	}
	targets, err := c.inner.TargetIDs(ctx, path, count)
	if err != nil {
		return nil, err
	}

	e := &entry{
		Size:        size,
		ModTime:     mtime,
		StripeCount: int32(count),
		StripeSize:  stripeSize,
		Targets:     make([]int32, len(targets)),
	}
	for i, t := range targets {
		e.Targets[i] = int32(t)
	}

	if err := c.put(key, e); err != nil {
		logger.Warn("Residency cache write for %s failed: %v", path, err)
	}
	return e, nil
}

func (c *Collector) get(key []byte) (*entry, error) {
	var e *entry
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var decoded entry
			if _, err := xdr.Unmarshal(bytes.NewReader(val), &decoded); err != nil {
				return fmt.Errorf("decode layout entry: %w", err)
			}
			e = &decoded
			return nil
		})
	})
	return e, err
}

func (c *Collector) put(key []byte, e *entry) error {
	var buf bytes.Buffer
	if _, err := xdr.Marshal(&buf, e); err != nil {
		return fmt.Errorf("encode layout entry: %w", err)
	}

	return c.db.Update(func(txn *badger.Txn) error {
		be := badger.NewEntry(key, buf.Bytes())
		if c.ttl > 0 {
			be = be.WithTTL(c.ttl)
		}
		return txn.SetEntry(be)
	})
}
