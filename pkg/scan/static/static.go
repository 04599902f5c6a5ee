// Package static emulates striping on filesystems without storage targets.
//
// Every file gets the same stripe count and size. The first target of a
// file is derived from a hash of its path, and following stripes use the
// next targets in turn, the way Lustre allocates objects round-robin
// across OSTs.
package static

import (
	"context"
	"errors"
	"os"

	"github.com/cespare/xxhash/v2"

	"github.com/marmos91/lustrebulk/pkg/content"
	"github.com/marmos91/lustrebulk/pkg/scan"
)

// Default layout, matching a single 1 MiB stripe on target 0.
const (
	DefaultStripeCount = 1
	DefaultStripeSize  = 1 << 20
	DefaultTargetCount = 1
)

// ErrNotRegular is returned by Stat for anything but a regular file.
var ErrNotRegular = errors.New("not a regular file")

// Config describes the emulated layout.
type Config struct {
	// StripeCount is the number of stripes per file. Capped at TargetCount.
	StripeCount int `mapstructure:"stripe_count" validate:"omitempty,gt=0" yaml:"stripe_count"`

	// StripeSize is the size of a stripe in bytes.
	StripeSize uint64 `mapstructure:"stripe_size" validate:"omitempty,gt=0" yaml:"stripe_size"`

	// TargetCount is the number of emulated storage targets.
	TargetCount int `mapstructure:"target_count" validate:"omitempty,gt=0" yaml:"target_count"`
}

// ApplyDefaults fills zero fields.
func (c *Config) ApplyDefaults() {
	if c.StripeCount <= 0 {
		c.StripeCount = DefaultStripeCount
	}
	if c.StripeSize == 0 {
		c.StripeSize = DefaultStripeSize
	}
	if c.TargetCount <= 0 {
		c.TargetCount = DefaultTargetCount
	}
}

// Collector implements scan.Collector with a fixed layout.
type Collector struct {
	cfg Config
}

var _ scan.Collector = (*Collector)(nil)

// New returns a collector for cfg; zero fields take their defaults.
func New(cfg Config) *Collector {
	cfg.ApplyDefaults()
	if cfg.StripeCount > cfg.TargetCount {
		cfg.StripeCount = cfg.TargetCount
	}
	return &Collector{cfg: cfg}
}

func (c *Collector) Stat(_ context.Context, path string) (uint64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if !info.Mode().IsRegular() {
		return 0, &os.PathError{Op: "stat", Path: path, Err: ErrNotRegular}
	}
	return uint64(info.Size()), nil
}

func (c *Collector) Residency(_ context.Context, _ string) (int, uint64, error) {
	return c.cfg.StripeCount, c.cfg.StripeSize, nil
}

func (c *Collector) TargetIDs(_ context.Context, path string, max int) ([]content.TargetID, error) {
	n := min(max, c.cfg.StripeCount)
	if n <= 0 {
		return nil, nil
	}

	first := xxhash.Sum64String(path) % uint64(c.cfg.TargetCount)
	targets := make([]content.TargetID, n)
	for i := range targets {
		targets[i] = content.TargetID((first + uint64(i)) % uint64(c.cfg.TargetCount))
	}
	return targets, nil
}
