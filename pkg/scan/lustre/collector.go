package lustre

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/marmos91/lustrebulk/pkg/content"
	"github.com/marmos91/lustrebulk/pkg/scan"
)

// Collector implements scan.Collector on a Lustre client.
//
// The scanner asks for the residency and then the targets of the same
// file; the layout of the last file queried is kept so that each file
// costs a single ioctl.
type Collector struct {
	mu       sync.Mutex
	lastPath string
	last     *Layout
}

var _ scan.Collector = (*Collector)(nil)

// New returns a Lustre collector.
func New() *Collector {
	return &Collector{}
}

func (c *Collector) Stat(_ context.Context, path string) (uint64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return uint64(info.Size()), nil
}

func (c *Collector) Residency(_ context.Context, path string) (int, uint64, error) {
	layout, err := c.layout(path)
	if err != nil {
		return 0, 0, err
	}
	return layout.StripeCount, layout.StripeSize, nil
}

func (c *Collector) TargetIDs(_ context.Context, path string, max int) ([]content.TargetID, error) {
	layout, err := c.layout(path)
	if err != nil {
		return nil, err
	}
	targets := layout.Targets
	if max < len(targets) {
		targets = targets[:max]
	}
	return append([]content.TargetID(nil), targets...), nil
}

func (c *Collector) layout(path string) (*Layout, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.last != nil && c.lastPath == path {
		return c.last, nil
	}

	buf, err := getStripe(path)
	if err != nil {
		return nil, fmt.Errorf("get stripe of %s: %w", path, err)
	}
	layout, err := ParseLayout(buf)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	c.lastPath, c.last = path, layout
	return layout, nil
}
