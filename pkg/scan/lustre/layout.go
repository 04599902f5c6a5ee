// Package lustre queries the striping of files on a Lustre filesystem.
//
// The layout is read with the LL_IOC_LOV_GETSTRIPE ioctl into a
// lov_user_md buffer; plain v1 and v3 (pool) layouts are understood.
// Composite (PFL) layouts are reported as unsupported.
package lustre

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/marmos91/lustrebulk/pkg/content"
)

const (
	magicV1       uint32 = 0x0BD10BD0
	magicV3       uint32 = 0x0BD30BD0
	magicComposit uint32 = 0x0BD60BD0

	// Header sizes of lov_user_md_v1 and lov_user_md_v3.
	headerV1 = 32
	headerV3 = 48

	// Size of lov_user_ost_data_v1 and offset of l_ost_idx within it.
	objectSize     = 24
	objectIndexOff = 20

	// MaxStripeCount is LOV_MAX_STRIPE_COUNT.
	MaxStripeCount = 2000

	// BufferSize fits a v3 header followed by MaxStripeCount objects.
	BufferSize = headerV3 + MaxStripeCount*objectSize
)

var (
	// ErrUnsupported is returned on platforms without Lustre support.
	ErrUnsupported = errors.New("lustre striping queries are not supported on this platform")

	// ErrUnsupportedLayout is returned for layouts other than plain v1/v3.
	ErrUnsupportedLayout = errors.New("unsupported lustre layout")
)

// Layout is the striping of one file.
type Layout struct {
	StripeSize  uint64
	StripeCount int
	Targets     []content.TargetID
}

// ParseLayout decodes a lov_user_md buffer filled by the kernel. Fields
// are in host byte order; Lustre clients are little-endian.
func ParseLayout(buf []byte) (*Layout, error) {
	if len(buf) < headerV1 {
		return nil, fmt.Errorf("layout buffer of %d bytes: %w", len(buf), ErrUnsupportedLayout)
	}

	le := binary.LittleEndian
	magic := le.Uint32(buf[0:])

	var objects int
	switch magic {
	case magicV1:
		objects = headerV1
	case magicV3:
		objects = headerV3
	case magicComposit:
		return nil, fmt.Errorf("composite layout: %w", ErrUnsupportedLayout)
	default:
		return nil, fmt.Errorf("magic 0x%08x: %w", magic, ErrUnsupportedLayout)
	}

	layout := &Layout{
		StripeSize:  uint64(le.Uint32(buf[24:])),
		StripeCount: int(le.Uint16(buf[28:])),
	}
	if layout.StripeCount > MaxStripeCount || objects+layout.StripeCount*objectSize > len(buf) {
		return nil, fmt.Errorf("%d stripes do not fit a %d byte buffer: %w", layout.StripeCount, len(buf), ErrUnsupportedLayout)
	}

	layout.Targets = make([]content.TargetID, layout.StripeCount)
	for i := range layout.Targets {
		off := objects + i*objectSize + objectIndexOff
		layout.Targets[i] = content.TargetID(le.Uint32(buf[off:]))
	}
	return layout, nil
}
