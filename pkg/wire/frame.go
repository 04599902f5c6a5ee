package wire

import (
	"bytes"
	"fmt"
	"io"

	xdr "github.com/rasky/go-xdr/xdr2"
)

// FrameMagic starts every frame on a TCP transport connection.
const FrameMagic uint32 = 0x4C42554C // "LBUL"

// FrameHeaderSize is the encoded size of a FrameHeader.
const FrameHeaderSize = 4 + 16 + 4 + 4 + 4

// FrameHeader precedes every payload sent between two processes.
type FrameHeader struct {
	Magic  uint32
	Job    [16]byte
	From   int32
	Tag    int32
	Length uint32
}

// Encode returns the XDR form of h.
func (h *FrameHeader) Encode() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(FrameHeaderSize)
	if _, err := xdr.Marshal(&buf, h); err != nil {
		return nil, fmt.Errorf("encode frame header: %w", err)
	}
	return buf.Bytes(), nil
}

// ReadFrameHeader reads and checks one header from r.
func ReadFrameHeader(r io.Reader) (*FrameHeader, error) {
	raw := make([]byte, FrameHeaderSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, err
	}

	var h FrameHeader
	if _, err := xdr.Unmarshal(bytes.NewReader(raw), &h); err != nil {
		return nil, fmt.Errorf("decode frame header: %w", err)
	}
	if h.Magic != FrameMagic {
		return nil, fmt.Errorf("magic 0x%08x: %w", h.Magic, ErrBadMagic)
	}
	return &h, nil
}
