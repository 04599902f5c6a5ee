// Package wire implements the binary encoding of content batches, file sets
// and transport frames.
//
// A content transfer opens with one chunk count message, then sends every
// chunk as four messages, each carried under its own tag:
//
//	chunk_count           int32 (once per transfer)
//	record_count          int32
//	filename_blob_length  uint64
//	filename_blob         bytes (NUL-terminated names, in record order)
//	values                uint64[record_count*4] (offset, length, stride, file_size)
//
// SplitContent cuts a list into chunks whose filename blob fits the
// length limit. A list that fits travels as a single chunk.
//
// Integers are big-endian. Fixed-width headers use XDR primitives.
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	xdr "github.com/rasky/go-xdr/xdr2"

	"github.com/marmos91/lustrebulk/pkg/content"
)

// MaxBlobLength is the largest filename blob a single transfer may carry.
const MaxBlobLength = math.MaxInt32

// valuesPerRecord is the number of integers packed for every record.
const valuesPerRecord = 4

// PackedContent is the dense form of a list of StridedContent.
type PackedContent struct {
	// Count is the number of records.
	Count int32

	// Names holds every filename followed by a NUL byte.
	Names []byte

	// Values holds offset, length, stride and file size of every record.
	Values []uint64
}

// PackContent converts list into its dense form, preserving order.
//
// Returns ErrBlobTooLarge when the names would exceed MaxBlobLength;
// callers with arbitrarily large lists should use SplitContent first.
func PackContent(list []content.StridedContent) (*PackedContent, error) {
	if len(list) > math.MaxInt32 {
		return nil, fmt.Errorf("%d records: %w", len(list), ErrBlobTooLarge)
	}

	blobLength := 0
	for _, sc := range list {
		if bytes.IndexByte([]byte(sc.FileName), 0) >= 0 {
			return nil, fmt.Errorf("%q: %w", sc.FileName, ErrInvalidName)
		}
		blobLength += len(sc.FileName) + 1
		if blobLength > MaxBlobLength {
			return nil, fmt.Errorf("%d records: %w", len(list), ErrBlobTooLarge)
		}
	}

	packed := &PackedContent{
		Count:  int32(len(list)),
		Names:  make([]byte, 0, blobLength),
		Values: make([]uint64, 0, len(list)*valuesPerRecord),
	}
	for _, sc := range list {
		packed.Names = append(packed.Names, sc.FileName...)
		packed.Names = append(packed.Names, 0)
		packed.Values = append(packed.Values, sc.Offset, sc.Length, sc.Stride, sc.FileSize)
	}
	return packed, nil
}

// Unpack rebuilds the record list by scanning Names for NUL terminators
// while stepping through Values four at a time.
func (p *PackedContent) Unpack() ([]content.StridedContent, error) {
	if p.Count < 0 {
		return nil, fmt.Errorf("negative record count %d: %w", p.Count, ErrMalformed)
	}
	if len(p.Values) != int(p.Count)*valuesPerRecord {
		return nil, fmt.Errorf("%d values for %d records: %w", len(p.Values), p.Count, ErrMalformed)
	}

	list := make([]content.StridedContent, 0, p.Count)
	names := p.Names
	for i := 0; i < int(p.Count); i++ {
		end := bytes.IndexByte(names, 0)
		if end < 0 {
			return nil, fmt.Errorf("record %d has no name terminator: %w", i, ErrMalformed)
		}
		v := p.Values[i*valuesPerRecord:]
		list = append(list, content.StridedContent{
			FileName: string(names[:end]),
			Offset:   v[0],
			Length:   v[1],
			Stride:   v[2],
			FileSize: v[3],
		})
		names = names[end+1:]
	}
	if len(names) != 0 {
		return nil, fmt.Errorf("%d trailing name bytes: %w", len(names), ErrMalformed)
	}
	return list, nil
}

// SplitContent cuts list into consecutive batches whose filename blobs
// each fit within limit bytes. Order is preserved. An empty list yields a
// single empty batch so that a transfer always carries a batch.
//
// A non-positive limit or one above MaxBlobLength is treated as
// MaxBlobLength.
func SplitContent(list []content.StridedContent, limit int) ([][]content.StridedContent, error) {
	if limit <= 0 || limit > MaxBlobLength {
		limit = MaxBlobLength
	}
	if len(list) == 0 {
		return [][]content.StridedContent{nil}, nil
	}

	var batches [][]content.StridedContent
	start, size := 0, 0
	for i, sc := range list {
		n := len(sc.FileName) + 1
		if n > limit {
			return nil, fmt.Errorf("%d byte name %q: %w", len(sc.FileName), truncate(sc.FileName), ErrNameTooLarge)
		}
		if size+n > limit || i-start == math.MaxInt32 {
			batches = append(batches, list[start:i])
			start, size = i, 0
		}
		size += n
	}
	return append(batches, list[start:]), nil
}

func truncate(name string) string {
	if len(name) <= 64 {
		return name
	}
	return name[:64] + "..."
}

// EncodeCount encodes a record count as an XDR int.
func EncodeCount(n int32) []byte {
	var buf bytes.Buffer
	_, _ = xdr.Marshal(&buf, n)
	return buf.Bytes()
}

// DecodeCount is the inverse of EncodeCount.
func DecodeCount(data []byte) (int32, error) {
	if len(data) != 4 {
		return 0, fmt.Errorf("count part of %d bytes: %w", len(data), ErrMalformed)
	}
	var n int32
	if _, err := xdr.Unmarshal(bytes.NewReader(data), &n); err != nil {
		return 0, fmt.Errorf("decode count: %w", err)
	}
	return n, nil
}

// EncodeLength encodes a blob length as an XDR unsigned hyper.
func EncodeLength(n uint64) []byte {
	var buf bytes.Buffer
	_, _ = xdr.Marshal(&buf, n)
	return buf.Bytes()
}

// DecodeLength is the inverse of EncodeLength.
func DecodeLength(data []byte) (uint64, error) {
	if len(data) != 8 {
		return 0, fmt.Errorf("length part of %d bytes: %w", len(data), ErrMalformed)
	}
	var n uint64
	if _, err := xdr.Unmarshal(bytes.NewReader(data), &n); err != nil {
		return 0, fmt.Errorf("decode length: %w", err)
	}
	return n, nil
}

// EncodeValues encodes a flat array of uint64, without a length prefix;
// the element count is implied by the record count sent beforehand.
func EncodeValues(values []uint64) []byte {
	buf := make([]byte, 0, len(values)*8)
	for _, v := range values {
		buf = binary.BigEndian.AppendUint64(buf, v)
	}
	return buf
}

// DecodeValues is the inverse of EncodeValues.
func DecodeValues(data []byte) ([]uint64, error) {
	if len(data)%8 != 0 {
		return nil, fmt.Errorf("values part of %d bytes: %w", len(data), ErrMalformed)
	}
	values := make([]uint64, len(data)/8)
	for i := range values {
		values[i] = binary.BigEndian.Uint64(data[i*8:])
	}
	return values, nil
}
