// Package content defines the records exchanged between the scanner, the
// distributor and the I/O engine.
//
// A file striped across N storage targets is described by N StridedContent
// records, one per target. For a file with 1 MiB stripes spread across
// targets {7, 3, 1, 10}, the data residing on target 7 is
//
//	{Offset: 0, Length: 1048576, Stride: 4194304}
//
// and the data on target 3 is
//
//	{Offset: 1048576, Length: 1048576, Stride: 4194304}
//
// Taken together, the records of one file tile [0, FileSize) exactly.
package content

import (
	"fmt"
)

// TargetID identifies a storage target (a Lustre OST index).
type TargetID int32

// StridedContent describes the blocks of one file that live on a single
// storage target.
//
// Records are immutable after the scan; they are passed by value through
// packing and transport and consumed by the I/O engine.
type StridedContent struct {
	// FileName is the canonical absolute path of the file.
	FileName string

	// Offset of the first block, in bytes. Always smaller than Stride.
	Offset uint64

	// Length of each block, in bytes.
	Length uint64

	// Stride is the distance between the starts of consecutive blocks.
	Stride uint64

	// FileSize is the total size of the file.
	FileSize uint64
}

// Validate checks the structural invariants of a record.
func (sc StridedContent) Validate() error {
	switch {
	case sc.Stride == 0:
		return ErrZeroStride
	case sc.Length == 0:
		return ErrZeroLength
	case sc.Offset >= sc.Stride:
		return ErrOffsetOutOfStride
	case sc.Length > sc.Stride:
		return ErrLengthExceedsStride
	}
	return nil
}

// CoveredBytes returns the number of bytes of the file held by this record:
// every full stride period contributes Length bytes and the final partial
// period contributes whatever part of [Offset, Offset+Length) lies below
// FileSize.
func (sc StridedContent) CoveredBytes() uint64 {
	if sc.Stride == 0 {
		return 0
	}

	fullCycles := sc.FileSize / sc.Stride
	remainder := sc.FileSize - fullCycles*sc.Stride

	var tail uint64
	switch {
	case remainder <= sc.Offset:
		tail = 0
	case remainder >= sc.Offset+sc.Length:
		tail = sc.Length
	default:
		tail = remainder - sc.Offset
	}

	return fullCycles*sc.Length + tail
}

// Blocks calls fn for each block of the record in ascending order, with the
// block position and its length truncated at end of file. Iteration stops
// early when fn returns false.
func (sc StridedContent) Blocks(fn func(pos, n uint64) bool) {
	if sc.Stride == 0 || sc.Length == 0 {
		return
	}

	for pos := sc.Offset; pos < sc.FileSize; pos += sc.Stride {
		n := min(sc.Length, sc.FileSize-pos)
		if !fn(pos, n) {
			return
		}
		// guard against wrap-around for files close to 2^64 bytes
		if pos > ^uint64(0)-sc.Stride {
			return
		}
	}
}

// BlockCount returns how many positioned transfers Blocks will produce.
func (sc StridedContent) BlockCount() uint64 {
	if sc.Stride == 0 || sc.Length == 0 || sc.Offset >= sc.FileSize {
		return 0
	}
	return (sc.FileSize-sc.Offset-1)/sc.Stride + 1
}

func (sc StridedContent) String() string {
	return fmt.Sprintf("%s {%d,%d,%d,%d}", sc.FileName, sc.Offset, sc.Length, sc.Stride, sc.FileSize)
}

// TotalCoveredBytes sums CoveredBytes over a list.
func TotalCoveredBytes(list []StridedContent) uint64 {
	var total uint64
	for _, sc := range list {
		total += sc.CoveredBytes()
	}
	return total
}
