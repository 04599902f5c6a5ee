package content

import "errors"

// ============================================================================
// Standard Content Errors
// ============================================================================

// Callers wrap these with the offending file name:
//
//	if err := sc.Validate(); err != nil {
//	    return fmt.Errorf("record for %s: %w", sc.FileName, err)
//	}

var (
	// ErrZeroStride indicates a record whose stride is zero. Such a record
	// would never advance and cannot describe a striped layout.
	ErrZeroStride = errors.New("stride must be greater than zero")

	// ErrZeroLength indicates a record with empty blocks.
	ErrZeroLength = errors.New("block length must be greater than zero")

	// ErrOffsetOutOfStride indicates a record with offset >= stride, which
	// breaks the 0 <= offset < stride invariant.
	ErrOffsetOutOfStride = errors.New("offset must be smaller than stride")

	// ErrLengthExceedsStride indicates blocks that would overlap the next
	// period of the same record.
	ErrLengthExceedsStride = errors.New("block length exceeds stride")

	// ErrDuplicateFile is returned by FileSet.Add when a path is added twice
	// with different sizes.
	ErrDuplicateFile = errors.New("file already present with a different size")
)
