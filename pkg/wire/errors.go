package wire

import "errors"

var (
	// ErrBlobTooLarge is returned when the filename blob of a batch would
	// not fit the 32-bit length limit of the wire format.
	ErrBlobTooLarge = errors.New("filename blob exceeds wire length limit")

	// ErrNameTooLarge is returned when a single filename cannot fit in any
	// batch, so splitting cannot help.
	ErrNameTooLarge = errors.New("filename exceeds wire length limit")

	// ErrInvalidName is returned for filenames containing a NUL byte, which
	// would desynchronize the receiver.
	ErrInvalidName = errors.New("filename contains NUL byte")

	// ErrMalformed is returned when a received buffer cannot be decoded.
	ErrMalformed = errors.New("malformed wire buffer")

	// ErrBadMagic is returned for frames that do not start with FrameMagic.
	ErrBadMagic = errors.New("bad frame magic")
)
