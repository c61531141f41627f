package interboard

import "errors"

var (
	// ErrChecksumMismatch indicates a frame failed CRC verification.
	ErrChecksumMismatch = errors.New("checksum mismatch")
	// ErrBadLength indicates an impossible frame length.
	ErrBadLength = errors.New("bad frame length")
	// ErrMalformed indicates an invalid field in a frame with a valid checksum.
	ErrMalformed = errors.New("malformed frame")
	// ErrDuplicateDetected indicates a payload whose sequence number was seen.
	ErrDuplicateDetected = errors.New("duplicate frame")
)
