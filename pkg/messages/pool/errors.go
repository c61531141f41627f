package pool

import "errors"

var (
	// ErrNotAcknowledged indicates a slot was requested for Unreliable.
	ErrNotAcknowledged = errors.New("class is not acknowledged")
	// ErrInvalidClass indicates an unknown reliability class.
	ErrInvalidClass = errors.New("invalid reliability class")
)
