package messages

import (
	"errors"
	"fmt"
)

var (
	// ErrPoolExhausted indicates no slot became free within the bounded wait.
	ErrPoolExhausted = errors.New("transmission pool exhausted")
	// ErrDeadlineExceeded indicates the retry budget ran out before an ack.
	ErrDeadlineExceeded = errors.New("delivery deadline exceeded")
	// ErrPayloadTooLarge indicates the payload does not fit in a frame.
	ErrPayloadTooLarge = errors.New("payload too large")
)

// UnroutableTagError reports a payload no subsystem subscribed to.
type UnroutableTagError struct {
	Tag Tag
}

// Error implements error.
func (e *UnroutableTagError) Error() string {
	return fmt.Sprintf("unroutable payload %s", e.Tag)
}
