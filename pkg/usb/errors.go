package usb

import "errors"

var (
	// ErrBadCommand indicates an undecodable command.
	ErrBadCommand = errors.New("bad command")
	// ErrSourceClosed indicates the command source stopped.
	ErrSourceClosed = errors.New("command source closed")
)
