package usb

import (
	"context"
)

// CommandSource yields host commands.
type CommandSource interface {
	Receive(ctx context.Context) (Command, error)
}

// ChanSource is an in-process CommandSource.
type ChanSource chan Command

// NewChanSource creates a ChanSource with a buffer.
func NewChanSource(size int) ChanSource {
	return make(ChanSource, size)
}

// Receive implements CommandSource.
func (s ChanSource) Receive(ctx context.Context) (Command, error) {
	select {
	case cmd, ok := <-s:
		if !ok {
			return Command{}, ErrSourceClosed
		}
		return cmd, nil
	case <-ctx.Done():
		return Command{}, ctx.Err()
	}
}

// Send queues a command, blocking until accepted or ctx is done.
func (s ChanSource) Send(ctx context.Context, cmd Command) error {
	select {
	case s <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
