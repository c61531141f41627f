package firmware

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/ghostkb/pkg/messages"
)

// SubsystemQueueSize is the channel depth of a subsystem.
const SubsystemQueueSize = 8

// Subsystem consumes the payloads of one tag. Keys, display, RGB and
// trackpad drivers sit behind it.
type Subsystem struct {
	Tag     messages.Tag
	Updates <-chan messages.Envelope
	// Handle is called for every envelope, optional.
	Handle func(messages.Envelope)

	lock     sync.Mutex
	received uint64
	last     messages.Envelope
	lastAt   time.Time
}

// Name implements framework.Named.
func (s *Subsystem) Name() string {
	return s.Tag.String()
}

// Run implements framework.Task.
func (s *Subsystem) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env := <-s.Updates:
			glog.V(2).Infof("%s: %s", s.Tag, env)
			s.lock.Lock()
			s.received++
			s.last, s.lastAt = env, time.Now()
			s.lock.Unlock()
			if s.Handle != nil {
				s.Handle(env)
			}
		}
	}
}

// Received returns the envelope count and the last envelope.
func (s *Subsystem) Received() (uint64, messages.Envelope) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.received, s.last
}

// Since returns the time since the last envelope, false if none arrived.
func (s *Subsystem) Since(now time.Time) (time.Duration, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.lastAt.IsZero() {
		return 0, false
	}
	return now.Sub(s.lastAt), true
}
