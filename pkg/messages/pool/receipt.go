package pool

import (
	"sync"

	"github.com/robotalks/ghostkb/pkg/messages"
)

// Outcome is the terminal result of a submission.
type Outcome int

// Outcomes.
const (
	// Pending is reported before resolution.
	Pending Outcome = iota
	// Transmitted means an unreliable envelope went out once.
	Transmitted
	// Delivered means the peer acknowledged the envelope.
	Delivered
	// Dropped means the envelope was given up.
	Dropped
)

// String implements Stringer.
func (o Outcome) String() string {
	switch o {
	case Transmitted:
		return "transmitted"
	case Delivered:
		return "delivered"
	case Dropped:
		return "dropped"
	}
	return "pending"
}

// Receipt lets a producer observe the outcome of a submission.
type Receipt struct {
	env     messages.Envelope
	done    chan struct{}
	once    sync.Once
	outcome Outcome
}

func newReceipt(env messages.Envelope) *Receipt {
	return &Receipt{env: env, done: make(chan struct{})}
}

// Envelope returns the submitted envelope with its sequence number.
func (r *Receipt) Envelope() messages.Envelope {
	return r.env
}

// Done is closed once the outcome is known.
func (r *Receipt) Done() <-chan struct{} {
	return r.done
}

// Outcome returns the outcome, Pending if unresolved.
func (r *Receipt) Outcome() Outcome {
	select {
	case <-r.done:
		return r.outcome
	default:
		return Pending
	}
}

// Wait blocks until the outcome is known.
func (r *Receipt) Wait() Outcome {
	<-r.done
	return r.outcome
}

// Err converts a Dropped outcome of an acknowledged class to an error.
func (r *Receipt) Err() error {
	if r.Outcome() == Dropped {
		return messages.ErrDeadlineExceeded
	}
	return nil
}

func (r *Receipt) resolve(outcome Outcome) {
	r.once.Do(func() {
		r.outcome = outcome
		close(r.done)
	})
}
