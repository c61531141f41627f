package pool

import (
	"fmt"
	"time"

	"github.com/robotalks/ghostkb/pkg/messages"
)

// SlotState is the lifecycle state of a pool slot.
type SlotState int

// Slot states.
const (
	// SlotFree has never been used.
	SlotFree SlotState = iota
	// SlotPending is acquired and queued for its first transmission.
	SlotPending
	// SlotSent has been transmitted once and waits for an ack.
	SlotSent
	// SlotResent has been retransmitted at least once and waits for an ack.
	SlotResent
	// SlotDelivered was acknowledged by the peer.
	SlotDelivered
	// SlotDropped ran out of retries.
	SlotDropped
)

var slotStateNames = []string{"free", "pending", "sent", "resent", "delivered", "dropped"}

// String implements Stringer.
func (s SlotState) String() string {
	if s < 0 || int(s) >= len(slotStateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return slotStateNames[s]
}

// AwaitingAck indicates the slot is on the wire and waits for an ack.
func (s SlotState) AwaitingAck() bool {
	return s == SlotSent || s == SlotResent
}

// IsTerminal indicates the slot is resolved.
func (s SlotState) IsTerminal() bool {
	return s == SlotDelivered || s == SlotDropped
}

// Slot is one in-flight acknowledged transmission. Slots are owned by
// the pool; the transport only holds references while they are in flight.
type Slot struct {
	Envelope    messages.Envelope
	Policy      messages.Policy
	State       SlotState
	RetriesLeft int
	Attempts    int
	Deadline    time.Time

	index   int
	receipt *Receipt
}

// Expired checks the deadline of an in-flight slot.
func (s *Slot) Expired(now time.Time) bool {
	return s.State.AwaitingAck() && !now.Before(s.Deadline)
}

// Receipt returns the producer side handle of the slot.
func (s *Slot) Receipt() *Receipt {
	return s.receipt
}
