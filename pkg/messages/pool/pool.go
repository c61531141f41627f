// Package pool provides the bounded set of in-flight transmission slots
// shared by all producers and the interboard transport.
package pool

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"
	"golang.org/x/sync/semaphore"

	"github.com/robotalks/ghostkb/pkg/messages"
	"github.com/robotalks/ghostkb/pkg/side"
)

// Defaults.
const (
	DefaultCapacity        = 8
	DefaultAcquireTimeout  = 50 * time.Millisecond
	DefaultUnreliableQueue = 8
)

// Config configures a Pool.
type Config struct {
	// Capacity is the number of acknowledged envelopes in flight at once.
	Capacity int
	// AcquireTimeout bounds how long Acquire suspends. Zero means no wait.
	AcquireTimeout time.Duration
	// UnreliableQueue is the depth of the unreliable hand-off queue.
	UnreliableQueue int
	// MaxPayload limits payload size, zero for unlimited.
	MaxPayload int
	// Origin is stamped on every submitted envelope.
	Origin side.Side
	// Policies is the class table, DefaultPolicies if zero.
	Policies messages.Policies
}

// Stats is a snapshot of pool counters.
type Stats struct {
	Capacity          int
	InFlight          int
	HighWater         int
	Exhausted         uint64
	Delivered         uint64
	Dropped           uint64
	UnreliableSent    uint64
	UnreliableDropped uint64
}

// Pool manages a fixed number of slots. A producer suspends in Acquire
// when all slots are in flight; the suspension is FIFO and bounded.
type Pool struct {
	acquireTimeout time.Duration
	maxPayload     int
	origin         side.Side
	policies       messages.Policies

	sem        *semaphore.Weighted
	pending    chan *Slot
	unreliable chan *Receipt

	lock  sync.Mutex
	slots []Slot
	free  []int
	seq   messages.Seq
	stats Stats
}

// New creates a Pool. All slots are allocated here.
func New(conf Config) *Pool {
	if conf.Capacity <= 0 {
		conf.Capacity = DefaultCapacity
	}
	if conf.UnreliableQueue <= 0 {
		conf.UnreliableQueue = DefaultUnreliableQueue
	}
	if conf.Policies == (messages.Policies{}) {
		conf.Policies = messages.DefaultPolicies
	}
	p := &Pool{
		acquireTimeout: conf.AcquireTimeout,
		maxPayload:     conf.MaxPayload,
		origin:         conf.Origin,
		policies:       conf.Policies,
		sem:            semaphore.NewWeighted(int64(conf.Capacity)),
		pending:        make(chan *Slot, conf.Capacity),
		unreliable:     make(chan *Receipt, conf.UnreliableQueue),
		slots:          make([]Slot, conf.Capacity),
		free:           make([]int, conf.Capacity),
		seq:            messages.NewSeq(),
	}
	for n := range p.slots {
		p.slots[n].index = n
		p.free[n] = conf.Capacity - 1 - n
	}
	p.stats.Capacity = conf.Capacity
	return p
}

// Policies returns the class table in use.
func (p *Pool) Policies() messages.Policies {
	return p.policies
}

// Origin returns the side stamped on envelopes.
func (p *Pool) Origin() side.Side {
	return p.origin
}

// Acquire reserves a slot for an acknowledged class. It suspends until a
// slot frees or the bounded wait elapses with ErrPoolExhausted.
func (p *Pool) Acquire(class messages.Class) (*Slot, error) {
	if !class.Acknowledged() {
		return nil, ErrNotAcknowledged
	}
	if !p.sem.TryAcquire(1) {
		if err := p.waitSlot(); err != nil {
			p.lock.Lock()
			p.stats.Exhausted++
			p.lock.Unlock()
			return nil, err
		}
	}

	p.lock.Lock()
	defer p.lock.Unlock()
	index := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	slot := &p.slots[index]
	policy := p.policies.Of(class)
	*slot = Slot{
		index:       index,
		Envelope:    messages.Wrap(messages.Payload{}, class),
		Policy:      policy,
		State:       SlotPending,
		RetriesLeft: policy.Retries,
	}
	p.stats.InFlight++
	if p.stats.InFlight > p.stats.HighWater {
		p.stats.HighWater = p.stats.InFlight
	}
	return slot, nil
}

func (p *Pool) waitSlot() error {
	if p.acquireTimeout <= 0 {
		return messages.ErrPoolExhausted
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.acquireTimeout)
	defer cancel()
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return messages.ErrPoolExhausted
	}
	return nil
}

// Release resolves a slot and returns its capacity, waking the oldest
// suspended acquirer. Releasing a slot which is not in flight is a no-op.
func (p *Pool) Release(slot *Slot, outcome Outcome) {
	p.lock.Lock()
	if slot.State == SlotFree || slot.State.IsTerminal() {
		p.lock.Unlock()
		return
	}
	if outcome == Delivered {
		slot.State = SlotDelivered
		p.stats.Delivered++
	} else {
		outcome = Dropped
		slot.State = SlotDropped
		p.stats.Dropped++
	}
	receipt := slot.receipt
	slot.receipt = nil
	p.free = append(p.free, slot.index)
	p.stats.InFlight--
	p.lock.Unlock()

	if receipt != nil {
		receipt.resolve(outcome)
	}
	p.sem.Release(1)
}

// Arm records a transmission of an in-flight slot and restarts its
// deadline. SlotResent consumes one retry.
func (p *Pool) Arm(slot *Slot, state SlotState, now time.Time) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if state == SlotResent && slot.RetriesLeft > 0 {
		slot.RetriesLeft--
	}
	slot.State = state
	slot.Attempts++
	slot.Deadline = now.Add(slot.Policy.Deadline)
}

// Submit wraps a payload, stamps the next sequence number and hands it
// to the transport. Acknowledged classes may suspend in Acquire;
// Unreliable never blocks and never holds a slot.
func (p *Pool) Submit(payload messages.Payload, class messages.Class) (*Receipt, error) {
	if !class.IsValid() {
		return nil, ErrInvalidClass
	}
	if p.maxPayload > 0 && len(payload.Data) > p.maxPayload {
		return nil, messages.ErrPayloadTooLarge
	}
	env := messages.Wrap(payload, class)
	if !class.Acknowledged() {
		p.lock.Lock()
		env.Seq, env.Origin = p.nextSeqLocked(), p.origin
		p.lock.Unlock()
		receipt := newReceipt(env)
		select {
		case p.unreliable <- receipt:
		default:
			p.lock.Lock()
			p.stats.UnreliableDropped++
			p.lock.Unlock()
			glog.V(2).Infof("unreliable queue full, dropping %s", env)
			receipt.resolve(Dropped)
		}
		return receipt, nil
	}

	slot, err := p.Acquire(class)
	if err != nil {
		return nil, err
	}
	p.lock.Lock()
	env.Seq, env.Origin = p.nextSeqLocked(), p.origin
	slot.Envelope = env
	receipt := newReceipt(env)
	slot.receipt = receipt
	p.lock.Unlock()
	// never blocks: the channel holds Capacity slots.
	p.pending <- slot
	return receipt, nil
}

func (p *Pool) nextSeqLocked() messages.Seq {
	seq := p.seq
	p.seq = p.seq.Next()
	return seq
}

// Pending delivers acquired slots to the transport in submission order.
func (p *Pool) Pending() <-chan *Slot {
	return p.pending
}

// Unreliable delivers unreliable envelopes to the transport.
func (p *Pool) Unreliable() <-chan *Receipt {
	return p.unreliable
}

// MarkTransmitted resolves an unreliable receipt after its single attempt.
func (p *Pool) MarkTransmitted(receipt *Receipt, err error) {
	p.lock.Lock()
	if err != nil {
		p.stats.UnreliableDropped++
	} else {
		p.stats.UnreliableSent++
	}
	p.lock.Unlock()
	if err != nil {
		receipt.resolve(Dropped)
	} else {
		receipt.resolve(Transmitted)
	}
}

// Stats returns a snapshot of the counters.
func (p *Pool) Stats() Stats {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.stats
}
