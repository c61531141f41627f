// Package distributor fans inbound envelopes out to the subsystems and
// multiplexes subsystem submissions into the transmission pool.
package distributor

import (
	"context"
	"errors"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/ghostkb/pkg/messages"
	"github.com/robotalks/ghostkb/pkg/messages/pool"
	"github.com/robotalks/ghostkb/pkg/usb"
)

// DefaultInboxSize is the backlog between the transport and Run.
const DefaultInboxSize = 32

// Submitter accepts outbound payloads, implemented by pool.Pool.
type Submitter interface {
	Submit(messages.Payload, messages.Class) (*pool.Receipt, error)
}

// Stats is a snapshot of distributor counters.
type Stats struct {
	Routed       uint64
	Unroutable   uint64
	Submitted    uint64
	SubmitFailed uint64
	USBCommands  uint64
}

// Distributor routes envelopes by payload tag. Each tag keeps FIFO
// order; there is no ordering across tags.
type Distributor struct {
	// LocalEcho also routes forwarded USB commands to local subscribers,
	// so both halves apply them. Reliable commands are echoed once the
	// peer resolved them.
	LocalEcho bool

	submitter Submitter
	inbox     chan messages.Envelope
	done      chan struct{}
	doneOnce  sync.Once

	lock   sync.RWMutex
	routes map[messages.Tag][]chan messages.Envelope
	stats  Stats
}

// New creates a Distributor submitting into s.
func New(s Submitter) *Distributor {
	return &Distributor{
		submitter: s,
		inbox:     make(chan messages.Envelope, DefaultInboxSize),
		done:      make(chan struct{}),
		routes:    make(map[messages.Tag][]chan messages.Envelope),
	}
}

// Name implements framework.Named.
func (d *Distributor) Name() string {
	return "distributor"
}

// Subscribe creates a channel receiving envelopes of tag.
func (d *Distributor) Subscribe(tag messages.Tag, size int) <-chan messages.Envelope {
	ch := make(chan messages.Envelope, size)
	d.lock.Lock()
	d.routes[tag] = append(d.routes[tag], ch)
	d.lock.Unlock()
	return ch
}

// Deliver implements interboard.Sink. It blocks while the inbox is full
// so the link slows down instead of losing acknowledged envelopes.
func (d *Distributor) Deliver(env messages.Envelope) {
	select {
	case d.inbox <- env:
	case <-d.done:
		glog.V(2).Infof("distributor stopped, dropping %s", env)
	}
}

// Run routes envelopes until ctx is done.
func (d *Distributor) Run(ctx context.Context) error {
	defer d.doneOnce.Do(func() { close(d.done) })
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env := <-d.inbox:
			if err := d.route(ctx, env); err != nil {
				return err
			}
		}
	}
}

func (d *Distributor) route(ctx context.Context, env messages.Envelope) error {
	d.lock.RLock()
	subs := d.routes[env.Payload.Tag]
	d.lock.RUnlock()
	if len(subs) == 0 {
		err := &messages.UnroutableTagError{Tag: env.Payload.Tag}
		glog.Warningf("distributor: %s: %v", env, err)
		d.count(func(s *Stats) { s.Unroutable++ })
		return nil
	}
	for _, ch := range subs {
		select {
		case ch <- env:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	glog.V(4).Infof("distributor: routed %s", env)
	d.count(func(s *Stats) { s.Routed++ })
	return nil
}

// Submit hands a subsystem payload to the pool.
func (d *Distributor) Submit(payload messages.Payload, class messages.Class) (*pool.Receipt, error) {
	r, err := d.submitter.Submit(payload, class)
	if err != nil {
		d.count(func(s *Stats) { s.SubmitFailed++ })
		return nil, err
	}
	d.count(func(s *Stats) { s.Submitted++ })
	return r, nil
}

// Classify picks the reliability class of a host command.
func Classify(cmd usb.Command) messages.Class {
	switch cmd.Kind {
	case usb.KindPing, usb.KindStatus:
		return messages.Unreliable
	case usb.KindSetRGB, usb.KindSetBacklight:
		return messages.LowLatency
	}
	return messages.Reliable
}

// FromUSB forwards host commands to the peer half until ctx is done or
// the source closes. A command which cannot be submitted is dropped;
// the host may retry.
func (d *Distributor) FromUSB(ctx context.Context, src usb.CommandSource) error {
	for {
		cmd, err := src.Receive(ctx)
		if errors.Is(err, usb.ErrSourceClosed) {
			glog.Info("distributor: usb source closed")
			return nil
		}
		if err != nil {
			return err
		}
		d.count(func(s *Stats) { s.USBCommands++ })
		payload, err := usb.Payload(cmd)
		if err != nil {
			glog.Warningf("distributor: usb %s: %v", cmd, err)
			continue
		}
		class := Classify(cmd)
		r, err := d.Submit(payload, class)
		if err != nil {
			glog.Warningf("distributor: usb %s (%s) dropped: %v", cmd, class, err)
			continue
		}
		glog.V(2).Infof("distributor: usb %s submitted as %s", cmd, class)
		if d.LocalEcho && r != nil {
			d.echo(ctx, r)
		}
	}
}

func (d *Distributor) echo(ctx context.Context, r *pool.Receipt) {
	env := r.Envelope()
	if env.Class != messages.Reliable {
		d.Deliver(env)
		return
	}
	go func() {
		select {
		case <-r.Done():
			if outcome := r.Outcome(); outcome != pool.Delivered {
				glog.Warningf("distributor: %s %s by peer, not applied locally", env, outcome)
				return
			}
			d.Deliver(env)
		case <-ctx.Done():
		}
	}()
}

// USBTask wraps FromUSB as a named task.
func (d *Distributor) USBTask(src usb.CommandSource) *USBBridge {
	return &USBBridge{d: d, src: src}
}

// USBBridge is the from-USB forwarding task.
type USBBridge struct {
	d   *Distributor
	src usb.CommandSource
}

// Name implements framework.Named.
func (b *USBBridge) Name() string {
	return "usb-bridge"
}

// Run implements framework.Task.
func (b *USBBridge) Run(ctx context.Context) error {
	return b.d.FromUSB(ctx, b.src)
}

// Stats returns a snapshot of the counters.
func (d *Distributor) Stats() Stats {
	d.lock.RLock()
	defer d.lock.RUnlock()
	return d.stats
}

func (d *Distributor) count(fn func(*Stats)) {
	d.lock.Lock()
	fn(&d.stats)
	d.lock.Unlock()
}
