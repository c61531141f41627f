package interboard

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/ghostkb/pkg/messages"
	"github.com/robotalks/ghostkb/pkg/messages/pool"
	"github.com/robotalks/ghostkb/pkg/side"
)

// Sink receives decoded, deduplicated envelopes from the peer.
type Sink interface {
	Deliver(messages.Envelope)
}

// DeliverFunc is func type of Sink.
type DeliverFunc func(messages.Envelope)

// Deliver implements Sink.
func (f DeliverFunc) Deliver(env messages.Envelope) {
	f(env)
}

// Transport defaults.
const (
	DefaultPollInterval    = time.Millisecond
	DefaultMaxPollInterval = 50 * time.Millisecond
	DefaultTurnTimeout     = 2 * time.Millisecond
	DefaultFrameTimeout    = 5 * time.Millisecond
	DefaultDedupExpiry     = time.Second
)

// Config tunes the link cadence.
type Config struct {
	// PollInterval is how often an idle initiator offers the responder a turn.
	PollInterval time.Duration
	// MaxPollInterval caps the poll backoff while the responder is silent.
	MaxPollInterval time.Duration
	// TurnTimeout is how long the initiator waits for the reply.
	TurnTimeout time.Duration
	// FrameTimeout abandons a partially received frame.
	FrameTimeout time.Duration
	// DedupExpiry forgets the sequence history of a silent peer.
	DedupExpiry time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.MaxPollInterval < c.PollInterval {
		c.MaxPollInterval = DefaultMaxPollInterval
		if c.MaxPollInterval < c.PollInterval {
			c.MaxPollInterval = c.PollInterval
		}
	}
	if c.TurnTimeout <= 0 {
		c.TurnTimeout = DefaultTurnTimeout
	}
	if c.FrameTimeout <= 0 {
		c.FrameTimeout = DefaultFrameTimeout
	}
	if c.DedupExpiry <= 0 {
		c.DedupExpiry = DefaultDedupExpiry
	}
	return c
}

// Stats is a snapshot of transport counters.
type Stats struct {
	FramesSent     uint64
	FramesReceived uint64
	Delivered      uint64
	ChecksumErrors uint64
	Malformed      uint64
	Duplicates     uint64
	Retransmits    uint64
	Drops          uint64
	GarbageBytes   uint64
	TurnTimeouts   uint64
}

var errTransportStopped = errors.New("transport stopped")

// Transport is the only component driving the link. It pulls outbound
// envelopes from the pool, runs the retry state machine of in-flight
// slots and hands inbound envelopes to the sink.
type Transport struct {
	conf  Config
	role  side.Role
	local side.Side
	link  Link
	pool  *pool.Pool
	sink  Sink

	// owned by the Run goroutine.
	parser         Parser
	inflight       map[messages.Seq]*pool.Slot
	resend         []*pool.Slot
	nextSlot       *pool.Slot
	nextUnreliable *pool.Receipt
	ackPending     bool
	ackSeq         messages.Seq
	dedup          [2]dedupWindow
	silentTurns    uint

	statsLock sync.Mutex
	stats     Stats
}

// NewTransport creates a Transport. The role is fixed for its lifetime.
func NewTransport(role side.Role, local side.Side, link Link, p *pool.Pool, sink Sink, conf Config) *Transport {
	return &Transport{
		conf:     conf.withDefaults(),
		role:     role,
		local:    local,
		link:     link,
		pool:     p,
		sink:     sink,
		inflight: make(map[messages.Seq]*pool.Slot),
	}
}

// Name implements framework.Named.
func (t *Transport) Name() string {
	return "interboard"
}

// Role returns the boot-time role.
func (t *Transport) Role() side.Role {
	return t.role
}

// Stats returns a snapshot of the counters.
func (t *Transport) Stats() Stats {
	t.statsLock.Lock()
	defer t.statsLock.Unlock()
	return t.stats
}

func (t *Transport) count(fn func(*Stats)) {
	t.statsLock.Lock()
	fn(&t.stats)
	t.statsLock.Unlock()
}

// Run drives the link until ctx is done or the link fails.
func (t *Transport) Run(ctx context.Context) error {
	defer t.stop()
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	dataCh, errCh := make(chan []byte), make(chan error, 1)
	go t.readLoop(subCtx, dataCh, errCh)
	glog.Infof("interboard: %s side running as %s", t.local, t.role)
	if t.role == side.Initiator {
		return t.runInitiator(ctx, dataCh, errCh)
	}
	return t.runResponder(ctx, dataCh, errCh)
}

func (t *Transport) readLoop(ctx context.Context, dataCh chan<- []byte, errCh chan<- error) {
	buf := make([]byte, MaxFrameSize)
	for {
		n, err := t.link.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			select {
			case dataCh <- data:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			errCh <- err
			return
		}
	}
}

func (t *Transport) runInitiator(ctx context.Context, dataCh <-chan []byte, errCh <-chan error) error {
	pollTimer := time.After(0)
	for {
		var pendingCh <-chan *pool.Slot
		if t.nextSlot == nil {
			pendingCh = t.pool.Pending()
		}
		var unreliableCh <-chan *pool.Receipt
		if t.nextUnreliable == nil {
			unreliableCh = t.pool.Unreliable()
		}
		var poll bool
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			return err
		case data := <-dataCh:
			// the responder never talks unsolicited; process it anyway.
			if _, err := t.receive(data, nil); err != nil {
				return err
			}
		case slot := <-pendingCh:
			t.nextSlot = slot
		case r := <-unreliableCh:
			t.nextUnreliable = r
		case <-t.deadlineTimer():
		case <-pollTimer:
			poll = true
		}
		now := time.Now()
		t.checkDeadlines(now)
		if !poll && !t.hasOutbound() {
			continue
		}
		if err := t.transmit(now); err != nil {
			return err
		}
		replied, err := t.awaitReply(ctx, dataCh, errCh)
		if err != nil {
			return err
		}
		pollTimer = time.After(t.pollInterval(replied))
	}
}

func (t *Transport) awaitReply(ctx context.Context, dataCh <-chan []byte, errCh <-chan error) (bool, error) {
	timeout := time.After(t.conf.TurnTimeout)
	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case err := <-errCh:
			return false, err
		case data := <-dataCh:
			n, err := t.receive(data, nil)
			if err != nil || n > 0 {
				return n > 0, err
			}
		case <-timeout:
			n, err := t.expire(nil)
			if n == 0 {
				t.count(func(s *Stats) { s.TurnTimeouts++ })
			}
			return n > 0, err
		}
	}
}

// pollInterval backs off polling while the responder stays silent.
func (t *Transport) pollInterval(replied bool) time.Duration {
	if replied {
		t.silentTurns = 0
		return t.conf.PollInterval
	}
	if t.silentTurns < 16 {
		t.silentTurns++
	}
	d := t.conf.PollInterval << t.silentTurns
	if d <= 0 || d > t.conf.MaxPollInterval {
		d = t.conf.MaxPollInterval
	}
	return d
}

func (t *Transport) runResponder(ctx context.Context, dataCh <-chan []byte, errCh <-chan error) error {
	var frameTimer <-chan time.Time
	reply := func() error {
		now := time.Now()
		t.checkDeadlines(now)
		return t.transmit(now)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			return err
		case data := <-dataCh:
			if _, err := t.receive(data, reply); err != nil {
				return err
			}
			frameTimer = nil
			if t.parser.Receiving() {
				frameTimer = time.After(t.conf.FrameTimeout)
			}
		case <-frameTimer:
			if _, err := t.expire(reply); err != nil {
				return err
			}
			frameTimer = nil
			if t.parser.Receiving() {
				frameTimer = time.After(t.conf.FrameTimeout)
			}
		case <-t.deadlineTimer():
			t.checkDeadlines(time.Now())
		}
	}
}

// receive parses bytes and calls onFrame after each valid peer frame.
func (t *Transport) receive(data []byte, onFrame func() error) (int, error) {
	return t.parse(func(emit func(ParseResult)) {
		for _, b := range data {
			t.parser.Parse(b, emit)
		}
	}, onFrame)
}

// expire abandons a stalled partial frame, recovering any frame it hid.
func (t *Transport) expire(onFrame func() error) (int, error) {
	return t.parse(t.parser.Timeout, onFrame)
}

func (t *Transport) parse(feed func(emit func(ParseResult)), onFrame func() error) (frames int, err error) {
	feed(func(pr ParseResult) {
		if err != nil {
			return
		}
		if pr.Skipped > 0 {
			t.count(func(s *Stats) { s.GarbageBytes += uint64(pr.Skipped) })
		}
		switch pr.Err {
		case nil:
		case ErrChecksumMismatch:
			// no ack: the sender's deadline recovers it.
			glog.V(2).Infof("interboard: frame discarded: %v", pr.Err)
			t.count(func(s *Stats) { s.ChecksumErrors++ })
			return
		default:
			glog.V(2).Infof("interboard: frame discarded: %v", pr.Err)
			t.count(func(s *Stats) { s.Malformed++ })
			return
		}
		if pr.Frame == nil || !t.handleFrame(pr.Frame, time.Now()) {
			return
		}
		frames++
		if onFrame != nil {
			err = onFrame()
		}
	})
	return
}

func (t *Transport) handleFrame(f *Frame, now time.Time) bool {
	if f.Origin == t.local {
		glog.V(2).Infof("interboard: ignoring frame from own side: %s", f)
		return false
	}
	glog.V(4).Infof("RX %s", f)
	t.count(func(s *Stats) { s.FramesReceived++ })
	if f.HasAck {
		t.resolveAck(f.Ack)
	}
	if !f.HasPayload {
		return true
	}
	env := f.Envelope()
	if env.Class.Acknowledged() {
		// acked again even when duplicated, the first ack may be lost.
		t.ackPending, t.ackSeq = true, env.Seq
	}
	if t.dedup[f.Origin].Observe(env.Seq, now, t.conf.DedupExpiry) {
		glog.V(2).Infof("interboard: %s: %v", env, ErrDuplicateDetected)
		t.count(func(s *Stats) { s.Duplicates++ })
		return true
	}
	t.count(func(s *Stats) { s.Delivered++ })
	t.sink.Deliver(env)
	return true
}

func (t *Transport) resolveAck(seq messages.Seq) {
	slot, ok := t.inflight[seq]
	if !ok {
		glog.V(2).Infof("interboard: ack for unknown #%d", seq)
		return
	}
	delete(t.inflight, seq)
	t.removeResend(slot)
	t.pool.Release(slot, pool.Delivered)
}

// checkDeadlines runs the retry state machine of in-flight slots.
func (t *Transport) checkDeadlines(now time.Time) {
	for seq, slot := range t.inflight {
		if !slot.Expired(now) {
			continue
		}
		if slot.RetriesLeft > 0 {
			t.pool.Arm(slot, pool.SlotResent, now)
			if !t.queuedForResend(slot) {
				t.resend = append(t.resend, slot)
			}
			t.count(func(s *Stats) { s.Retransmits++ })
			continue
		}
		delete(t.inflight, seq)
		t.removeResend(slot)
		glog.Warningf("interboard: dropping %s after %d attempts: %v", slot.Envelope, slot.Attempts, messages.ErrDeadlineExceeded)
		t.pool.Release(slot, pool.Dropped)
		t.count(func(s *Stats) { s.Drops++ })
	}
}

func (t *Transport) queuedForResend(slot *pool.Slot) bool {
	for _, s := range t.resend {
		if s == slot {
			return true
		}
	}
	return false
}

func (t *Transport) removeResend(slot *pool.Slot) {
	for n, s := range t.resend {
		if s == slot {
			t.resend = append(t.resend[:n], t.resend[n+1:]...)
			return
		}
	}
}

func (t *Transport) deadlineTimer() <-chan time.Time {
	var earliest time.Time
	for _, slot := range t.inflight {
		if slot.State.AwaitingAck() && (earliest.IsZero() || slot.Deadline.Before(earliest)) {
			earliest = slot.Deadline
		}
	}
	if earliest.IsZero() {
		return nil
	}
	return time.After(time.Until(earliest))
}

func (t *Transport) hasOutbound() bool {
	return t.ackPending || len(t.resend) > 0 || t.nextSlot != nil || t.nextUnreliable != nil
}

func (t *Transport) pullOutbound() {
	if t.nextSlot == nil {
		select {
		case t.nextSlot = <-t.pool.Pending():
		default:
		}
	}
	if t.nextUnreliable == nil {
		select {
		case t.nextUnreliable = <-t.pool.Unreliable():
		default:
		}
	}
}

// transmit sends exactly one frame: the pending ack and at most one
// payload, retransmissions first.
func (t *Transport) transmit(now time.Time) error {
	t.pullOutbound()
	f := &Frame{Origin: t.local}
	if t.ackPending {
		f.HasAck, f.Ack = true, t.ackSeq
		t.ackPending = false
	}
	var slot *pool.Slot
	var unreliable *pool.Receipt
	switch {
	case len(t.resend) > 0:
		slot, t.resend = t.resend[0], t.resend[1:]
		setPayload(f, slot.Envelope)
	case t.nextSlot != nil && t.inWindow(t.nextSlot.Envelope.Seq):
		slot, t.nextSlot = t.nextSlot, nil
		setPayload(f, slot.Envelope)
		t.pool.Arm(slot, pool.SlotSent, now)
		t.inflight[slot.Envelope.Seq] = slot
	case t.nextUnreliable != nil && t.inWindow(t.nextUnreliable.Envelope().Seq):
		unreliable, t.nextUnreliable = t.nextUnreliable, nil
		setPayload(f, unreliable.Envelope())
	}

	data, err := f.Encode()
	if err != nil {
		glog.Errorf("interboard: encode %s: %v", f, err)
		if slot != nil {
			delete(t.inflight, slot.Envelope.Seq)
			t.pool.Release(slot, pool.Dropped)
		}
		if unreliable != nil {
			t.pool.MarkTransmitted(unreliable, err)
		}
		f.HasPayload, f.Payload = false, messages.Payload{}
		if data, err = f.Encode(); err != nil {
			return err
		}
		unreliable = nil
	}
	_, err = t.link.Write(data)
	if unreliable != nil {
		t.pool.MarkTransmitted(unreliable, err)
	}
	if err != nil {
		return err
	}
	glog.V(4).Infof("TX %s", f)
	t.count(func(s *Stats) { s.FramesSent++ })
	return nil
}

// inWindow reports whether sending seq keeps every in-flight envelope
// inside the peer's dedup window, so a later retransmission of it is
// still recognized as a duplicate.
func (t *Transport) inWindow(seq messages.Seq) bool {
	for _, slot := range t.inflight {
		if seq.Distance(slot.Envelope.Seq) >= DedupWindow {
			return false
		}
	}
	return true
}

func setPayload(f *Frame, env messages.Envelope) {
	f.Seq, f.HasPayload = env.Seq, true
	f.Class, f.Payload = env.Class, env.Payload
}

// stop resolves everything still owned by the transport as dropped so
// no producer waits forever, then closes the link.
func (t *Transport) stop() {
	for seq, slot := range t.inflight {
		delete(t.inflight, seq)
		t.pool.Release(slot, pool.Dropped)
	}
	t.resend = nil
	if t.nextSlot != nil {
		t.pool.Release(t.nextSlot, pool.Dropped)
		t.nextSlot = nil
	}
	if t.nextUnreliable != nil {
		t.pool.MarkTransmitted(t.nextUnreliable, errTransportStopped)
		t.nextUnreliable = nil
	}
drain:
	for {
		select {
		case slot := <-t.pool.Pending():
			t.pool.Release(slot, pool.Dropped)
		case r := <-t.pool.Unreliable():
			t.pool.MarkTransmitted(r, errTransportStopped)
		default:
			break drain
		}
	}
	if closer, ok := t.link.(io.Closer); ok {
		closer.Close()
	}
	glog.Infof("interboard: %s side stopped", t.local)
}
