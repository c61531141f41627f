package messages

import (
	"fmt"
	"strings"
	"time"
)

// Class is the reliability tier of an envelope.
type Class byte

// Reliability classes.
const (
	// Unreliable is fire-and-forget, sent exactly once.
	Unreliable Class = iota
	// LowLatency favors freshness: short deadline, a single retry.
	LowLatency
	// Reliable must eventually arrive or be reported as dropped.
	Reliable

	numClasses
)

var classNames = [numClasses]string{"unreliable", "low-latency", "reliable"}

// IsValid checks the class is known.
func (c Class) IsValid() bool {
	return c < numClasses
}

// Acknowledged indicates the receiver replies with an ack and the
// sender holds a pool slot until it resolves.
func (c Class) Acknowledged() bool {
	return c == LowLatency || c == Reliable
}

// String implements Stringer.
func (c Class) String() string {
	if !c.IsValid() {
		return fmt.Sprintf("class(%d)", byte(c))
	}
	return classNames[c]
}

// ParseClass parses the name of a class.
func ParseClass(str string) (Class, error) {
	str = strings.ToLower(strings.TrimSpace(str))
	for n, name := range classNames {
		if name == str {
			return Class(n), nil
		}
	}
	return Unreliable, fmt.Errorf("unknown reliability class %q", str)
}

// Policy is the delivery contract of a class.
type Policy struct {
	// Deadline bounds each transmission attempt; zero means no ack is awaited.
	Deadline time.Duration
	// Retries is the number of retransmissions after the first attempt.
	Retries int
}

// Budget is the longest an envelope stays unresolved once transmitted.
func (p Policy) Budget() time.Duration {
	return p.Deadline * time.Duration(p.Retries+1)
}

// Policies maps each class to its policy.
type Policies [numClasses]Policy

// Policy constants.
const (
	LowLatencyDeadline = 2 * time.Millisecond
	ReliableDeadline   = 20 * time.Millisecond
	ReliableRetries    = 5
)

// DefaultPolicies is the class table used by the firmware.
var DefaultPolicies = Policies{
	Unreliable: {},
	LowLatency: {Deadline: LowLatencyDeadline, Retries: 1},
	Reliable:   {Deadline: ReliableDeadline, Retries: ReliableRetries},
}

// Of looks up the policy of a class. Unknown classes get the
// unreliable policy.
func (p *Policies) Of(c Class) Policy {
	if !c.IsValid() {
		return p[Unreliable]
	}
	return p[c]
}

// Scaled returns a copy with all deadlines multiplied by factor, used
// for links much slower than the wire between two halves.
func (p Policies) Scaled(factor int) Policies {
	if factor <= 1 {
		return p
	}
	for n := range p {
		p[n].Deadline *= time.Duration(factor)
	}
	return p
}
