package messages

import (
	"fmt"

	"github.com/robotalks/ghostkb/pkg/side"
)

// Tag identifies the subsystem a payload belongs to.
type Tag byte

// Payload tags.
const (
	TagKeys Tag = iota + 1
	TagDisplay
	TagRGB
	TagTrackpad
	TagUSB
	TagHeartbeat
	TagFirmwareUpdate
)

var tagNames = map[Tag]string{
	TagKeys:           "keys",
	TagDisplay:        "display",
	TagRGB:            "rgb",
	TagTrackpad:       "trackpad",
	TagUSB:            "usb",
	TagHeartbeat:      "heartbeat",
	TagFirmwareUpdate: "fw-update",
}

// String implements Stringer.
func (t Tag) String() string {
	if name, ok := tagNames[t]; ok {
		return name
	}
	return fmt.Sprintf("tag(%d)", byte(t))
}

// Payload is a tagged, opaque message body.
type Payload struct {
	Tag  Tag
	Data []byte
}

// Envelope is the unit of transmission. It is treated as immutable once
// submitted: the pool assigns Seq and Origin, nobody changes it after.
type Envelope struct {
	Payload Payload
	Class   Class
	Seq     Seq
	Origin  side.Side
}

// Wrap attaches a reliability class to a payload.
func Wrap(payload Payload, class Class) Envelope {
	return Envelope{Payload: payload, Class: class}
}

// UnreliableMsg wraps a fire-and-forget payload.
func UnreliableMsg(payload Payload) Envelope {
	return Wrap(payload, Unreliable)
}

// LowLatencyMsg wraps a payload where staleness is worse than loss.
func LowLatencyMsg(payload Payload) Envelope {
	return Wrap(payload, LowLatency)
}

// ReliableMsg wraps a payload which must arrive.
func ReliableMsg(payload Payload) Envelope {
	return Wrap(payload, Reliable)
}

// String implements Stringer.
func (e Envelope) String() string {
	return fmt.Sprintf("%s#%d[%s %s %dB]", e.Origin, e.Seq, e.Class, e.Payload.Tag, len(e.Payload.Data))
}
