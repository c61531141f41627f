package interboard

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/robotalks/ghostkb/pkg/messages"
	"github.com/robotalks/ghostkb/pkg/side"
)

// Frame layout (little-endian):
//
//	+-------+-----+-----+-----+-------+-------+-----+---------+-------+
//	| Start | Len | Seq | Ack | Flags | Class | Tag |  Data   | CRC32 |
//	+-------+-----+-----+-----+-------+-------+-----+---------+-------+
//	|   1   |  1  |  2  |  2  |   1   |   1   |  1  | Len - 7 |   4   |
//	+-------+-----+-----+-----+-------+-------+-----+---------+-------+
//
// Len counts Seq through Data. The CRC covers Len through Data.
const (
	StartMarker byte = 0xA5

	headerSize     = 2
	bodyHeaderSize = 7
	CRCSize        = 4

	MaxBodySize    = 0xff
	MaxPayloadSize = MaxBodySize - bodyHeaderSize
	MinFrameSize   = headerSize + bodyHeaderSize + CRCSize
	MaxFrameSize   = headerSize + MaxBodySize + CRCSize
)

// Frame flags.
const (
	FlagAck         byte = 0x01
	FlagPayload     byte = 0x02
	FlagOriginRight byte = 0x80
)

// Frame is a decoded link frame. A frame may carry a payload, an
// acknowledgment, both, or neither (a poll).
type Frame struct {
	Origin     side.Side
	Seq        messages.Seq
	HasAck     bool
	Ack        messages.Seq
	HasPayload bool
	Class      messages.Class
	Payload    messages.Payload
}

// FrameOf builds a payload frame from an envelope.
func FrameOf(env messages.Envelope) *Frame {
	return &Frame{
		Origin:     env.Origin,
		Seq:        env.Seq,
		HasPayload: true,
		Class:      env.Class,
		Payload:    env.Payload,
	}
}

// Envelope reconstructs the envelope carried by the frame.
func (f *Frame) Envelope() messages.Envelope {
	return messages.Envelope{
		Payload: f.Payload,
		Class:   f.Class,
		Seq:     f.Seq,
		Origin:  f.Origin,
	}
}

func (f *Frame) flags() (flags byte) {
	if f.HasAck {
		flags |= FlagAck
	}
	if f.HasPayload {
		flags |= FlagPayload
	}
	if f.Origin.IsRight() {
		flags |= FlagOriginRight
	}
	return
}

// Encode returns the bytes to put on the wire.
func (f *Frame) Encode() ([]byte, error) {
	var data []byte
	if f.HasPayload {
		data = f.Payload.Data
	}
	if len(data) > MaxPayloadSize {
		return nil, messages.ErrPayloadTooLarge
	}
	bodyLen := bodyHeaderSize + len(data)
	b := make([]byte, headerSize+bodyLen+CRCSize)
	b[0], b[1] = StartMarker, byte(bodyLen)
	binary.LittleEndian.PutUint16(b[2:4], uint16(f.Seq))
	binary.LittleEndian.PutUint16(b[4:6], uint16(f.Ack))
	b[6] = f.flags()
	if f.HasPayload {
		b[7], b[8] = byte(f.Class), byte(f.Payload.Tag)
		copy(b[9:], data)
	}
	crcPos := headerSize + bodyLen
	binary.LittleEndian.PutUint32(b[crcPos:], crc32.ChecksumIEEE(b[1:crcPos]))
	return b, nil
}

// String implements Stringer.
func (f *Frame) String() string {
	str := f.Origin.String()
	if f.HasPayload {
		str += fmt.Sprintf(" #%d %s %s %dB", f.Seq, f.Class, f.Payload.Tag, len(f.Payload.Data))
	}
	if f.HasAck {
		str += fmt.Sprintf(" ack=%d", f.Ack)
	}
	if !f.HasAck && !f.HasPayload {
		str += " poll"
	}
	return str
}

// DecodeFrame decodes one complete frame including start marker and CRC.
func DecodeFrame(data []byte) (*Frame, error) {
	if len(data) < MinFrameSize || data[0] != StartMarker {
		return nil, ErrBadLength
	}
	bodyLen := int(data[1])
	if bodyLen < bodyHeaderSize || len(data) != headerSize+bodyLen+CRCSize {
		return nil, ErrBadLength
	}
	crcPos := headerSize + bodyLen
	if crc32.ChecksumIEEE(data[1:crcPos]) != binary.LittleEndian.Uint32(data[crcPos:]) {
		return nil, ErrChecksumMismatch
	}
	flags := data[6]
	f := &Frame{
		Seq:        messages.Seq(binary.LittleEndian.Uint16(data[2:4])),
		HasAck:     flags&FlagAck != 0,
		Ack:        messages.Seq(binary.LittleEndian.Uint16(data[4:6])),
		HasPayload: flags&FlagPayload != 0,
	}
	if flags&FlagOriginRight != 0 {
		f.Origin = side.Right
	}
	if f.HasPayload {
		f.Class = messages.Class(data[7])
		if !f.Class.IsValid() || !f.Seq.IsValid() {
			return nil, ErrMalformed
		}
		f.Payload.Tag = messages.Tag(data[8])
		if n := bodyLen - bodyHeaderSize; n > 0 {
			f.Payload.Data = make([]byte, n)
			copy(f.Payload.Data, data[9:crcPos])
		}
	}
	return f, nil
}
