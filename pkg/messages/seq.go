package messages

import "time"

// Seq is a per-origin sequence number. Zero is reserved for envelopes
// which have not been submitted yet.
type Seq uint16

// NewSeq creates a random starting sequence number.
func NewSeq() Seq {
	return Seq(uint16(time.Now().UnixNano())).Next()
}

// Next calculates the next sequence number.
func (s Seq) Next() Seq {
	n := uint16(s) + 1
	if n == 0 {
		n = 1
	}
	return Seq(n)
}

// IsValid checks if it's a valid sequence number.
func (s Seq) IsValid() bool {
	return s != 0
}

// Distance returns how far s is ahead of o in serial number arithmetic.
// Negative means s is older than o.
func (s Seq) Distance(o Seq) int {
	return int(int16(uint16(s) - uint16(o)))
}

// Before indicates s was issued before o.
func (s Seq) Before(o Seq) bool {
	return s.Distance(o) < 0
}
