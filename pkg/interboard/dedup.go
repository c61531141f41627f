package interboard

import (
	"time"

	"github.com/robotalks/ghostkb/pkg/messages"
)

// DedupWindow is the number of recent sequence numbers remembered.
// Retransmissions never lag this far behind, as the pool bounds the
// envelopes in flight, so anything older comes from a restarted peer.
const DedupWindow = 64

// dedupWindow remembers recently seen sequence numbers of one origin
// as a bitmap relative to the highest one.
type dedupWindow struct {
	valid    bool
	highest  messages.Seq
	bits     uint64
	lastSeen time.Time
}

// Observe records seq and reports whether it was seen before.
func (w *dedupWindow) Observe(seq messages.Seq, now time.Time, expiry time.Duration) bool {
	if w.valid && expiry > 0 && now.Sub(w.lastSeen) > expiry {
		w.valid = false
	}
	w.lastSeen = now
	if !w.valid {
		w.valid, w.highest, w.bits = true, seq, 1
		return false
	}
	d := seq.Distance(w.highest)
	if d > 0 {
		if d >= DedupWindow {
			w.bits = 1
		} else {
			w.bits = w.bits<<uint(d) | 1
		}
		w.highest = seq
		return false
	}
	off := -d
	if off >= DedupWindow {
		w.highest, w.bits = seq, 1
		return false
	}
	mask := uint64(1) << uint(off)
	if w.bits&mask != 0 {
		return true
	}
	w.bits |= mask
	return false
}
