package interboard

// Parser reassembles frames from the byte stream.
type Parser struct {
	state parseState
	buf   [MaxFrameSize]byte
	recv  int
	size  int
}

// ParseResult indicates the result after one parsing step.
type ParseResult struct {
	// Frame is set when a valid frame completed.
	Frame *Frame
	// Err is set when a frame was discarded.
	Err error
	// Skipped counts garbage bytes outside any frame.
	Skipped int
}

type parseState int

const (
	stateStart parseState = iota // scanning for start marker
	stateLen                     // waiting for length
	stateBody                    // receiving body and CRC
)

// Receiving indicates a frame is partially received.
func (p *Parser) Receiving() bool {
	return p.state != stateStart
}

// Reset drops any partial frame.
func (p *Parser) Reset() {
	p.state, p.recv, p.size = stateStart, 0, 0
}

// Parse consumes one byte and calls emit for each completed frame,
// discarded frame or skipped garbage byte. A discarded frame may hide the
// start of a real one, so its bytes after the start marker are scanned
// again.
func (p *Parser) Parse(b byte, emit func(ParseResult)) {
	switch p.state {
	case stateStart:
		if b != StartMarker {
			emit(ParseResult{Skipped: 1})
			return
		}
		p.buf[0], p.recv = b, 1
		p.state = stateLen
	case stateLen:
		p.buf[1], p.recv = b, 2
		if int(b) < bodyHeaderSize {
			p.rescan(ParseResult{Err: ErrBadLength}, emit)
			return
		}
		p.size = headerSize + int(b) + CRCSize
		p.state = stateBody
	case stateBody:
		p.buf[p.recv] = b
		p.recv++
		if p.recv < p.size {
			return
		}
		f, err := DecodeFrame(p.buf[:p.size])
		if err == ErrChecksumMismatch {
			p.rescan(ParseResult{Err: err}, emit)
			return
		}
		p.Reset()
		emit(ParseResult{Frame: f, Err: err})
	}
}

// Timeout notifies the inter-byte timer expired. The partial frame is
// dropped and its bytes after the start marker are scanned again.
func (p *Parser) Timeout(emit func(ParseResult)) {
	if p.Receiving() {
		p.rescan(ParseResult{Skipped: 1}, emit)
	}
}

func (p *Parser) rescan(pr ParseResult, emit func(ParseResult)) {
	rest := append([]byte(nil), p.buf[1:p.recv]...)
	p.Reset()
	emit(pr)
	for _, b := range rest {
		p.Parse(b, emit)
	}
}

// ParseAll feeds bytes and returns completed frames and discard errors.
func (p *Parser) ParseAll(data []byte) (frames []*Frame, errs []error, skipped int) {
	emit := func(pr ParseResult) {
		skipped += pr.Skipped
		if pr.Err != nil {
			errs = append(errs, pr.Err)
		} else if pr.Frame != nil {
			frames = append(frames, pr.Frame)
		}
	}
	for _, b := range data {
		p.Parse(b, emit)
	}
	return
}
