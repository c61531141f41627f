package interboard

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/ghostkb/pkg/messages"
	"github.com/robotalks/ghostkb/pkg/side"
)

func mustEncode(t *testing.T, f *Frame) []byte {
	data, err := f.Encode()
	require.NoError(t, err)
	return data
}

func payloadFrame(seq messages.Seq, data ...byte) *Frame {
	return &Frame{
		Origin:     side.Left,
		Seq:        seq,
		HasPayload: true,
		Class:      messages.Reliable,
		Payload:    messages.Payload{Tag: messages.TagKeys, Data: data},
	}
}

func concat(chunks ...[]byte) (out []byte) {
	for _, c := range chunks {
		out = append(out, c...)
	}
	return
}

func TestParser(t *testing.T) {
	frame1 := mustEncode(t, payloadFrame(1, 0x10, 0x11))
	frame2 := mustEncode(t, payloadFrame(2, StartMarker, StartMarker))
	corrupted := mustEncode(t, payloadFrame(3, 0x30))
	corrupted[len(corrupted)-1] ^= 0x01

	cases := []struct {
		name    string
		input   []byte
		seqs    []messages.Seq
		errs    []error
		skipped int
	}{
		{
			name:  "single frame",
			input: frame1,
			seqs:  []messages.Seq{1},
		},
		{
			name:  "back to back",
			input: concat(frame1, frame2),
			seqs:  []messages.Seq{1, 2},
		},
		{
			name:    "garbage before frame",
			input:   concat([]byte{0x00, 0x13, 0xff}, frame2),
			seqs:    []messages.Seq{2},
			skipped: 3,
		},
		{
			name:    "corrupted frame is discarded",
			input:   concat(corrupted, frame1),
			seqs:    []messages.Seq{1},
			errs:    []error{ErrChecksumMismatch},
			skipped: len(corrupted) - 1,
		},
		{
			name:    "impossible length resyncs",
			input:   concat([]byte{StartMarker, 0x02}, frame2),
			seqs:    []messages.Seq{2},
			errs:    []error{ErrBadLength},
			skipped: 1,
		},
		{
			name:    "stray marker before frame",
			input:   concat([]byte{StartMarker, 0x08}, frame1, make([]byte, 20)),
			seqs:    []messages.Seq{1},
			errs:    []error{ErrChecksumMismatch},
			skipped: 21,
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			var p Parser
			frames, errs, skipped := p.ParseAll(c.input)
			var seqs []messages.Seq
			for _, f := range frames {
				seqs = append(seqs, f.Seq)
			}
			require.Equal(t, c.seqs, seqs)
			require.Equal(t, c.errs, errs)
			require.Equal(t, c.skipped, skipped)
			require.False(t, p.Receiving())
		})
	}
}

func TestParserSplitInput(t *testing.T) {
	data := mustEncode(t, payloadFrame(9, 1, 2, 3, 4))
	var p Parser
	frames, errs, _ := p.ParseAll(data[:5])
	require.Empty(t, frames)
	require.Empty(t, errs)
	require.True(t, p.Receiving())
	frames, errs, _ = p.ParseAll(data[5:])
	require.Empty(t, errs)
	require.Len(t, frames, 1)
	require.Equal(t, []byte{1, 2, 3, 4}, frames[0].Payload.Data)
}

func expireParser(p *Parser) (frames []*Frame, skipped int) {
	p.Timeout(func(pr ParseResult) {
		skipped += pr.Skipped
		if pr.Frame != nil {
			frames = append(frames, pr.Frame)
		}
	})
	return
}

func TestParserTimeout(t *testing.T) {
	data := mustEncode(t, payloadFrame(4, 0xaa))
	var p Parser
	p.ParseAll(data[:6])
	frames, skipped := expireParser(&p)
	require.Empty(t, frames)
	require.Equal(t, 6, skipped)
	require.False(t, p.Receiving())
	_, skipped = expireParser(&p)
	require.Zero(t, skipped)

	frames, errs, _ := p.ParseAll(data)
	require.Empty(t, errs)
	require.Len(t, frames, 1)
}

func TestParserTimeoutRecoversHiddenFrame(t *testing.T) {
	frame1 := mustEncode(t, payloadFrame(1, 0x10, 0x11))
	var p Parser
	frames, errs, _ := p.ParseAll(concat([]byte{StartMarker, 0xff}, frame1))
	require.Empty(t, frames)
	require.Empty(t, errs)
	require.True(t, p.Receiving(), "long length swallows the frame")

	frames, skipped := expireParser(&p)
	require.Len(t, frames, 1)
	require.Equal(t, messages.Seq(1), frames[0].Seq)
	require.Equal(t, 2, skipped)
	require.False(t, p.Receiving())
}
