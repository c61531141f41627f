package side

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetect(t *testing.T) {
	testCases := []struct {
		name   string
		pins   StaticPins
		expect Info
	}{
		{"left with usb", StaticPins{Side: Left, USB: true}, Info{Side: Left, USB: true, Role: Initiator}},
		{"left without usb", StaticPins{Side: Left}, Info{Side: Left, Role: Responder}},
		{"right with usb", StaticPins{Side: Right, USB: true}, Info{Side: Right, USB: true, Role: Initiator}},
		{"right without usb", StaticPins{Side: Right}, Info{Side: Right, Role: Responder}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expect, Detect(tc.pins))
		})
	}
}

func TestSide(t *testing.T) {
	require.Equal(t, Right, Left.Peer())
	require.Equal(t, Left, Right.Peer())
	require.True(t, Right.IsRight())
	s, err := ParseSide("RIGHT")
	require.NoError(t, err)
	require.Equal(t, Right, s)
	_, err = ParseSide("middle")
	require.Error(t, err)
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("Initiator")
	require.NoError(t, err)
	require.Equal(t, Initiator, r)
	_, err = ParseRole("auto")
	require.Error(t, err)

	var s Side
	require.NoError(t, s.Set("right"))
	require.Equal(t, Right, s)
	require.Error(t, s.Set("middle"))
}
