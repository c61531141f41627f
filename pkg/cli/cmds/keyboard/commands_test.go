package keyboard

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseColor(t *testing.T) {
	color, err := ParseColor("#ff8000")
	require.NoError(t, err)
	require.Equal(t, int64(0xff8000), color)
	_, err = ParseColor("fff")
	require.Error(t, err)
	_, err = ParseColor("gg0000")
	require.Error(t, err)
}
