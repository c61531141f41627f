package interboard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/ghostkb/pkg/messages"
)

func TestDedupWindow(t *testing.T) {
	var w dedupWindow
	now := time.Now()
	observe := func(seq messages.Seq) bool {
		return w.Observe(seq, now, time.Second)
	}
	require.False(t, observe(100))
	require.True(t, observe(100))
	require.False(t, observe(102))
	require.False(t, observe(101), "out of order is not a duplicate")
	require.True(t, observe(101))
	require.True(t, observe(102))
	require.False(t, observe(200))
	require.False(t, observe(200-DedupWindow+1))
	require.True(t, observe(200-DedupWindow+1))
}

func TestDedupWindowWraps(t *testing.T) {
	var w dedupWindow
	now := time.Now()
	require.False(t, w.Observe(0xfffe, now, 0))
	require.False(t, w.Observe(0xffff, now, 0))
	require.False(t, w.Observe(1, now, 0))
	require.True(t, w.Observe(0xffff, now, 0))
	require.True(t, w.Observe(1, now, 0))
}

func TestDedupWindowPeerRestart(t *testing.T) {
	var w dedupWindow
	now := time.Now()
	require.False(t, w.Observe(5000, now, 0))
	require.False(t, w.Observe(10, now, 0), "far behind is a restarted peer")
	require.True(t, w.Observe(10, now, 0))

	// a restart landing just behind the window is never taken for a
	// duplicate.
	require.False(t, w.Observe(1000, now, 0))
	require.False(t, w.Observe(800, now, 0), "never seen")
	require.True(t, w.Observe(800, now, 0))
	require.False(t, w.Observe(801, now, 0))
	require.False(t, w.Observe(1000-DedupWindow, now, 0), "history of the old boot is gone")

	require.False(t, w.Observe(11, now, time.Second))
	require.False(t, w.Observe(11, now.Add(2*time.Second), time.Second), "history expired")
}
