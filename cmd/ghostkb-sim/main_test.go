package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/ghostkb/pkg/bootloader"
	"github.com/robotalks/ghostkb/pkg/firmware"
	"github.com/robotalks/ghostkb/pkg/framework"
	"github.com/robotalks/ghostkb/pkg/interboard"
	"github.com/robotalks/ghostkb/pkg/side"
)

func TestBootSpawnsNothing(t *testing.T) {
	conf := firmware.NewConfig()
	conf.Side, conf.USB = side.Right, true
	conf.USBAddr = "127.0.0.1:0"
	conf.HandshakeWindow = time.Millisecond
	conf.TokenFile = filepath.Join(t.TempDir(), "token")
	link, _ := interboard.Pipe()

	fw, tasks := boot(conf, link)
	require.Equal(t, side.Initiator, fw.Info.Role)
	require.Equal(t, bootloader.StateIdle, fw.Handshake.Observe(), "handshake window closed")

	var names []string
	for _, task := range tasks {
		names = append(names, framework.TaskName(task, ""))
	}
	require.Equal(t, []string{"right", "usb:127.0.0.1:0"}, names, "usb server is left to the caller")
}
