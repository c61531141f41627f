// Package bootloader implements the double-reset handshake which sends
// the controller into its ROM USB bootloader.
package bootloader

import (
	"fmt"
	"os"
	"time"

	"github.com/golang/glog"
)

// MagicToken marks a reset pressed during the window.
const MagicToken uint32 = 0xCAFEB0BA

// DefaultWindow is how long the token stays armed after boot.
const DefaultWindow = 100 * time.Millisecond

// ActivityPinMask selects the LED pin the ROM bootloader blinks.
const ActivityPinMask uint32 = 1 << 17

// ROM is the mask ROM of the controller.
type ROM interface {
	// ResetToUSBBoot reboots into the USB mass storage bootloader. On
	// hardware it never returns.
	ResetToUSBBoot(activityPinMask, disableInterfaceMask uint32)
}

// ROMFunc is the func form of ROM.
type ROMFunc func(activityPinMask, disableInterfaceMask uint32)

// ResetToUSBBoot implements ROM.
func (f ROMFunc) ResetToUSBBoot(activityPinMask, disableInterfaceMask uint32) {
	f(activityPinMask, disableInterfaceMask)
}

// ExitROM stands in for the ROM in the simulator: the process exits
// with Code, like the firmware disappearing from under its tasks.
type ExitROM struct {
	Code int
}

// ResetToUSBBoot implements ROM.
func (r ExitROM) ResetToUSBBoot(activityPinMask, disableInterfaceMask uint32) {
	glog.Warningf("bootloader: reset to usb boot (activity=%#x, disable=%#x)", activityPinMask, disableInterfaceMask)
	glog.Flush()
	os.Exit(r.Code)
}

// State is the outcome of a handshake check.
type State int

// Handshake states.
const (
	// StateIdle is a normal boot.
	StateIdle State = iota
	// StateArmed is only observed in Storage during the window.
	StateArmed
	// StateBootloaderEntry means the ROM was called. Only observable
	// with a ROM which returns.
	StateBootloaderEntry
)

// String implements Stringer.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmed:
		return "armed"
	case StateBootloaderEntry:
		return "bootloader-entry"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Handshake detects two resets in quick succession. It must run before
// any task is spawned.
type Handshake struct {
	Storage Storage
	ROM     ROM
	Window  time.Duration
	// Sleep waits out the window, time.Sleep if nil.
	Sleep func(time.Duration)
}

// Observe reports the state recorded in storage.
func (h *Handshake) Observe() State {
	if h.Storage.Read() == MagicToken {
		return StateArmed
	}
	return StateIdle
}

// Check runs the handshake at boot. Without a token it arms the token
// for the window and returns StateIdle. A token left by a reset inside
// the window is consumed and the ROM bootloader is entered.
func (h *Handshake) Check() State {
	if h.Storage.Read() != MagicToken {
		h.Storage.Write(MagicToken)
		window := h.Window
		if window <= 0 {
			window = DefaultWindow
		}
		glog.V(2).Infof("bootloader: armed for %s", window)
		h.sleep(window)
		h.Storage.Write(0)
		return StateIdle
	}
	h.Storage.Write(0)
	glog.Info("bootloader: double reset detected")
	h.ROM.ResetToUSBBoot(ActivityPinMask, 0)
	return StateBootloaderEntry
}

// EnterUpdate enters the ROM bootloader on request, regardless of the
// token.
func (h *Handshake) EnterUpdate() {
	h.Storage.Write(0)
	glog.Info("bootloader: firmware update requested")
	h.ROM.ResetToUSBBoot(ActivityPinMask, 0)
}

func (h *Handshake) sleep(d time.Duration) {
	if h.Sleep != nil {
		h.Sleep(d)
	} else {
		time.Sleep(d)
	}
}
