// Package side detects which half of the keyboard this controller drives
// and derives the fixed link role from it.
package side

import (
	"fmt"
	"strings"

	"github.com/golang/glog"
)

// Side identifies a keyboard half.
type Side byte

// Keyboard halves.
const (
	Left  Side = 0
	Right Side = 1
)

// IsRight indicates the right half.
func (s Side) IsRight() bool {
	return s == Right
}

// Peer returns the opposite half.
func (s Side) Peer() Side {
	if s == Right {
		return Left
	}
	return Right
}

// String implements Stringer.
func (s Side) String() string {
	if s == Right {
		return "right"
	}
	return "left"
}

// ParseSide parses "left" or "right".
func ParseSide(str string) (Side, error) {
	switch strings.ToLower(str) {
	case "left", "l":
		return Left, nil
	case "right", "r":
		return Right, nil
	}
	return Left, fmt.Errorf("unknown side %q", str)
}

// Set implements flag.Value.
func (s *Side) Set(str string) (err error) {
	*s, err = ParseSide(str)
	return
}

// Role decides who may open a transmission turn on the link.
// It is computed once at boot and never changes.
type Role int

// Link roles.
const (
	Responder Role = iota
	Initiator
)

// String implements Stringer.
func (r Role) String() string {
	if r == Initiator {
		return "initiator"
	}
	return "responder"
}

// ParseRole parses "initiator" or "responder".
func ParseRole(str string) (Role, error) {
	switch strings.ToLower(str) {
	case "initiator":
		return Initiator, nil
	case "responder":
		return Responder, nil
	}
	return Responder, fmt.Errorf("unknown role %q", str)
}

// Pins samples the straps read at boot.
type Pins interface {
	// SideHigh reports the side strap, high on the right half.
	SideHigh() bool
	// USBHigh reports VBUS presence.
	USBHigh() bool
}

// Info is the boot-time detection result.
type Info struct {
	Side Side
	USB  bool
	Role Role
}

// RoleFor derives the role: the half powered over USB drives the link.
func RoleFor(usb bool) Role {
	if usb {
		return Initiator
	}
	return Responder
}

// Detect samples the pins once.
func Detect(pins Pins) Info {
	info := Info{Side: Left, USB: pins.USBHigh()}
	if pins.SideHigh() {
		info.Side = Right
	}
	info.Role = RoleFor(info.USB)
	glog.Infof("I'm the %s side, usb connected: %v, link role: %s", info.Side, info.USB, info.Role)
	return info
}

// StaticPins is a fixed Pins for simulation.
type StaticPins struct {
	Side Side
	USB  bool
}

// SideHigh implements Pins.
func (p StaticPins) SideHigh() bool { return p.Side == Right }

// USBHigh implements Pins.
func (p StaticPins) USBHigh() bool { return p.USB }
