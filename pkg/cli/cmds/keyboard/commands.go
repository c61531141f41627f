package keyboard

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/ghostkb/pkg/cli/sh"
	"github.com/robotalks/ghostkb/pkg/usb"
)

// ParseColor parses RRGGBB with an optional # prefix.
func ParseColor(str string) (int64, error) {
	str = strings.TrimPrefix(str, "#")
	if len(str) != 6 {
		return 0, fmt.Errorf("color must be RRGGBB")
	}
	return strconv.ParseInt(str, 16, 32)
}

var (
	// RGBCmd sets the underglow color on both halves.
	RGBCmd = ishell.Cmd{
		Name:    "rgb",
		Aliases: []string{"color"},
		Help:    "RRGGBB",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("COLOR required"))
				return
			}
			color, err := ParseColor(c.Args[0])
			if err != nil {
				c.Err(fmt.Errorf("Invalid COLOR: %v", err))
				return
			}
			sh.DoCommand(c, usb.Command{Kind: usb.KindSetRGB, Value: color})
		}),
	}

	// BacklightCmd sets the backlight level.
	BacklightCmd = ishell.Cmd{
		Name:    "backlight",
		Aliases: []string{"bl"},
		Help:    "LEVEL(0-255)",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("LEVEL required"))
				return
			}
			level, err := strconv.ParseUint(c.Args[0], 10, 8)
			if err != nil {
				c.Err(fmt.Errorf("Invalid LEVEL: %v", err))
				return
			}
			sh.DoCommand(c, usb.Command{Kind: usb.KindSetBacklight, Value: int64(level)})
		}),
	}

	// KeymapCmd switches the active layer.
	KeymapCmd = ishell.Cmd{
		Name:    "keymap",
		Aliases: []string{"layer"},
		Help:    "LAYER [NAME]",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("LAYER required"))
				return
			}
			layer, err := strconv.ParseInt(c.Args[0], 10, 32)
			if err != nil {
				c.Err(fmt.Errorf("Invalid LAYER: %v", err))
				return
			}
			cmd := usb.Command{Kind: usb.KindKeymap, Value: layer}
			if len(c.Args) > 1 {
				cmd.Data = []byte(strings.Join(c.Args[1:], " "))
			}
			sh.DoCommand(c, cmd)
		}),
	}

	// FirmwareUpdateCmd reboots both halves into the bootloader.
	FirmwareUpdateCmd = ishell.Cmd{
		Name:    "fw-update",
		Aliases: []string{"flash"},
		Help:    "",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			sh.DoCommand(c, usb.Command{Kind: usb.KindFirmwareUpdate})
		}),
	}
)

func init() {
	sh.AddCmds(
		&RGBCmd,
		&BacklightCmd,
		&KeymapCmd,
		&FirmwareUpdateCmd,
	)
}
