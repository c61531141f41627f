package firmware

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/robotalks/ghostkb/pkg/bootloader"
	"github.com/robotalks/ghostkb/pkg/env"
	"github.com/robotalks/ghostkb/pkg/interboard"
	"github.com/robotalks/ghostkb/pkg/messages/pool"
	"github.com/robotalks/ghostkb/pkg/side"
)

// Handshake stages.
const (
	// StageFirmware runs the bootloader handshake at firmware boot.
	StageFirmware = "firmware"
	// StageBootloader leaves it to a stage running before the firmware.
	StageBootloader = "bootloader"
)

// Role overrides.
const (
	RoleAuto      = "auto"
	RoleInitiator = "initiator"
	RoleResponder = "responder"
)

// Config configures one half.
type Config struct {
	// Side is the strap value used by the simulated pins.
	Side side.Side
	// USB tells the simulated pins VBUS is present.
	USB bool
	// Role overrides the role derived from USB presence, for setups where
	// both halves are powered over USB.
	Role string
	// DeviceID identifies the half in logs and MQTT client IDs.
	DeviceID string
	// LinkURL is "pipe" for both halves in one process or an MQTT broker
	// URL like mqtt://host:port/prefix.
	LinkURL string
	// USBAddr is the listen address of the simulated USB interface.
	USBAddr string
	// TokenFile keeps the bootloader token across simulator restarts;
	// empty keeps it in memory.
	TokenFile string

	HandshakeStage  string
	HandshakeWindow time.Duration

	PoolCapacity   int
	AcquireTimeout time.Duration
	// DeadlineScale multiplies all delivery deadlines for slow links.
	DeadlineScale int

	PollInterval time.Duration
	TurnTimeout  time.Duration
	TickInterval time.Duration
}

var defaultConfig = Config{
	Role:            RoleAuto,
	LinkURL:         "pipe",
	USBAddr:         "localhost:8880",
	HandshakeStage:  StageFirmware,
	HandshakeWindow: bootloader.DefaultWindow,
	PoolCapacity:    pool.DefaultCapacity,
	AcquireTimeout:  pool.DefaultAcquireTimeout,
	DeadlineScale:   1,
	PollInterval:    interboard.DefaultPollInterval,
	TurnTimeout:     interboard.DefaultTurnTimeout,
	TickInterval:    time.Second,
}

func init() {
	if val := os.Getenv("GHOSTKB_SIDE"); val != "" {
		defaultConfig.Side.Set(val)
	}
	if val := os.Getenv("GHOSTKB_USB"); val != "" {
		defaultConfig.USB, _ = strconv.ParseBool(val)
	}
	if val := os.Getenv("GHOSTKB_ROLE"); val != "" {
		defaultConfig.Role = val
	}
	if val := os.Getenv("GHOSTKB_LINK_URL"); val != "" {
		defaultConfig.LinkURL = val
	}
	if val := os.Getenv("GHOSTKB_USB_ADDR"); val != "" {
		defaultConfig.USBAddr = val
	}
	if val := os.Getenv("GHOSTKB_TOKEN_FILE"); val != "" {
		defaultConfig.TokenFile = val
	}
	if val := os.Getenv("GHOSTKB_HANDSHAKE_STAGE"); val != "" {
		defaultConfig.HandshakeStage = val
	}
	if val := os.Getenv("GHOSTKB_DEVICE_ID"); val != "" {
		defaultConfig.DeviceID = val
	} else {
		defaultConfig.DeviceID = env.DeviceID()
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.Var(&defaultConfig.Side, "side", "Side of this half: left or right")
	flag.BoolVar(&defaultConfig.USB, "usb", defaultConfig.USB, "Half is connected to the host")
	flag.StringVar(&defaultConfig.Role, "role", defaultConfig.Role, "Link role: auto, initiator or responder")
	flag.StringVar(&defaultConfig.DeviceID, "id", defaultConfig.DeviceID, "Device ID")
	flag.StringVar(&defaultConfig.LinkURL, "link", defaultConfig.LinkURL, "Interboard link: pipe or mqtt://host:port/prefix")
	flag.StringVar(&defaultConfig.USBAddr, "usb-addr", defaultConfig.USBAddr, "Listen address of the USB command endpoint")
	flag.StringVar(&defaultConfig.TokenFile, "token-file", defaultConfig.TokenFile, "File keeping the bootloader token")
	flag.StringVar(&defaultConfig.HandshakeStage, "handshake-stage", defaultConfig.HandshakeStage, "Stage owning the bootloader handshake: firmware or bootloader")
	flag.DurationVar(&defaultConfig.HandshakeWindow, "handshake-window", defaultConfig.HandshakeWindow, "Double reset window")
	flag.IntVar(&defaultConfig.PoolCapacity, "pool-capacity", defaultConfig.PoolCapacity, "Transmission slots")
	flag.DurationVar(&defaultConfig.AcquireTimeout, "acquire-timeout", defaultConfig.AcquireTimeout, "Max wait for a transmission slot")
	flag.IntVar(&defaultConfig.DeadlineScale, "deadline-scale", defaultConfig.DeadlineScale, "Multiplier of delivery deadlines for slow links")
	flag.DurationVar(&defaultConfig.PollInterval, "poll-interval", defaultConfig.PollInterval, "Idle poll interval of the initiator")
	flag.DurationVar(&defaultConfig.TurnTimeout, "turn-timeout", defaultConfig.TurnTimeout, "Max wait for a reply")
	flag.DurationVar(&defaultConfig.TickInterval, "tick", defaultConfig.TickInterval, "Heartbeat interval")
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

type fileConfig struct {
	Side            string `toml:"side"`
	USB             bool   `toml:"usb"`
	Role            string `toml:"role"`
	DeviceID        string `toml:"device_id"`
	LinkURL         string `toml:"link"`
	USBAddr         string `toml:"usb_addr"`
	TokenFile       string `toml:"token_file"`
	HandshakeStage  string `toml:"handshake_stage"`
	HandshakeWindow string `toml:"handshake_window"`
	PoolCapacity    int    `toml:"pool_capacity"`
	AcquireTimeout  string `toml:"acquire_timeout"`
	DeadlineScale   int    `toml:"deadline_scale"`
	PollInterval    string `toml:"poll_interval"`
	TurnTimeout     string `toml:"turn_timeout"`
	TickInterval    string `toml:"tick"`
}

// LoadFile applies the keys defined in a TOML file.
func (c *Config) LoadFile(path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if meta.IsDefined("side") {
		if err := c.Side.Set(strings.TrimSpace(raw.Side)); err != nil {
			return fmt.Errorf("parse side: %w", err)
		}
	}
	if meta.IsDefined("usb") {
		c.USB = raw.USB
	}
	if meta.IsDefined("role") {
		c.Role = strings.TrimSpace(raw.Role)
	}
	if meta.IsDefined("device_id") {
		c.DeviceID = strings.TrimSpace(raw.DeviceID)
	}
	if meta.IsDefined("link") {
		c.LinkURL = strings.TrimSpace(raw.LinkURL)
	}
	if meta.IsDefined("usb_addr") {
		c.USBAddr = strings.TrimSpace(raw.USBAddr)
	}
	if meta.IsDefined("token_file") {
		c.TokenFile = strings.TrimSpace(raw.TokenFile)
	}
	if meta.IsDefined("handshake_stage") {
		c.HandshakeStage = strings.TrimSpace(raw.HandshakeStage)
	}
	if meta.IsDefined("pool_capacity") {
		c.PoolCapacity = raw.PoolCapacity
	}
	if meta.IsDefined("deadline_scale") {
		c.DeadlineScale = raw.DeadlineScale
	}
	durations := []struct {
		key string
		val string
		dst *time.Duration
	}{
		{"handshake_window", raw.HandshakeWindow, &c.HandshakeWindow},
		{"acquire_timeout", raw.AcquireTimeout, &c.AcquireTimeout},
		{"poll_interval", raw.PollInterval, &c.PollInterval},
		{"turn_timeout", raw.TurnTimeout, &c.TurnTimeout},
		{"tick", raw.TickInterval, &c.TickInterval},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		val, err := time.ParseDuration(strings.TrimSpace(d.val))
		if err != nil {
			return fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = val
	}
	return c.Validate()
}

// Validate checks the config.
func (c *Config) Validate() error {
	switch c.HandshakeStage {
	case StageFirmware, StageBootloader:
	default:
		return fmt.Errorf("unknown handshake stage %q", c.HandshakeStage)
	}
	switch c.Role {
	case RoleAuto, RoleInitiator, RoleResponder:
	default:
		return fmt.Errorf("unknown role %q", c.Role)
	}
	if c.PoolCapacity <= 0 {
		return fmt.Errorf("pool capacity must be positive")
	}
	if c.DeadlineScale <= 0 {
		return fmt.Errorf("deadline scale must be positive")
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive")
	}
	return nil
}

// Pins returns the simulated straps.
func (c *Config) Pins() side.Pins {
	return side.StaticPins{Side: c.Side, USB: c.USB}
}

// LinkRole applies the role override to the detected info.
func (c *Config) LinkRole(info side.Info) side.Role {
	if c.Role == "" || c.Role == RoleAuto {
		return info.Role
	}
	role, err := side.ParseRole(c.Role)
	if err != nil {
		return info.Role
	}
	return role
}
