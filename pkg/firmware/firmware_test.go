package firmware

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/ghostkb/pkg/bootloader"
	"github.com/robotalks/ghostkb/pkg/interboard"
	"github.com/robotalks/ghostkb/pkg/messages"
	"github.com/robotalks/ghostkb/pkg/messages/pool"
	"github.com/robotalks/ghostkb/pkg/side"
	"github.com/robotalks/ghostkb/pkg/usb"
)

const testTimeout = 2 * time.Second

func testConfig(s side.Side, usbConnected bool) *Config {
	conf := NewConfig()
	conf.Side, conf.USB = s, usbConnected
	conf.DeviceID = "test-" + s.String()
	conf.HandshakeWindow = time.Millisecond
	conf.DeadlineScale = 10
	conf.TurnTimeout = 20 * time.Millisecond
	conf.TickInterval = 10 * time.Millisecond
	return conf
}

type testPair struct {
	left, right       *Firmware
	usb               usb.ChanSource
	leftROM, rightROM chan struct{}
}

func bootPair(t *testing.T) *testPair {
	p := &testPair{
		usb:      usb.NewChanSource(4),
		leftROM:  make(chan struct{}, 1),
		rightROM: make(chan struct{}, 1),
	}
	linkL, linkR := interboard.Pipe()
	var err error
	leftConf := testConfig(side.Left, true)
	p.left, err = Boot(leftConf, Hardware{
		Pins:    leftConf.Pins(),
		Link:    linkL,
		Storage: &bootloader.MemStorage{},
		ROM:     bootloader.ROMFunc(func(uint32, uint32) { p.leftROM <- struct{}{} }),
		USB:     p.usb,
	})
	require.NoError(t, err)
	rightConf := testConfig(side.Right, false)
	p.right, err = Boot(rightConf, Hardware{
		Pins:    rightConf.Pins(),
		Link:    linkR,
		Storage: &bootloader.MemStorage{},
		ROM:     bootloader.ROMFunc(func(uint32, uint32) { p.rightROM <- struct{}{} }),
	})
	require.NoError(t, err)
	return p
}

func (p *testPair) run(ctx context.Context) {
	go p.left.Run(ctx)
	go p.right.Run(ctx)
}

func expectEnv(t *testing.T, ch <-chan messages.Envelope) messages.Envelope {
	select {
	case env := <-ch:
		return env
	case <-time.After(testTimeout):
		t.Fatal("expect envelope timeout")
	}
	return messages.Envelope{}
}

func TestBootRoles(t *testing.T) {
	p := bootPair(t)
	require.Equal(t, side.Info{Side: side.Left, USB: true, Role: side.Initiator}, p.left.Info)
	require.Equal(t, side.Info{Side: side.Right, Role: side.Responder}, p.right.Info)
	require.Contains(t, p.right.Subsystems, messages.TagTrackpad)
	require.NotContains(t, p.left.Subsystems, messages.TagTrackpad)

	conf := testConfig(side.Left, true)
	conf.Role = RoleResponder
	f, err := Boot(conf, Hardware{Pins: conf.Pins(), Link: &nopLink{}, Storage: &bootloader.MemStorage{}})
	require.NoError(t, err)
	require.Equal(t, side.Responder, f.Info.Role)
}

type nopLink struct{}

func (nopLink) Read([]byte) (int, error) { select {} }
func (nopLink) Write(p []byte) (int, error) { return len(p), nil }

func TestBootHandshake(t *testing.T) {
	conf := testConfig(side.Left, false)
	storage := &bootloader.MemStorage{}
	storage.Write(bootloader.MagicToken)
	entered := 0
	rom := bootloader.ROMFunc(func(uint32, uint32) { entered++ })

	conf.HandshakeStage = StageBootloader
	_, err := Boot(conf, Hardware{Pins: conf.Pins(), Link: &nopLink{}, Storage: storage, ROM: rom})
	require.NoError(t, err, "another stage owns the handshake")
	require.Zero(t, entered)

	conf.HandshakeStage = StageFirmware
	_, err = Boot(conf, Hardware{Pins: conf.Pins(), Link: &nopLink{}, Storage: storage, ROM: rom})
	require.Equal(t, ErrBootloaderEntered, err)
	require.Equal(t, 1, entered)
	require.Zero(t, storage.Read())
}

func TestPairMessaging(t *testing.T) {
	p := bootPair(t)
	leftTrackpad := p.left.Subscribe(messages.TagTrackpad, 4)
	leftRGB := p.left.Subscribe(messages.TagRGB, 4)
	rightRGB := p.right.Subscribe(messages.TagRGB, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.run(ctx)

	r, err := p.right.Submit(messages.Payload{Tag: messages.TagTrackpad, Data: []byte{1, 0xff}}, messages.Reliable)
	require.NoError(t, err)
	env := expectEnv(t, leftTrackpad)
	require.Equal(t, side.Right, env.Origin)
	require.Equal(t, []byte{1, 0xff}, env.Payload.Data)
	select {
	case <-r.Done():
		require.Equal(t, pool.Delivered, r.Outcome())
	case <-time.After(testTimeout):
		t.Fatal("receipt unresolved")
	}

	require.NoError(t, p.usb.Send(ctx, usb.Command{Kind: usb.KindSetRGB, Value: 0x102030}))
	for _, ch := range []<-chan messages.Envelope{leftRGB, rightRGB} {
		env := expectEnv(t, ch)
		require.Equal(t, side.Left, env.Origin)
		cmd, err := usb.FromPayload(env.Payload)
		require.NoError(t, err)
		require.Equal(t, int64(0x102030), cmd.Value)
	}

	require.Eventually(t, func() bool {
		return p.left.PeerAlive() && p.right.PeerAlive()
	}, testTimeout, 5*time.Millisecond)

	stats := p.left.Stats()
	require.NotZero(t, stats.Transport.FramesSent)
	require.Zero(t, stats.Transport.ChecksumErrors)
	require.NotZero(t, stats.Distributor.USBCommands)
}

func TestPairFirmwareUpdate(t *testing.T) {
	p := bootPair(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.run(ctx)

	require.NoError(t, p.usb.Send(ctx, usb.Command{Kind: usb.KindFirmwareUpdate}))
	for _, ch := range []chan struct{}{p.rightROM, p.leftROM} {
		select {
		case <-ch:
		case <-time.After(testTimeout):
			t.Fatal("bootloader not entered")
		}
	}
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ghostkb.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
side = "right"
usb = true
role = "responder"
link = "mqtt://broker:1883/kb"
handshake_stage = "bootloader"
pool_capacity = 4
turn_timeout = "5ms"
tick = "2s"
`), 0644))
	conf := NewConfig()
	require.NoError(t, conf.LoadFile(path))
	require.Equal(t, side.Right, conf.Side)
	require.True(t, conf.USB)
	require.Equal(t, RoleResponder, conf.Role)
	require.Equal(t, "mqtt://broker:1883/kb", conf.LinkURL)
	require.Equal(t, StageBootloader, conf.HandshakeStage)
	require.Equal(t, 4, conf.PoolCapacity)
	require.Equal(t, 5*time.Millisecond, conf.TurnTimeout)
	require.Equal(t, 2*time.Second, conf.TickInterval)
	require.Equal(t, Default().PollInterval, conf.PollInterval, "unset keys keep defaults")

	require.NoError(t, os.WriteFile(path, []byte(`tick = "soon"`), 0644))
	require.Error(t, NewConfig().LoadFile(path))
	require.NoError(t, os.WriteFile(path, []byte(`handshake_stage = "rom"`), 0644))
	require.Error(t, NewConfig().LoadFile(path))
}
