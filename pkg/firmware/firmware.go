// Package firmware assembles the tasks of one keyboard half.
package firmware

import (
	"context"
	"errors"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/ghostkb/pkg/bootloader"
	"github.com/robotalks/ghostkb/pkg/framework"
	"github.com/robotalks/ghostkb/pkg/interboard"
	"github.com/robotalks/ghostkb/pkg/messages"
	"github.com/robotalks/ghostkb/pkg/messages/distributor"
	"github.com/robotalks/ghostkb/pkg/messages/pool"
	"github.com/robotalks/ghostkb/pkg/side"
	"github.com/robotalks/ghostkb/pkg/usb"
)

// ErrBootloaderEntered is returned by Boot when the ROM routine returned,
// which only happens with simulated ROMs.
var ErrBootloaderEntered = errors.New("bootloader entered")

// Hardware is what a half is wired to.
type Hardware struct {
	Pins    side.Pins
	Link    interboard.Link
	Storage bootloader.Storage
	ROM     bootloader.ROM
	// USB is the host command stream, used only when the pins report VBUS.
	USB usb.CommandSource
}

// Stats collects the counters of a half.
type Stats struct {
	Pool        pool.Stats
	Transport   interboard.Stats
	Distributor distributor.Stats
}

// Firmware is one booted half.
type Firmware struct {
	Info side.Info

	Pool        *pool.Pool
	Distributor *distributor.Distributor
	Transport   *interboard.Transport
	Handshake   *bootloader.Handshake
	Subsystems  map[messages.Tag]*Subsystem

	conf  Config
	tasks []framework.Task
}

// Boot brings a half up in the order the hardware requires: the
// bootloader handshake first, then detection and the messaging core.
// No task runs before Run.
func Boot(conf *Config, hw Hardware) (*Firmware, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	f := &Firmware{
		conf:       *conf,
		Subsystems: make(map[messages.Tag]*Subsystem),
		Handshake: &bootloader.Handshake{
			Storage: hw.Storage,
			ROM:     hw.ROM,
			Window:  conf.HandshakeWindow,
		},
	}
	if conf.HandshakeStage == StageFirmware {
		if f.Handshake.Check() == bootloader.StateBootloaderEntry {
			return nil, ErrBootloaderEntered
		}
	}

	f.Info = side.Detect(hw.Pins)
	f.Info.Role = conf.LinkRole(f.Info)
	glog.Infof("ghostkb %s: %s half, usb=%v, role=%s", conf.DeviceID, f.Info.Side, f.Info.USB, f.Info.Role)

	f.Pool = pool.New(pool.Config{
		Capacity:       conf.PoolCapacity,
		AcquireTimeout: conf.AcquireTimeout,
		MaxPayload:     interboard.MaxPayloadSize,
		Origin:         f.Info.Side,
		Policies:       messages.DefaultPolicies.Scaled(conf.DeadlineScale),
	})
	f.Distributor = distributor.New(f.Pool)
	f.tasks = append(f.tasks, f.Distributor)

	if f.Info.USB {
		if hw.USB != nil {
			f.Distributor.LocalEcho = true
			f.tasks = append(f.tasks, f.Distributor.USBTask(hw.USB))
		} else {
			glog.Warning("usb connected but no command source")
		}
	}

	f.tasks = append(f.tasks, &bootloader.UpdateTask{
		Handshake: f.Handshake,
		Updates:   f.Distributor.Subscribe(messages.TagFirmwareUpdate, 1),
	})

	f.Transport = interboard.NewTransport(f.Info.Role, f.Info.Side, hw.Link, f.Pool, f.Distributor, interboard.Config{
		PollInterval: conf.PollInterval,
		TurnTimeout:  conf.TurnTimeout,
	})
	f.tasks = append(f.tasks, f.Transport)

	tags := []messages.Tag{messages.TagKeys, messages.TagDisplay, messages.TagRGB, messages.TagUSB, messages.TagHeartbeat}
	if f.Info.Side.IsRight() {
		glog.Info("trackpad enabled")
		tags = append(tags, messages.TagTrackpad)
	}
	for _, tag := range tags {
		sub := &Subsystem{Tag: tag, Updates: f.Distributor.Subscribe(tag, SubsystemQueueSize)}
		f.Subsystems[tag] = sub
		f.tasks = append(f.tasks, sub)
	}

	f.tasks = append(f.tasks, framework.NamedFunc("tick", f.tick))
	return f, nil
}

// Subscribe creates an extra consumer of a tag. Call before Run.
func (f *Firmware) Subscribe(tag messages.Tag, size int) <-chan messages.Envelope {
	return f.Distributor.Subscribe(tag, size)
}

// Submit sends a payload to the other half.
func (f *Firmware) Submit(payload messages.Payload, class messages.Class) (*pool.Receipt, error) {
	return f.Distributor.Submit(payload, class)
}

// PeerAlive reports whether a heartbeat arrived within three ticks.
func (f *Firmware) PeerAlive() bool {
	since, ok := f.Subsystems[messages.TagHeartbeat].Since(time.Now())
	return ok && since < 3*f.conf.TickInterval
}

// Stats returns the counters of the messaging core.
func (f *Firmware) Stats() Stats {
	return Stats{
		Pool:        f.Pool.Stats(),
		Transport:   f.Transport.Stats(),
		Distributor: f.Distributor.Stats(),
	}
}

// Run spawns all tasks and waits until ctx is done.
func (f *Firmware) Run(ctx context.Context) error {
	spawner := framework.NewSpawnerWith(ctx)
	spawner.Go(f.tasks...)
	return spawner.Wait()
}

func (f *Firmware) tick(ctx context.Context) error {
	ticker := time.NewTicker(f.conf.TickInterval)
	defer ticker.Stop()
	var counter byte
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		counter++
		glog.V(1).Infof("tick %d, peer alive: %v", counter, f.PeerAlive())
		payload := messages.Payload{Tag: messages.TagHeartbeat, Data: []byte{counter}}
		if _, err := f.Submit(payload, messages.Unreliable); err != nil {
			glog.Warningf("heartbeat: %v", err)
		}
	}
}
