package bootloader

import (
	"context"

	"github.com/golang/glog"

	"github.com/robotalks/ghostkb/pkg/messages"
	"github.com/robotalks/ghostkb/pkg/usb"
)

// UpdateTask enters the bootloader when a firmware update command
// arrives from the distributor.
type UpdateTask struct {
	Handshake *Handshake
	Updates   <-chan messages.Envelope
}

// Name implements framework.Named.
func (t *UpdateTask) Name() string {
	return "fw-update"
}

// Run implements framework.Task.
func (t *UpdateTask) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env := <-t.Updates:
			cmd, err := usb.FromPayload(env.Payload)
			if err != nil {
				glog.Warningf("bootloader: %s: %v", env, err)
				continue
			}
			if cmd.Kind != usb.KindFirmwareUpdate {
				glog.Warningf("bootloader: unexpected command %s", cmd)
				continue
			}
			glog.Infof("bootloader: update requested from %s", env.Origin)
			t.Handshake.EnterUpdate()
		}
	}
}
