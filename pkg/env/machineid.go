// Package env provides information about the host running a simulated half.
package env

import (
	"os"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"
)

// AppID namespaces the device ID so it does not expose the raw machine ID.
const AppID = "ghostkb"

// DeviceID retrieves an ID identifying the machine, falling back to the
// hostname where no machine ID is available (e.g. containers).
func DeviceID() string {
	id, err := machineid.ProtectedID(AppID)
	if err == nil {
		return id[:16]
	}
	glog.V(2).Infof("machine id unavailable: %v", err)
	if host, err := os.Hostname(); err == nil {
		return host
	}
	return AppID
}
