package provision

import (
	"fmt"
	"os"

	"github.com/databreach/virtual-dsm-lxc/internal/config"
	"github.com/databreach/virtual-dsm-lxc/internal/device"
	"github.com/databreach/virtual-dsm-lxc/internal/lxcconf"
)

// DeviceStatus pairs a configured device with its observed host state and
// whether its mount entry is present in the container config.
type DeviceStatus struct {
	Device     config.Device
	Node       device.Info
	MountEntry bool
}

// Report is a read-only snapshot of a container's provisioning state.
type Report struct {
	CTID         int
	ConfigExists bool
	RunState     string
	Devices      []DeviceStatus
}

// Provisioned reports whether every device node and mount entry is in place.
func (r *Report) Provisioned() bool {
	if !r.ConfigExists {
		return false
	}
	for _, d := range r.Devices {
		if !d.Node.Exists || !d.Node.IsChar || !d.MountEntry {
			return false
		}
		if d.Node.Major != d.Device.Major || d.Node.Minor != d.Device.Minor {
			return false
		}
	}
	return true
}

// Inspect gathers the current provisioning state without mutating anything.
func (r *Runner) Inspect(ctid int) (*Report, error) {
	report := &Report{CTID: ctid}

	confPath := r.cfg.LXCConfigPath(ctid)
	if _, err := os.Stat(confPath); err != nil {
		if os.IsNotExist(err) {
			return report, nil
		}
		return nil, fmt.Errorf("checking %s: %w", confPath, err)
	}
	report.ConfigExists = true

	state, err := r.cm.Status(ctid)
	if err != nil {
		return nil, err
	}
	report.RunState = state

	staging := r.cfg.DeviceDir(ctid)
	for _, dev := range r.cfg.Devices {
		info, err := inspectDevice(staging, dev)
		if err != nil {
			return nil, err
		}
		present, err := lxcconf.HasLine(confPath, lxcconf.MountEntry(staging+"/"+dev.Path, dev.GuestPath))
		if err != nil {
			return nil, err
		}
		report.Devices = append(report.Devices, DeviceStatus{
			Device:     dev,
			Node:       info,
			MountEntry: present,
		})
	}

	return report, nil
}
