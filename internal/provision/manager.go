package provision

import (
	"github.com/databreach/virtual-dsm-lxc/internal/device"
	"github.com/databreach/virtual-dsm-lxc/internal/pct"
)

// ContainerManager abstracts the pct operations the pipeline needs, so
// tests can drive the pipeline against a fake container.
type ContainerManager interface {
	Status(ctid int) (string, error)
	Stop(ctid int) error
	Start(ctid int) error
	Exec(ctid int, command []string) (*pct.ExecResult, error)
	ExecStream(ctid int, command []string, onLine func(line string)) (*pct.ExecResult, error)
	Push(ctid int, src, dst, perms string) error
	ReadFile(ctid int, path string) (string, error)
}

// PctManager implements ContainerManager with the pct command.
type PctManager struct{}

var _ ContainerManager = PctManager{}

func (PctManager) Status(ctid int) (string, error) { return pct.Status(ctid) }
func (PctManager) Stop(ctid int) error             { return pct.Stop(ctid) }
func (PctManager) Start(ctid int) error            { return pct.Start(ctid) }

func (PctManager) Exec(ctid int, command []string) (*pct.ExecResult, error) {
	return pct.Exec(ctid, command)
}

func (PctManager) ExecStream(ctid int, command []string, onLine func(line string)) (*pct.ExecResult, error) {
	return pct.ExecStream(ctid, command, onLine)
}

func (PctManager) Push(ctid int, src, dst, perms string) error {
	return pct.Push(ctid, src, dst, perms)
}

func (PctManager) ReadFile(ctid int, path string) (string, error) {
	return pct.ReadFile(ctid, path)
}

// Device hooks — override in tests, which cannot mknod without privilege.
var (
	provisionDevice = device.Provision
	removeDevice    = device.Remove
	inspectDevice   = device.Inspect
)
