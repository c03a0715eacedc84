// Package device creates and verifies the character device nodes staged on
// the host for bind mounting into an unprivileged container. The container
// cannot mknod these itself, so the host provides backing nodes owned by
// the container's ID-mapped root.
package device

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/databreach/virtual-dsm-lxc/internal/config"
)

// nodeMode is the file mode for created device nodes.
const nodeMode = 0660

// Syscall hooks — override in tests, which cannot mknod without privilege.
var (
	mknod = unix.Mknod
	chown = unix.Chown
	statx = unix.Stat
)

// Provision ensures a character device node for dev exists under
// stagingDir, owned by uid:gid, and verifies the result. It reports
// whether this call created the node, so the caller can journal an
// inverse action only for nodes it actually made.
func Provision(stagingDir string, dev config.Device, uid, gid int) (created bool, err error) {
	path := filepath.Join(stagingDir, dev.Path)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, fmt.Errorf("creating device directory for %s: %w", dev.Name, err)
	}

	rdev := unix.Mkdev(dev.Major, dev.Minor)
	if err := mknod(path, unix.S_IFCHR|nodeMode, int(rdev)); err != nil {
		if err != unix.EEXIST {
			return false, fmt.Errorf("mknod %s: %w", path, err)
		}
		// Existing node is fine only if it is the same device.
		var st unix.Stat_t
		if serr := statx(path, &st); serr != nil {
			return false, fmt.Errorf("stat existing %s: %w", path, serr)
		}
		if st.Mode&unix.S_IFMT != unix.S_IFCHR || st.Rdev != rdev {
			return false, fmt.Errorf("%s exists but is not a %d:%d character device", path, dev.Major, dev.Minor)
		}
	} else {
		created = true
	}

	if err := chown(path, uid, gid); err != nil {
		return created, fmt.Errorf("chown %s to %d:%d: %w", path, uid, gid, err)
	}

	if err := verify(path, dev, uid, gid); err != nil {
		return created, err
	}
	return created, nil
}

// verify checks the node is a character device with the expected device
// numbers and ownership.
func verify(path string, dev config.Device, uid, gid int) error {
	var st unix.Stat_t
	if err := statx(path, &st); err != nil {
		return fmt.Errorf("verifying %s: %w", path, err)
	}
	if st.Mode&unix.S_IFMT != unix.S_IFCHR {
		return fmt.Errorf("verifying %s: not a character device", path)
	}
	if got := unix.Mkdev(dev.Major, dev.Minor); st.Rdev != got {
		return fmt.Errorf("verifying %s: device numbers %d:%d, want %d:%d",
			path, unix.Major(st.Rdev), unix.Minor(st.Rdev), dev.Major, dev.Minor)
	}
	if int(st.Uid) != uid || int(st.Gid) != gid {
		return fmt.Errorf("verifying %s: owned by %d:%d, want %d:%d", path, st.Uid, st.Gid, uid, gid)
	}
	return nil
}

// Remove deletes the node for dev and prunes now-empty parent directories
// up to and including stagingDir. Used to unwind a partially applied run.
func Remove(stagingDir string, dev config.Device) error {
	path := filepath.Join(stagingDir, dev.Path)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing %s: %w", path, err)
	}
	for dir := filepath.Dir(path); len(dir) >= len(stagingDir); dir = filepath.Dir(dir) {
		// Remove fails on non-empty directories, which ends the prune.
		if err := os.Remove(dir); err != nil {
			break
		}
		if dir == stagingDir {
			break
		}
	}
	return nil
}

// Info describes the observed state of a staged device node.
type Info struct {
	Path   string
	Exists bool
	IsChar bool
	Major  uint32
	Minor  uint32
	UID    int
	GID    int
}

// Inspect reports the current state of the node for dev under stagingDir.
func Inspect(stagingDir string, dev config.Device) (Info, error) {
	path := filepath.Join(stagingDir, dev.Path)
	info := Info{Path: path}

	var st unix.Stat_t
	if err := statx(path, &st); err != nil {
		if err == unix.ENOENT {
			return info, nil
		}
		return info, fmt.Errorf("stat %s: %w", path, err)
	}

	info.Exists = true
	info.IsChar = st.Mode&unix.S_IFMT == unix.S_IFCHR
	info.Major = unix.Major(st.Rdev)
	info.Minor = unix.Minor(st.Rdev)
	info.UID = int(st.Uid)
	info.GID = int(st.Gid)
	return info, nil
}
