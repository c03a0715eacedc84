package device

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/databreach/virtual-dsm-lxc/internal/config"
)

var tunDev = config.Device{Name: "tun", Path: "net/tun", Major: 10, Minor: 200, GuestPath: "dev/net/tun"}

// fakeNode is the state the mocked syscalls operate on.
type fakeNode struct {
	exists   bool
	isChar   bool
	rdev     uint64
	uid, gid int

	mknodErr error
	chownErr error

	mknodCalls int
	chownCalls int
}

func withFakeSyscalls(t *testing.T, n *fakeNode) {
	t.Helper()
	origMknod, origChown, origStat := mknod, chown, statx

	mknod = func(path string, mode uint32, dev int) error {
		n.mknodCalls++
		if n.mknodErr != nil {
			return n.mknodErr
		}
		if n.exists {
			return unix.EEXIST
		}
		n.exists = true
		n.isChar = mode&unix.S_IFMT == unix.S_IFCHR
		n.rdev = uint64(dev)
		return nil
	}
	chown = func(path string, uid, gid int) error {
		n.chownCalls++
		if n.chownErr != nil {
			return n.chownErr
		}
		n.uid, n.gid = uid, gid
		return nil
	}
	statx = func(path string, st *unix.Stat_t) error {
		if !n.exists {
			return unix.ENOENT
		}
		st.Mode = 0660
		if n.isChar {
			st.Mode |= unix.S_IFCHR
		}
		st.Rdev = n.rdev
		st.Uid = uint32(n.uid)
		st.Gid = uint32(n.gid)
		return nil
	}

	t.Cleanup(func() {
		mknod, chown, statx = origMknod, origChown, origStat
	})
}

func TestProvisionCreatesNode(t *testing.T) {
	n := &fakeNode{}
	withFakeSyscalls(t, n)
	staging := t.TempDir()

	created, err := Provision(staging, tunDev, 100000, 100000)
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if !created {
		t.Error("created = false, want true")
	}
	if !n.isChar {
		t.Error("node is not a character device")
	}
	if n.rdev != uint64(unix.Mkdev(10, 200)) {
		t.Errorf("rdev = %d, want Mkdev(10,200)", n.rdev)
	}
	if n.uid != 100000 || n.gid != 100000 {
		t.Errorf("ownership = %d:%d, want 100000:100000", n.uid, n.gid)
	}
	// Parent directory is created for nested paths like net/tun.
	if _, err := os.Stat(filepath.Join(staging, "net")); err != nil {
		t.Errorf("parent directory not created: %v", err)
	}
}

func TestProvisionExistingMatchingNode(t *testing.T) {
	n := &fakeNode{exists: true, isChar: true, rdev: uint64(unix.Mkdev(10, 200))}
	withFakeSyscalls(t, n)

	created, err := Provision(t.TempDir(), tunDev, 100000, 100000)
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if created {
		t.Error("created = true for pre-existing node, want false")
	}
	if n.chownCalls != 1 {
		t.Errorf("chown calls = %d, want 1 (ownership still enforced)", n.chownCalls)
	}
}

func TestProvisionExistingMismatchedNode(t *testing.T) {
	n := &fakeNode{exists: true, isChar: true, rdev: uint64(unix.Mkdev(10, 232))}
	withFakeSyscalls(t, n)

	_, err := Provision(t.TempDir(), tunDev, 100000, 100000)
	if err == nil {
		t.Fatal("expected error for mismatched existing node")
	}
	if !strings.Contains(err.Error(), "10:200") {
		t.Errorf("error = %v, want expected device numbers in message", err)
	}
}

func TestProvisionExistingNonDevice(t *testing.T) {
	n := &fakeNode{exists: true, isChar: false}
	withFakeSyscalls(t, n)

	if _, err := Provision(t.TempDir(), tunDev, 100000, 100000); err == nil {
		t.Fatal("expected error: existing path is not a character device")
	}
}

func TestProvisionMknodFailure(t *testing.T) {
	n := &fakeNode{mknodErr: unix.EPERM}
	withFakeSyscalls(t, n)

	_, err := Provision(t.TempDir(), tunDev, 100000, 100000)
	if err == nil {
		t.Fatal("expected error")
	}
	if n.chownCalls != 0 {
		t.Error("chown must not run after mknod failure")
	}
}

func TestProvisionChownFailure(t *testing.T) {
	n := &fakeNode{chownErr: fmt.Errorf("operation not permitted")}
	withFakeSyscalls(t, n)

	if _, err := Provision(t.TempDir(), tunDev, 100000, 100000); err == nil {
		t.Fatal("expected error")
	}
}

func TestProvisionVerifiesOwnership(t *testing.T) {
	n := &fakeNode{}
	withFakeSyscalls(t, n)
	// chown silently writes the wrong owner
	chown = func(path string, uid, gid int) error {
		n.uid, n.gid = 0, 0
		return nil
	}

	if _, err := Provision(t.TempDir(), tunDev, 100000, 100000); err == nil {
		t.Fatal("expected verification error for wrong ownership")
	}
}

func TestRemovePrunesEmptyDirs(t *testing.T) {
	staging := filepath.Join(t.TempDir(), "dev-105")
	path := filepath.Join(staging, "net", "tun")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, nil, 0660); err != nil {
		t.Fatal(err)
	}

	if err := Remove(staging, tunDev); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(staging); !os.IsNotExist(err) {
		t.Errorf("staging dir still exists: %v", err)
	}
}

func TestRemoveKeepsNonEmptyDirs(t *testing.T) {
	staging := filepath.Join(t.TempDir(), "dev-105")
	path := filepath.Join(staging, "net", "tun")
	other := filepath.Join(staging, "kvm")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{path, other} {
		if err := os.WriteFile(p, nil, 0660); err != nil {
			t.Fatal(err)
		}
	}

	if err := Remove(staging, tunDev); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(other); err != nil {
		t.Errorf("sibling node removed: %v", err)
	}
	if _, err := os.Stat(staging); err != nil {
		t.Errorf("non-empty staging dir removed: %v", err)
	}
}

func TestRemoveMissingNode(t *testing.T) {
	if err := Remove(filepath.Join(t.TempDir(), "dev-105"), tunDev); err != nil {
		t.Errorf("Remove of absent node = %v, want nil", err)
	}
}

func TestInspectMissing(t *testing.T) {
	n := &fakeNode{}
	withFakeSyscalls(t, n)

	info, err := Inspect("/dev-105", tunDev)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if info.Exists {
		t.Error("Exists = true, want false")
	}
}

func TestInspectExisting(t *testing.T) {
	n := &fakeNode{exists: true, isChar: true, rdev: uint64(unix.Mkdev(10, 200)), uid: 100000, gid: 100000}
	withFakeSyscalls(t, n)

	info, err := Inspect("/dev-105", tunDev)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if !info.Exists || !info.IsChar {
		t.Errorf("info = %+v, want existing char device", info)
	}
	if info.Major != 10 || info.Minor != 200 {
		t.Errorf("device numbers = %d:%d, want 10:200", info.Major, info.Minor)
	}
	if info.UID != 100000 || info.GID != 100000 {
		t.Errorf("ownership = %d:%d, want 100000:100000", info.UID, info.GID)
	}
}
