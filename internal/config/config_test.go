package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
}

func TestDefaultDeviceTable(t *testing.T) {
	cfg := Default()
	if len(cfg.Devices) != 3 {
		t.Fatalf("devices = %d, want 3", len(cfg.Devices))
	}
	want := []struct {
		name         string
		major, minor uint32
	}{
		{"tun", 10, 200},
		{"kvm", 10, 232},
		{"vhost-net", 10, 238},
	}
	for i, w := range want {
		d := cfg.Devices[i]
		if d.Name != w.name || d.Major != w.major || d.Minor != w.minor {
			t.Errorf("device %d = %s %d:%d, want %s %d:%d",
				i, d.Name, d.Major, d.Minor, w.name, w.major, w.minor)
		}
	}
}

func TestValidateMissingConfigDir(t *testing.T) {
	cfg := Default()
	cfg.Proxmox.ConfigDir = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing config_dir")
	}
}

func TestValidateRelativeDevicePrefix(t *testing.T) {
	cfg := Default()
	cfg.Proxmox.DeviceDirPrefix = "dev-"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for relative device_dir_prefix")
	}
}

func TestValidateAbsoluteDevicePath(t *testing.T) {
	cfg := Default()
	cfg.Devices[0].Path = "/net/tun"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for absolute device path")
	}
}

func TestValidateMajorOutOfRange(t *testing.T) {
	cfg := Default()
	cfg.Devices[0].Major = MaxMajor + 1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for major out of range")
	}
}

func TestValidateMinorOutOfRange(t *testing.T) {
	cfg := Default()
	cfg.Devices[0].Minor = MaxMinor + 1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for minor out of range")
	}
}

func TestValidateDuplicateDevicePath(t *testing.T) {
	cfg := Default()
	cfg.Devices[1].Path = cfg.Devices[0].Path
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for duplicate device path")
	}
}

func TestValidateRepoURLFlagInjection(t *testing.T) {
	cfg := Default()
	cfg.Guest.RepoURL = "--upload-pack=evil"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for repo_url starting with '-'")
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Proxmox.ConfigDir != DefaultLXCConfigDir {
		t.Errorf("config_dir = %q, want default %q", cfg.Proxmox.ConfigDir, DefaultLXCConfigDir)
	}
	if cfg.IDMap.UID != DefaultMapUID {
		t.Errorf("idmap.uid = %d, want %d", cfg.IDMap.UID, DefaultMapUID)
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	data := "idmap:\n  uid: 165536\n  gid: 165536\nguest:\n  image_tag: vdsm-test\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.IDMap.UID != 165536 {
		t.Errorf("idmap.uid = %d, want 165536", cfg.IDMap.UID)
	}
	if cfg.Guest.ImageTag != "vdsm-test" {
		t.Errorf("image_tag = %q, want %q", cfg.Guest.ImageTag, "vdsm-test")
	}
	// Untouched fields keep their defaults
	if cfg.Proxmox.ConfigDir != DefaultLXCConfigDir {
		t.Errorf("config_dir = %q, want default", cfg.Proxmox.ConfigDir)
	}
}

func TestLoadInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte("guest:\n  repo_url: \"-bad\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yml")
	cfg := Default()
	cfg.Guest.ImageTag = "custom"

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Guest.ImageTag != "custom" {
		t.Errorf("image_tag = %q, want %q", loaded.Guest.ImageTag, "custom")
	}
}

func TestDeviceDir(t *testing.T) {
	cfg := Default()
	if got := cfg.DeviceDir(105); got != "/dev-105" {
		t.Errorf("DeviceDir(105) = %q, want %q", got, "/dev-105")
	}
}

func TestLXCConfigPath(t *testing.T) {
	cfg := Default()
	if got := cfg.LXCConfigPath(105); got != "/etc/pve/lxc/105.conf" {
		t.Errorf("LXCConfigPath(105) = %q, want %q", got, "/etc/pve/lxc/105.conf")
	}
}
