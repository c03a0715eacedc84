package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Linux device numbers are packed into 32 bits: 12 for the major,
// 20 for the minor.
const (
	MaxMajor = 0xfff
	MaxMinor = 0xfffff
)

// Config represents the full tool configuration read from config.yml.
// Every field has a default, so the tool runs without a config file.
type Config struct {
	Proxmox ProxmoxConfig `yaml:"proxmox"`
	IDMap   IDMapConfig   `yaml:"idmap"`
	Devices []Device      `yaml:"devices"`
	Guest   GuestConfig   `yaml:"guest"`
	Store   StoreConfig   `yaml:"store"`
}

type ProxmoxConfig struct {
	// ConfigDir holds per-container <ctid>.conf files.
	ConfigDir string `yaml:"config_dir"`
	// DeviceDirPrefix is prepended to the CTID to form the host-side
	// device staging directory, e.g. /dev-105.
	DeviceDirPrefix string `yaml:"device_dir_prefix"`
}

type IDMapConfig struct {
	UID int `yaml:"uid"`
	GID int `yaml:"gid"`
}

// Device describes one character device to stage for the container.
type Device struct {
	Name  string `yaml:"name"`
	Path  string `yaml:"path"` // relative to the staging directory
	Major uint32 `yaml:"major"`
	Minor uint32 `yaml:"minor"`
	// GuestPath is the bind mount target inside the container,
	// relative to the container rootfs.
	GuestPath string `yaml:"guest_path"`
}

type GuestConfig struct {
	RepoURL  string            `yaml:"repo_url"`
	CloneDir string            `yaml:"clone_dir"`
	ImageTag string            `yaml:"image_tag"`
	Packages []string          `yaml:"packages"`
	AptEnv   map[string]string `yaml:"apt_env"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

// Default returns a fully populated configuration.
func Default() *Config {
	return &Config{
		Proxmox: ProxmoxConfig{
			ConfigDir:       DefaultLXCConfigDir,
			DeviceDirPrefix: DefaultDeviceDirPrefix,
		},
		IDMap: IDMapConfig{
			UID: DefaultMapUID,
			GID: DefaultMapGID,
		},
		Devices: DefaultDevices(),
		Guest: GuestConfig{
			RepoURL:  DefaultRepoURL,
			CloneDir: DefaultCloneDir,
			ImageTag: DefaultImageTag,
			Packages: append([]string(nil), DefaultPackages...),
			AptEnv:   copyEnv(DefaultAptEnv),
		},
		Store: StoreConfig{
			Path: DefaultStorePath,
		},
	}
}

// Load reads the config file at path, overlaying it onto the defaults.
// A missing file is not an error: the defaults are returned as-is.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required fields are present and values are in range.
func (c *Config) Validate() error {
	if c.Proxmox.ConfigDir == "" {
		return fmt.Errorf("proxmox.config_dir is required")
	}
	if c.Proxmox.DeviceDirPrefix == "" {
		return fmt.Errorf("proxmox.device_dir_prefix is required")
	}
	if !strings.HasPrefix(c.Proxmox.DeviceDirPrefix, "/") {
		return fmt.Errorf("proxmox.device_dir_prefix must be an absolute path prefix")
	}

	if c.IDMap.UID < 0 || c.IDMap.GID < 0 {
		return fmt.Errorf("idmap.uid and idmap.gid must be non-negative")
	}

	if len(c.Devices) == 0 {
		return fmt.Errorf("at least one device is required")
	}
	seen := make(map[string]bool, len(c.Devices))
	for _, d := range c.Devices {
		if d.Name == "" {
			return fmt.Errorf("device name is required")
		}
		if d.Path == "" || strings.HasPrefix(d.Path, "/") {
			return fmt.Errorf("device %q: path must be non-empty and relative", d.Name)
		}
		if d.GuestPath == "" || strings.HasPrefix(d.GuestPath, "/") {
			return fmt.Errorf("device %q: guest_path must be non-empty and relative", d.Name)
		}
		if d.Major > MaxMajor {
			return fmt.Errorf("device %q: major %d out of range (max %d)", d.Name, d.Major, MaxMajor)
		}
		if d.Minor > MaxMinor {
			return fmt.Errorf("device %q: minor %d out of range (max %d)", d.Name, d.Minor, MaxMinor)
		}
		if seen[d.Path] {
			return fmt.Errorf("device %q: duplicate path %q", d.Name, d.Path)
		}
		seen[d.Path] = true
	}

	if c.Guest.RepoURL == "" {
		return fmt.Errorf("guest.repo_url is required")
	}
	if strings.HasPrefix(c.Guest.RepoURL, "-") {
		return fmt.Errorf("guest.repo_url cannot start with '-'")
	}
	if !strings.HasPrefix(c.Guest.RepoURL, "http://") && !strings.HasPrefix(c.Guest.RepoURL, "https://") && !strings.HasPrefix(c.Guest.RepoURL, "git@") {
		return fmt.Errorf("guest.repo_url must be a valid http(s) or git@ URL")
	}
	if c.Guest.CloneDir == "" || !strings.HasPrefix(c.Guest.CloneDir, "/") {
		return fmt.Errorf("guest.clone_dir must be an absolute path")
	}
	if c.Guest.ImageTag == "" {
		return fmt.Errorf("guest.image_tag is required")
	}

	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}

	return nil
}

// Save writes the config to the given path, creating parent directories as needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0640); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

func copyEnv(env map[string]string) map[string]string {
	out := make(map[string]string, len(env))
	for k, v := range env {
		out[k] = v
	}
	return out
}

// DeviceDir returns the host-side staging directory for a container.
func (c *Config) DeviceDir(ctid int) string {
	return fmt.Sprintf("%s%d", c.Proxmox.DeviceDirPrefix, ctid)
}

// LXCConfigPath returns the container's config file path.
func (c *Config) LXCConfigPath(ctid int) string {
	return filepath.Join(c.Proxmox.ConfigDir, fmt.Sprintf("%d.conf", ctid))
}
