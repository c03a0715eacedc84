package config

const (
	// Filesystem paths
	DefaultConfigPath = "/etc/vdsm-lxc/config.yml"
	DefaultDataDir    = "/var/lib/vdsm-lxc"
	DefaultStorePath  = "/var/lib/vdsm-lxc/runs.db"

	// Proxmox layout
	DefaultLXCConfigDir    = "/etc/pve/lxc"
	DefaultDeviceDirPrefix = "/dev-"

	// Unprivileged containers map root to this host UID/GID pair.
	DefaultMapUID = 100000
	DefaultMapGID = 100000

	// Guest setup defaults
	DefaultRepoURL  = "https://github.com/vdsm/virtual-dsm.git"
	DefaultCloneDir = "/root/virtual-dsm"
	DefaultImageTag = "vdsm"
)

// DefaultPackages are installed in the guest before the image build.
var DefaultPackages = []string{"docker.io", "git"}

// DefaultAptEnv is passed explicitly to every apt invocation in the guest.
var DefaultAptEnv = map[string]string{"DEBIAN_FRONTEND": "noninteractive"}

// DefaultDevices is the device table for virtual DSM: the nodes an
// unprivileged container cannot mknod itself and therefore receives as
// bind mounts from a host-side staging directory.
func DefaultDevices() []Device {
	return []Device{
		{Name: "tun", Path: "net/tun", Major: 10, Minor: 200, GuestPath: "dev/net/tun"},
		{Name: "kvm", Path: "kvm", Major: 10, Minor: 232, GuestPath: "dev/kvm"},
		{Name: "vhost-net", Path: "vhost-net", Major: 10, Minor: 238, GuestPath: "dev/vhost-net"},
	}
}
