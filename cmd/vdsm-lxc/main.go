package main

import (
	"fmt"
	"os"

	"github.com/databreach/virtual-dsm-lxc/internal/ui"
	"github.com/databreach/virtual-dsm-lxc/internal/version"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:     "vdsm-lxc",
	Short:   "vdsm-lxc — run virtual DSM in an unprivileged Proxmox container",
	Version: version.Version,
}

func init() {
	rootCmd.Long = ui.Green.Render("vdsm-lxc") + " " + ui.Cyan.Render(version.Version) + "\n" +
		ui.Dim.Render("Prepares an unprivileged Proxmox LXC container to run virtual DSM under nested Docker: stages the tun, kvm and vhost-net device nodes on the host, patches the container config with bind mounts, and builds the image inside the guest.")

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default /etc/vdsm-lxc/config.yml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
