package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/databreach/virtual-dsm-lxc/internal/ui"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status <ctid>",
	Short: "Show the provisioning state of a container",
	Long:  "Reports the container run state, the staged device nodes, and which bind mount entries are present in the container config. Read-only.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctid, err := parseCTID(args[0])
		if err != nil {
			return err
		}

		runner, store, _, err := openRunner()
		if err != nil {
			return err
		}
		defer store.Close()

		report, err := runner.Inspect(ctid)
		if err != nil {
			return err
		}

		if !report.ConfigExists {
			fmt.Printf("Container %d: %s\n", ctid, ui.Red.Render("no config file on this node"))
			return nil
		}

		fmt.Printf("Container %d: %s\n", ctid, ui.Cyan.Render(report.RunState))
		for _, d := range report.Devices {
			mark := ui.Red.Render("missing")
			if d.Node.Exists && d.Node.IsChar && d.Node.Major == d.Device.Major && d.Node.Minor == d.Device.Minor {
				mark = ui.Green.Render(fmt.Sprintf("%d:%d %d:%d", d.Node.Major, d.Node.Minor, d.Node.UID, d.Node.GID))
			} else if d.Node.Exists {
				mark = ui.Yellow.Render(fmt.Sprintf("wrong node %d:%d", d.Node.Major, d.Node.Minor))
			}
			mount := ui.Red.Render("absent")
			if d.MountEntry {
				mount = ui.Green.Render("present")
			}
			fmt.Printf("  %-10s node %s  mount entry %s\n", d.Device.Name, mark, mount)
		}

		if report.Provisioned() {
			fmt.Println(ui.Green.Render("Provisioned."))
		} else {
			fmt.Println(ui.Yellow.Render("Not fully provisioned - run `vdsm-lxc setup` to finish."))
		}
		return nil
	},
}
