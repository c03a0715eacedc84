package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/databreach/virtual-dsm-lxc/internal/provision"
	"github.com/databreach/virtual-dsm-lxc/internal/ui"
)

func init() {
	rootCmd.AddCommand(historyCmd)
}

var historyCmd = &cobra.Command{
	Use:   "history [ctid]",
	Short: "List recorded provisioning runs",
	Long:  "Lists all provisioning runs and their outcomes. With a container ID, also prints the log of that container's most recent run.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, store, _, err := openRunner()
		if err != nil {
			return err
		}
		defer store.Close()

		runs, err := store.ListRuns()
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No recorded runs.")
			return nil
		}

		for _, run := range runs {
			state := run.State
			switch state {
			case provision.StateCompleted:
				state = ui.Green.Render(state)
			case provision.StateFailed, provision.StateRollbackFailed:
				state = ui.Red.Render(state)
			default:
				state = ui.Yellow.Render(state)
			}
			line := fmt.Sprintf("%s  ct %-5d %s  %s", run.StartedAt.Format("2006-01-02 15:04:05"), run.CTID, run.ID, state)
			if run.Error != "" {
				line += ui.Dim.Render("  " + run.Error)
			}
			fmt.Println(line)
		}

		if len(args) == 1 {
			ctid, err := parseCTID(args[0])
			if err != nil {
				return err
			}
			latest, err := store.LatestRun(ctid)
			if err != nil {
				return err
			}
			if latest == nil {
				return nil
			}
			logs, err := store.GetLogs(latest.ID)
			if err != nil {
				return err
			}
			fmt.Printf("\nLog of run %s:\n", latest.ID)
			for _, entry := range logs {
				prefix := ui.Dim.Render(entry.Timestamp.Format("15:04:05") + " " + entry.Level)
				fmt.Printf("%s  %s\n", prefix, entry.Message)
			}
		}
		return nil
	},
}
