package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/databreach/virtual-dsm-lxc/internal/provision"
)

var setupYes bool

func init() {
	setupCmd.Flags().BoolVarP(&setupYes, "yes", "y", false, "skip the confirmation prompt")
	rootCmd.AddCommand(setupCmd)
}

var setupCmd = &cobra.Command{
	Use:   "setup [ctid]",
	Short: "Prepare a container for virtual DSM",
	Long:  "Stops the container, stages device nodes on the host, patches the LXC config with bind mount entries, restarts the container, and performs the guest-side setup (packages, virtual-dsm checkout, installer patches, image build).",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireRoot(); err != nil {
			return err
		}

		runner, store, cfg, err := openRunner()
		if err != nil {
			return err
		}
		defer store.Close()

		answers := &provision.SetupAnswers{}
		if len(args) == 1 {
			if _, err := parseCTID(args[0]); err != nil {
				return err
			}
			answers.CTIDStr = args[0]
		}
		answers.Confirmed = setupYes

		if !setupYes {
			form := provision.BuildSetupForm(cfg, answers)
			if err := form.Run(); err != nil {
				return fmt.Errorf("setup cancelled: %w", err)
			}
			if !answers.Confirmed {
				fmt.Println("Setup cancelled.")
				return nil
			}
		} else if answers.CTIDStr == "" {
			return fmt.Errorf("--yes requires a container ID argument")
		}

		ctid, err := answers.CTID()
		if err != nil {
			return err
		}

		fmt.Println()
		return runner.Run(ctid)
	},
}
