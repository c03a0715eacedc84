package main

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

var rollbackYes bool

func init() {
	rollbackCmd.Flags().BoolVarP(&rollbackYes, "yes", "y", false, "skip the confirmation prompt")
	rootCmd.AddCommand(rollbackCmd)
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback <ctid>",
	Short: "Undo the most recent provisioning run",
	Long:  "Executes the recorded inverse actions of the container's most recent run: removes staged device nodes, strips appended config lines, and restores the container's prior run state. Guest-side changes (packages, image) are not undone.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireRoot(); err != nil {
			return err
		}
		ctid, err := parseCTID(args[0])
		if err != nil {
			return err
		}

		if !rollbackYes {
			confirmed := false
			form := huh.NewForm(huh.NewGroup(
				huh.NewConfirm().
					Title(fmt.Sprintf("Undo the latest provisioning run for container %d?", ctid)).
					Value(&confirmed),
			)).WithTheme(huh.ThemeCatppuccin())
			if err := form.Run(); err != nil {
				return fmt.Errorf("rollback cancelled: %w", err)
			}
			if !confirmed {
				fmt.Println("Rollback cancelled.")
				return nil
			}
		}

		runner, store, _, err := openRunner()
		if err != nil {
			return err
		}
		defer store.Close()

		if err := runner.Rollback(ctid); err != nil {
			return err
		}
		fmt.Printf("Container %d rolled back.\n", ctid)
		return nil
	},
}
