package provision

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/databreach/virtual-dsm-lxc/internal/config"
)

// SetupAnswers holds the interactive setup form results.
type SetupAnswers struct {
	CTIDStr   string
	Confirmed bool
}

// CTID parses the entered container ID.
func (a *SetupAnswers) CTID() (int, error) {
	ctid, err := strconv.Atoi(strings.TrimSpace(a.CTIDStr))
	if err != nil || ctid <= 0 {
		return 0, fmt.Errorf("container ID %q must be a positive integer", a.CTIDStr)
	}
	return ctid, nil
}

// BuildSetupForm constructs the interactive setup form. A pre-filled CTID
// (from the command line) skips the input group.
func BuildSetupForm(cfg *config.Config, answers *SetupAnswers) *huh.Form {
	groups := []*huh.Group{
		ctidGroup(answers),
		confirmGroup(cfg, answers),
	}
	return huh.NewForm(groups...).WithTheme(huh.ThemeCatppuccin())
}

func ctidGroup(answers *SetupAnswers) *huh.Group {
	return huh.NewGroup(
		huh.NewInput().
			Title("Container ID").
			Description("The numeric ID of the LXC container to prepare for virtual DSM.").
			Value(&answers.CTIDStr).
			Validate(func(s string) error {
				ctid, err := strconv.Atoi(strings.TrimSpace(s))
				if err != nil || ctid <= 0 {
					return fmt.Errorf("must be a positive integer")
				}
				return nil
			}),
	).WithHideFunc(func() bool { return answers.CTIDStr != "" })
}

func confirmGroup(cfg *config.Config, answers *SetupAnswers) *huh.Group {
	var sb strings.Builder
	sb.WriteString("This will:\n")
	sb.WriteString("  1. Stop the container if it is running\n")
	sb.WriteString(fmt.Sprintf("  2. Create %d device nodes under %s<ctid>:\n", len(cfg.Devices), cfg.Proxmox.DeviceDirPrefix))
	for _, d := range cfg.Devices {
		sb.WriteString(fmt.Sprintf("       %-10s %d:%d\n", d.Name, d.Major, d.Minor))
	}
	sb.WriteString("  3. Append bind mount entries to the container config\n")
	sb.WriteString("  4. Start the container\n")
	sb.WriteString(fmt.Sprintf("  5. Install %s, clone %s,\n", strings.Join(cfg.Guest.Packages, " and "), cfg.Guest.RepoURL))
	sb.WriteString(fmt.Sprintf("     patch its installer scripts, and build image %q\n", cfg.Guest.ImageTag))
	sb.WriteString("\nChanges made on the host are undone automatically if a step fails.")

	return huh.NewGroup(
		huh.NewNote().
			Title("Prepare container for virtual DSM").
			Description(sb.String()),
		huh.NewConfirm().
			Title("Proceed?").
			Value(&answers.Confirmed),
	)
}
