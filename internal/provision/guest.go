package provision

import (
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/databreach/virtual-dsm-lxc/internal/patch"
	"github.com/databreach/virtual-dsm-lxc/internal/pct"
)

// installerSets is a hook for tests.
var installerSets = patch.InstallerSets

// guestRun executes a command in the container, streaming its output into
// the run log, and fails on a non-zero exit.
func (ctx *runContext) guestRun(command []string) error {
	result, err := ctx.runner.cm.ExecStream(ctx.run.CTID, command, func(line string) {
		if line = strings.TrimSpace(line); line != "" {
			ctx.log("info", "[guest] %s", line)
		}
	})
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("%s exited with code %d", command[0], result.ExitCode)
	}
	return nil
}

func stepGuestPackages(ctx *runContext) error {
	guest := ctx.runner.cfg.Guest
	ctx.info("Installing guest packages: %s", strings.Join(guest.Packages, ", "))

	update := pct.BuildEnvCommand([]string{"apt-get", "update"}, guest.AptEnv)
	if err := ctx.guestRun(update); err != nil {
		return fmt.Errorf("apt-get update: %w", err)
	}

	install := append([]string{"apt-get", "install", "-y"}, guest.Packages...)
	if err := ctx.guestRun(pct.BuildEnvCommand(install, guest.AptEnv)); err != nil {
		return fmt.Errorf("apt-get install: %w", err)
	}
	return nil
}

func stepGuestClone(ctx *runContext) error {
	guest := ctx.runner.cfg.Guest

	result, err := ctx.runner.cm.Exec(ctx.run.CTID, []string{"test", "-d", guest.CloneDir + "/.git"})
	if err != nil {
		return err
	}
	if result.ExitCode == 0 {
		ctx.info("Checkout exists at %s, pulling latest", guest.CloneDir)
		if err := ctx.guestRun([]string{"git", "-C", guest.CloneDir, "pull", "--ff-only"}); err != nil {
			return fmt.Errorf("updating checkout: %w", err)
		}
		return nil
	}

	ctx.info("Cloning %s into %s", guest.RepoURL, guest.CloneDir)
	if err := ctx.guestRun([]string{"git", "clone", guest.RepoURL, guest.CloneDir}); err != nil {
		return fmt.Errorf("cloning %s: %w", guest.RepoURL, err)
	}
	return nil
}

func stepGuestPatch(ctx *runContext) error {
	guest := ctx.runner.cfg.Guest

	for _, set := range installerSets() {
		target := path.Join(guest.CloneDir, set.File)

		content, err := ctx.runner.cm.ReadFile(ctx.run.CTID, target)
		if err != nil {
			return fmt.Errorf("patch set %s: %w", set.Name, err)
		}

		if err := set.VerifyChecksum(content); err != nil {
			// Upstream moved; the anchors below still decide pass/fail.
			ctx.warn("%v", err)
		}

		patched, result, err := set.Apply(content)
		if err != nil {
			return err
		}
		for _, name := range result.AlreadyApplied {
			ctx.info("Patch %s/%s already applied", set.Name, name)
		}
		if len(result.Applied) == 0 {
			continue
		}

		if err := ctx.pushPatched(target, patched); err != nil {
			return fmt.Errorf("patch set %s: %w", set.Name, err)
		}
		ctx.info("Patched %s (%s)", set.File, strings.Join(result.Applied, ", "))
	}
	return nil
}

// pushPatched writes content to a host temp file and pushes it over the
// target script in the container, keeping it executable.
func (ctx *runContext) pushPatched(target, content string) error {
	tmp, err := os.CreateTemp("", "vdsm-lxc-patch-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return ctx.runner.cm.Push(ctx.run.CTID, tmp.Name(), target, "0755")
}

func stepGuestBuild(ctx *runContext) error {
	guest := ctx.runner.cfg.Guest
	ctx.info("Building image %q from %s", guest.ImageTag, guest.CloneDir)
	if err := ctx.guestRun([]string{"docker", "build", "-t", guest.ImageTag, guest.CloneDir}); err != nil {
		return fmt.Errorf("docker build: %w", err)
	}
	return nil
}
