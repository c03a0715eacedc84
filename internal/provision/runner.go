// Package provision runs the end-to-end preparation of an LXC container
// for virtual DSM: stop the container, stage device nodes on the host,
// patch the LXC config with bind mount entries, restart, then set up the
// guest (packages, source checkout, installer patches, image build).
//
// Host-side mutations are journaled with inverse actions. The first step
// failure aborts the run and unwinds the journal, so a failed run does not
// leave partial device or config state behind.
package provision

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/databreach/virtual-dsm-lxc/internal/config"
	"github.com/databreach/virtual-dsm-lxc/internal/lxcconf"
	"github.com/databreach/virtual-dsm-lxc/internal/pct"
	"github.com/databreach/virtual-dsm-lxc/internal/ui"
)

// Pipeline step names, recorded on the run as it progresses.
const (
	StepResolveTarget    = "resolve-target"
	StepInspectState     = "inspect-state"
	StepStopContainer    = "stop-container"
	StepProvisionDevices = "provision-devices"
	StepPatchConfig      = "patch-config"
	StepStartContainer   = "start-container"
	StepGuestPackages    = "guest-packages"
	StepGuestClone       = "guest-clone"
	StepGuestPatch       = "guest-patch"
	StepGuestBuild       = "guest-build"
	StepVerify           = "verify"
)

// setupSteps defines the ordered pipeline for a provisioning run.
var setupSteps = []struct {
	step string
	fn   func(ctx *runContext) error
}{
	{StepResolveTarget, stepResolveTarget},
	{StepInspectState, stepInspectState},
	{StepStopContainer, stepStopContainer},
	{StepProvisionDevices, stepProvisionDevices},
	{StepPatchConfig, stepPatchConfig},
	{StepStartContainer, stepStartContainer},
	{StepGuestPackages, stepGuestPackages},
	{StepGuestClone, stepGuestClone},
	{StepGuestPatch, stepGuestPatch},
	{StepGuestBuild, stepGuestBuild},
	{StepVerify, stepVerify},
}

// Runner executes provisioning runs.
type Runner struct {
	cfg   *config.Config
	cm    ContainerManager
	store *Store
	out   io.Writer
}

// NewRunner creates a Runner. out receives human-readable progress; pass
// os.Stdout for interactive use.
func NewRunner(cfg *config.Config, cm ContainerManager, store *Store, out io.Writer) *Runner {
	if out == nil {
		out = io.Discard
	}
	return &Runner{cfg: cfg, cm: cm, store: store, out: out}
}

// runContext carries state through one provisioning run.
type runContext struct {
	runner     *Runner
	run        *Run
	wasRunning bool
	journalSeq int
}

func (ctx *runContext) log(level, msg string, args ...interface{}) {
	message := fmt.Sprintf(msg, args...)
	ctx.runner.store.AppendLog(&LogEntry{
		RunID:     ctx.run.ID,
		Timestamp: time.Now(),
		Level:     level,
		Message:   message,
	})
	switch level {
	case "warn":
		fmt.Fprintln(ctx.runner.out, ui.Yellow.Render("! ")+message)
	case "error":
		fmt.Fprintln(ctx.runner.out, ui.Red.Render("✗ ")+message)
	default:
		fmt.Fprintln(ctx.runner.out, ui.Dim.Render("  ")+message)
	}
}

func (ctx *runContext) info(msg string, args ...interface{}) {
	ctx.log("info", msg, args...)
}

func (ctx *runContext) warn(msg string, args ...interface{}) {
	ctx.log("warn", msg, args...)
}

func (ctx *runContext) transition(step string) {
	ctx.run.Step = step
	ctx.runner.store.UpdateRun(ctx.run)
	fmt.Fprintln(ctx.runner.out, ui.Cyan.Render("» ")+step)
}

func generateID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// Run executes the full pipeline for a container. On failure it unwinds
// the journal and returns the step error.
func (r *Runner) Run(ctid int) error {
	run := &Run{
		ID:        generateID(),
		CTID:      ctid,
		State:     StateRunning,
		StartedAt: time.Now(),
	}
	if err := r.store.CreateRun(run); err != nil {
		return fmt.Errorf("recording run: %w", err)
	}

	ctx := &runContext{runner: r, run: run}
	ctx.info("Preparing container %d for virtual DSM", ctid)

	for _, step := range setupSteps {
		ctx.transition(step.step)

		if err := step.fn(ctx); err != nil {
			ctx.log("error", "Failed at %s: %v", step.step, err)
			run.State = StateFailed
			run.Error = fmt.Sprintf("%s: %v", step.step, err)
			now := time.Now()
			run.CompletedAt = &now
			r.store.UpdateRun(run)

			ctx.info("Unwinding applied changes...")
			if uerr := r.unwind(run.ID); uerr != nil {
				ctx.log("error", "Rollback incomplete: %v", uerr)
				run.State = StateRollbackFailed
			} else {
				run.State = StateRolledBack
			}
			r.store.UpdateRun(run)
			return fmt.Errorf("%s: %w", step.step, err)
		}
	}

	run.State = StateCompleted
	now := time.Now()
	run.CompletedAt = &now
	r.store.UpdateRun(run)

	ctx.info("Container %d is ready. Virtual DSM image %q is built.", ctid, r.cfg.Guest.ImageTag)
	return nil
}

func stepResolveTarget(ctx *runContext) error {
	if ctx.run.CTID <= 0 {
		return fmt.Errorf("container ID must be a positive integer")
	}
	path := ctx.runner.cfg.LXCConfigPath(ctx.run.CTID)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no container config at %s - does container %d exist on this node?", path, ctx.run.CTID)
		}
		return fmt.Errorf("checking %s: %w", path, err)
	}
	ctx.info("Target: container %d (%s)", ctx.run.CTID, path)
	return nil
}

func stepInspectState(ctx *runContext) error {
	state, err := ctx.runner.cm.Status(ctx.run.CTID)
	if err != nil {
		return err
	}
	ctx.wasRunning = state == pct.StateRunning
	ctx.info("Container %d is %s", ctx.run.CTID, state)
	return nil
}

func stepStopContainer(ctx *runContext) error {
	if !ctx.wasRunning {
		ctx.info("Container already stopped")
		return nil
	}
	ctx.info("Stopping container %d before host-side changes...", ctx.run.CTID)
	if err := ctx.runner.cm.Stop(ctx.run.CTID); err != nil {
		return err
	}
	return ctx.recordInverse(ActionStartContainer, actionPayload{})
}

func stepProvisionDevices(ctx *runContext) error {
	cfg := ctx.runner.cfg
	staging := cfg.DeviceDir(ctx.run.CTID)

	for _, dev := range cfg.Devices {
		ctx.info("Device %s: %d:%d at %s/%s", dev.Name, dev.Major, dev.Minor, staging, dev.Path)
		created, err := provisionDevice(staging, dev, cfg.IDMap.UID, cfg.IDMap.GID)
		if err != nil {
			return fmt.Errorf("device %s: %w", dev.Name, err)
		}
		if !created {
			ctx.info("Device %s already present", dev.Name)
			continue
		}
		if err := ctx.recordInverse(ActionRemoveDeviceNode, actionPayload{
			StagingDir: staging,
			Device:     dev,
		}); err != nil {
			return err
		}
	}
	return nil
}

func stepPatchConfig(ctx *runContext) error {
	cfg := ctx.runner.cfg
	staging := cfg.DeviceDir(ctx.run.CTID)
	confPath := cfg.LXCConfigPath(ctx.run.CTID)

	lines := make([]string, 0, len(cfg.Devices))
	for _, dev := range cfg.Devices {
		lines = append(lines, lxcconf.MountEntry(staging+"/"+dev.Path, dev.GuestPath))
	}

	appended, err := lxcconf.EnsureLines(confPath, lines)
	if err != nil {
		return err
	}
	if len(appended) == 0 {
		ctx.info("All mount entries already present in %s", confPath)
		return nil
	}
	for _, line := range appended {
		ctx.info("Appended: %s", line)
	}
	return ctx.recordInverse(ActionRemoveConfigLine, actionPayload{
		ConfigPath: confPath,
		Lines:      appended,
	})
}

func stepStartContainer(ctx *runContext) error {
	state, err := ctx.runner.cm.Status(ctx.run.CTID)
	if err != nil {
		return err
	}
	if state == pct.StateRunning {
		ctx.info("Container already running")
		return nil
	}
	ctx.info("Starting container %d...", ctx.run.CTID)
	if err := ctx.runner.cm.Start(ctx.run.CTID); err != nil {
		return err
	}
	return ctx.recordInverse(ActionStopContainer, actionPayload{})
}

func stepVerify(ctx *runContext) error {
	cfg := ctx.runner.cfg
	staging := cfg.DeviceDir(ctx.run.CTID)
	confPath := cfg.LXCConfigPath(ctx.run.CTID)

	for _, dev := range cfg.Devices {
		info, err := inspectDevice(staging, dev)
		if err != nil {
			return err
		}
		if !info.Exists || !info.IsChar || info.Major != dev.Major || info.Minor != dev.Minor {
			return fmt.Errorf("device %s failed verification at %s", dev.Name, info.Path)
		}
		ok, err := lxcconf.HasLine(confPath, lxcconf.MountEntry(staging+"/"+dev.Path, dev.GuestPath))
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("mount entry for %s missing from %s", dev.Name, confPath)
		}
	}

	state, err := ctx.runner.cm.Status(ctx.run.CTID)
	if err != nil {
		return err
	}
	if state != pct.StateRunning {
		return fmt.Errorf("container %d is %s after setup, want running", ctx.run.CTID, state)
	}

	ctx.info("Verified: %d devices staged, config patched, container running", len(cfg.Devices))
	return nil
}
