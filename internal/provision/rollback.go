package provision

import (
	"fmt"
	"time"
)

// Rollback unwinds the most recent run for a container, executing any
// inverse actions that have not run yet. It is safe to call on a run that
// was already fully or partially unwound.
func (r *Runner) Rollback(ctid int) error {
	run, err := r.store.LatestRun(ctid)
	if err != nil {
		return fmt.Errorf("loading latest run: %w", err)
	}
	if run == nil {
		return fmt.Errorf("no recorded runs for container %d", ctid)
	}
	if run.State == StateRunning {
		return fmt.Errorf("run %s is still in progress", run.ID)
	}

	if err := r.unwind(run.ID); err != nil {
		run.State = StateRollbackFailed
		now := time.Now()
		run.CompletedAt = &now
		r.store.UpdateRun(run)
		return fmt.Errorf("rollback of run %s: %w", run.ID, err)
	}

	run.State = StateRolledBack
	now := time.Now()
	run.CompletedAt = &now
	return r.store.UpdateRun(run)
}
