package provision

import (
	"encoding/json"
	"fmt"

	"github.com/databreach/virtual-dsm-lxc/internal/config"
	"github.com/databreach/virtual-dsm-lxc/internal/lxcconf"
)

// Inverse action kinds recorded in the journal.
const (
	ActionRemoveDeviceNode = "remove-device-node"
	ActionRemoveConfigLine = "remove-config-lines"
	ActionStartContainer   = "start-container"
	ActionStopContainer    = "stop-container"
)

// actionPayload is the JSON payload of a journal entry. Only the fields
// relevant to the entry's kind are set.
type actionPayload struct {
	CTID       int           `json:"ctid"`
	StagingDir string        `json:"staging_dir,omitempty"`
	Device     config.Device `json:"device,omitempty"`
	ConfigPath string        `json:"config_path,omitempty"`
	Lines      []string      `json:"lines,omitempty"`
}

// recordInverse appends an inverse action to the run's journal, both
// in the store and in the current in-memory sequence.
func (ctx *runContext) recordInverse(kind string, payload actionPayload) error {
	payload.CTID = ctx.run.CTID
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding journal payload: %w", err)
	}
	ctx.journalSeq++
	if err := ctx.runner.store.AppendJournal(ctx.run.ID, ctx.journalSeq, kind, string(data)); err != nil {
		return fmt.Errorf("recording journal entry: %w", err)
	}
	return nil
}

// executeInverse performs one recorded inverse action.
func (r *Runner) executeInverse(entry *JournalEntry) error {
	var p actionPayload
	if err := json.Unmarshal([]byte(entry.Payload), &p); err != nil {
		return fmt.Errorf("decoding journal payload: %w", err)
	}

	switch entry.Kind {
	case ActionRemoveDeviceNode:
		return removeDevice(p.StagingDir, p.Device)
	case ActionRemoveConfigLine:
		return lxcconf.RemoveLines(p.ConfigPath, p.Lines)
	case ActionStartContainer:
		return r.cm.Start(p.CTID)
	case ActionStopContainer:
		return r.cm.Stop(p.CTID)
	}
	return fmt.Errorf("unknown journal action %q", entry.Kind)
}

// unwind executes a run's not-yet-undone journal entries in reverse
// order. It returns the first error but keeps going, so one stuck inverse
// does not strand the rest of the partial state.
func (r *Runner) unwind(runID string) error {
	entries, err := r.store.GetJournal(runID)
	if err != nil {
		return fmt.Errorf("loading journal: %w", err)
	}

	var firstErr error
	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		if entry.Undone {
			continue
		}
		if err := r.executeInverse(entry); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("undo %s (seq %d): %w", entry.Kind, entry.Seq, err)
			}
			continue
		}
		if err := r.store.MarkUndone(entry.ID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
