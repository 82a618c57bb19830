package rename

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/lewtec/labelflow/internal/repository"
)

// Recover rolls an interrupted rename batch back to its original names
// and removes the journal. It returns the number of files moved back.
// A directory without a journal is a no-op.
func Recover(dir string, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	j, err := readJournal(dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	logger.Warn("rolling back interrupted rename batch",
		"dir", dir, "phase", j.Phase, "steps", len(j.Steps))
	moved, err := rollback(j, logger)
	if err != nil {
		return moved, err
	}
	if err := removeJournal(dir); err != nil {
		return moved, fmt.Errorf("while removing rename journal: %w", err)
	}
	return moved, nil
}

// rollback undoes whatever part of the batch reached the disk. During the
// staging phase only temp moves can exist, so each staged image goes back
// to its source. During the finalizing phase every source was vacated:
// finalized targets are first restaged to their temp names, then every
// temp moves back, so reoccupied source paths never shadow a member.
func rollback(j *journal, logger *slog.Logger) (int, error) {
	moved := 0
	if j.Phase == phaseStaging {
		for _, step := range j.Steps {
			if !exists(step.Temp) {
				continue
			}
			if err := os.Rename(step.Temp, step.FromImage); err != nil {
				return moved, fmt.Errorf("while unstaging %s: %w", step.OldName, err)
			}
			moved++
		}
		return moved, nil
	}

	// Sidecars first: a rewritten record must follow its image back.
	for _, step := range j.Steps {
		if step.ToRecord == "" || !exists(step.ToRecord) {
			continue
		}
		if exists(step.FromRecord) {
			// The new sidecar was written but the old one was not yet
			// removed. Dropping the new copy restores the original state.
			if err := os.Remove(step.ToRecord); err != nil {
				return moved, fmt.Errorf("while dropping sidecar %s: %w", step.ToRecord, err)
			}
			continue
		}
		if err := restoreRecord(step); err != nil {
			return moved, err
		}
		moved++
	}

	for _, step := range j.Steps {
		if exists(step.Temp) {
			continue
		}
		if !exists(step.ToImage) {
			logger.Warn("rename rollback found neither temp nor target",
				"old", step.OldName, "new", step.NewName)
			continue
		}
		if err := os.Rename(step.ToImage, step.Temp); err != nil {
			return moved, fmt.Errorf("while restaging %s: %w", step.NewName, err)
		}
	}
	for _, step := range j.Steps {
		if !exists(step.Temp) {
			continue
		}
		if err := os.Rename(step.Temp, step.FromImage); err != nil {
			return moved, fmt.Errorf("while restoring %s: %w", step.OldName, err)
		}
		moved++
	}
	return moved, nil
}

// restoreRecord rebuilds the original sidecar from the rewritten one,
// pointing its filename field back at the old image name.
func restoreRecord(step journalStep) error {
	data, err := os.ReadFile(step.ToRecord)
	if err != nil {
		return fmt.Errorf("while reading sidecar %s: %w", step.ToRecord, err)
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("while decoding sidecar %s: %w", step.ToRecord, err)
	}
	name, err := json.Marshal(step.OldName)
	if err != nil {
		return err
	}
	fields["filename"] = name
	out, err := json.MarshalIndent(fields, "", "  ")
	if err != nil {
		return err
	}
	if err := repository.WriteFileAtomic(step.FromRecord, out); err != nil {
		return fmt.Errorf("while restoring sidecar %s: %w", step.FromRecord, err)
	}
	if err := os.Remove(step.ToRecord); err != nil {
		return fmt.Errorf("while dropping sidecar %s: %w", step.ToRecord, err)
	}
	return nil
}
