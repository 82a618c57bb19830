package rename

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lewtec/labelflow/internal/repository"
)

// journalFile sits in the working directory while a batch is in flight.
// Finding one on a later open means a crash interrupted the batch, and
// the directory must be rolled back before anything else happens.
const journalFile = ".labelflow-rename.json"

// Journal phases. Staging means images are being moved to temp names and
// no target has been written yet. Finalizing means every image sits under
// its temp name and targets are being written.
const (
	phaseStaging    = "staging"
	phaseFinalizing = "finalizing"
)

type journalStep struct {
	// Absolute image paths.
	FromImage string `json:"from_image"`
	Temp      string `json:"temp"`
	ToImage   string `json:"to_image"`

	// Absolute sidecar paths, empty when the image has no persisted record.
	FromRecord string `json:"from_record,omitempty"`
	ToRecord   string `json:"to_record,omitempty"`

	// Image basenames, used to rewrite the record's filename field.
	OldName string `json:"old_name"`
	NewName string `json:"new_name"`
}

type journal struct {
	Version   int           `json:"version"`
	Phase     string        `json:"phase"`
	Dir       string        `json:"dir"`
	CreatedAt time.Time     `json:"created_at"`
	Steps     []journalStep `json:"steps"`
}

func journalPath(dir string) string {
	return filepath.Join(dir, journalFile)
}

// HasJournal reports whether dir carries an interrupted batch.
func HasJournal(dir string) bool {
	_, err := os.Stat(journalPath(dir))
	return err == nil
}

func writeJournal(j *journal) error {
	data, err := json.MarshalIndent(j, "", "  ")
	if err != nil {
		return fmt.Errorf("while encoding rename journal: %w", err)
	}
	if err := repository.WriteFileAtomic(journalPath(j.Dir), data); err != nil {
		return fmt.Errorf("while writing rename journal: %w", err)
	}
	return nil
}

func readJournal(dir string) (*journal, error) {
	data, err := os.ReadFile(journalPath(dir))
	if err != nil {
		return nil, err
	}
	var j journal
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("while decoding rename journal: %w", err)
	}
	return &j, nil
}

func removeJournal(dir string) error {
	return os.Remove(journalPath(dir))
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
