// Package rename applies the canonical IMG_ numbering scheme to a working
// directory as an all-or-nothing batch. Images move through unique temp
// names so that overlapping source and target sets cannot clobber each
// other, and a journal on disk makes an interrupted batch recoverable.
package rename

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lewtec/labelflow/internal/domain"
	"github.com/lewtec/labelflow/internal/repository"
)

var (
	// ErrNotConfirmed is returned by Apply when the batch was not confirmed.
	ErrNotConfirmed = errors.New("rename batch not confirmed")

	// ErrCollision is returned by Plan when a target name is already taken
	// by a file outside the batch. Nothing is touched in that case.
	ErrCollision = errors.New("rename target already exists")
)

func canonicalName(seq int, ext string) string {
	return fmt.Sprintf("IMG_%06d%s", seq, ext)
}

// Step is one image of a planned batch.
type Step struct {
	From string // current image basename
	To   string // canonical image basename

	imagePath   string
	targetPath  string
	fromRecord  string
	toRecord    string
	entry       *domain.Entry
	recordMoved bool
}

// commit updates the in-memory entry once the whole batch is on disk.
func (s *Step) commit() {
	s.entry.Filename = s.To
	s.entry.Path = s.targetPath
	if s.entry.Record != nil {
		s.entry.Record.Filename = s.To
		if s.recordMoved {
			s.entry.Record.Path = s.toRecord
		}
	}
}

// Plan is a validated batch. Steps hold only the images whose name
// actually changes; Total counts every image that was considered.
type Plan struct {
	Dir   string
	Total int
	Steps []Step
}

// Result reports an applied batch.
type Result struct {
	Images  int
	Records int
	Mapping map[string]string // old image name -> new image name
}

// Engine plans and applies rename batches.
type Engine struct {
	Logger *slog.Logger
}

func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{Logger: logger}
}

// Plan assigns sequence names to every image present on disk, in the
// current sorted filename order, and validates all targets. Entries whose
// image file is missing keep their records under the old names. A target
// occupied by a file that is not itself being renamed away aborts the
// whole plan with ErrCollision.
func (e *Engine) Plan(dir string, entries []*domain.Entry) (*Plan, error) {
	present := make([]*domain.Entry, 0, len(entries))
	for _, entry := range entries {
		if entry.Path == "" || entry.State == domain.StateMissing {
			continue
		}
		present = append(present, entry)
	}
	sort.Slice(present, func(i, j int) bool {
		return present[i].Filename < present[j].Filename
	})

	vacated := map[string]bool{}
	steps := make([]Step, 0, len(present))
	for i, entry := range present {
		to := canonicalName(i, filepath.Ext(entry.Filename))
		if to == entry.Filename {
			continue
		}
		step := Step{
			From:       entry.Filename,
			To:         to,
			imagePath:  entry.Path,
			targetPath: filepath.Join(filepath.Dir(entry.Path), to),
			entry:      entry,
		}
		if entry.Record != nil && entry.Record.Path != "" {
			step.fromRecord = entry.Record.Path
			step.toRecord = filepath.Join(filepath.Dir(entry.Record.Path), repository.SidecarName(to))
		}
		vacated[step.imagePath] = true
		if step.fromRecord != "" {
			vacated[step.fromRecord] = true
		}
		steps = append(steps, step)
	}

	var collisions []string
	for _, step := range steps {
		if exists(step.targetPath) && !vacated[step.targetPath] {
			collisions = append(collisions, step.To)
		}
		if step.toRecord != "" && exists(step.toRecord) && !vacated[step.toRecord] {
			collisions = append(collisions, filepath.Base(step.toRecord))
		}
	}
	if len(collisions) > 0 {
		sort.Strings(collisions)
		return nil, fmt.Errorf("%w: %s", ErrCollision, strings.Join(collisions, ", "))
	}
	return &Plan{Dir: dir, Total: len(present), Steps: steps}, nil
}

// Apply executes a plan. Nothing is touched unless confirmed is true.
// The batch lands as a whole: if any move fails, every completed move is
// rolled back before returning. In-memory entries are updated only after
// the batch is fully on disk.
func (e *Engine) Apply(plan *Plan, confirmed bool) (*Result, error) {
	if !confirmed {
		return nil, ErrNotConfirmed
	}
	result := &Result{Mapping: make(map[string]string, len(plan.Steps))}
	if len(plan.Steps) == 0 {
		return result, nil
	}

	steps := make([]journalStep, len(plan.Steps))
	for i, step := range plan.Steps {
		steps[i] = journalStep{
			FromImage:  step.imagePath,
			Temp:       filepath.Join(filepath.Dir(step.imagePath), fmt.Sprintf(".%s.rename", uuid.New())),
			ToImage:    step.targetPath,
			FromRecord: step.fromRecord,
			ToRecord:   step.toRecord,
			OldName:    step.From,
			NewName:    step.To,
		}
	}
	j := &journal{
		Version:   1,
		Phase:     phaseStaging,
		Dir:       plan.Dir,
		CreatedAt: time.Now().UTC(),
		Steps:     steps,
	}
	if err := writeJournal(j); err != nil {
		return nil, err
	}

	if err := e.execute(j, plan, result); err != nil {
		if _, rbErr := Recover(plan.Dir, e.Logger); rbErr != nil {
			return nil, fmt.Errorf("%w; rollback failed: %v, run recover", err, rbErr)
		}
		return nil, fmt.Errorf("%w; batch rolled back", err)
	}

	for i := range plan.Steps {
		plan.Steps[i].commit()
	}
	if err := removeJournal(plan.Dir); err != nil {
		return nil, fmt.Errorf("while removing rename journal: %w", err)
	}
	e.Logger.Info("rename batch applied", "images", result.Images, "records", result.Records)
	return result, nil
}

func (e *Engine) execute(j *journal, plan *Plan, result *Result) error {
	for _, step := range j.Steps {
		if err := os.Rename(step.FromImage, step.Temp); err != nil {
			return fmt.Errorf("while staging %s: %w", step.OldName, err)
		}
	}
	j.Phase = phaseFinalizing
	if err := writeJournal(j); err != nil {
		return err
	}
	for i, step := range j.Steps {
		if err := os.Rename(step.Temp, step.ToImage); err != nil {
			return fmt.Errorf("while renaming %s to %s: %w", step.OldName, step.NewName, err)
		}
		result.Images++
		if step.FromRecord != "" {
			moved, err := e.moveRecord(step)
			if err != nil {
				return err
			}
			if moved {
				plan.Steps[i].recordMoved = true
				result.Records++
			}
		}
		result.Mapping[step.OldName] = step.NewName
		e.Logger.Debug("renamed", "from", step.OldName, "to", step.NewName)
	}
	return nil
}

// moveRecord rewrites the sidecar under its new name, updating only the
// filename field and keeping every other field byte for byte. A sidecar
// that is no longer valid JSON stays at its old name.
func (e *Engine) moveRecord(step journalStep) (bool, error) {
	data, err := os.ReadFile(step.FromRecord)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("while reading sidecar %s: %w", step.FromRecord, err)
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &fields); err != nil {
		e.Logger.Warn("sidecar is not valid JSON, keeping old name",
			"path", step.FromRecord, "error", err)
		return false, nil
	}
	name, err := json.Marshal(step.NewName)
	if err != nil {
		return false, err
	}
	fields["filename"] = name
	out, err := json.MarshalIndent(fields, "", "  ")
	if err != nil {
		return false, err
	}
	if err := repository.WriteFileAtomic(step.ToRecord, out); err != nil {
		return false, fmt.Errorf("while writing sidecar %s: %w", step.ToRecord, err)
	}
	if err := os.Remove(step.FromRecord); err != nil {
		return false, fmt.Errorf("while removing sidecar %s: %w", step.FromRecord, err)
	}
	return true, nil
}
