// Package session drives a working directory through its load cycle:
// scan the images, reconcile them against their stored records, restore
// what can be restored from embedded backups, and position the caller at
// the first image that still needs annotating.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/lewtec/labelflow/internal/backup"
	"github.com/lewtec/labelflow/internal/config"
	"github.com/lewtec/labelflow/internal/domain"
	"github.com/lewtec/labelflow/internal/hash"
	"github.com/lewtec/labelflow/internal/loader"
	"github.com/lewtec/labelflow/internal/rename"
	"github.com/lewtec/labelflow/internal/repository"
)

var (
	// ErrNoDirectory is returned by operations that need an open directory.
	ErrNoDirectory = errors.New("no working directory open")

	// ErrUnsavedAnnotations guards destructive operations while manual-mode
	// edits are still in memory. Flush or Discard first.
	ErrUnsavedAnnotations = errors.New("unsaved annotations pending")
)

// LoadReport is what opening a directory found, in the order things
// happened: rollback, scan, reconcile, restore, resume.
type LoadReport struct {
	domain.ReconcileReport

	Dir   string
	Total int

	// RolledBack counts files moved back while recovering an interrupted
	// rename batch before the load.
	RolledBack int

	// ResumeIndex is the position of the first unannotated image, the last
	// image when everything is annotated, or 0 for an empty directory.
	ResumeIndex int

	// Labels is the label cache snapshot right after the load.
	Labels []string
}

// pendingEdit is a manual-mode annotation held in memory. The entry
// points at the working copy; prev restores the entry on Discard.
type pendingEdit struct {
	entry *domain.Entry
	rec   *domain.Record
	prev  *domain.Record
}

// Session owns everything tied to one open working directory: the
// reconciled entries, the label cache, pending manual-mode edits and the
// in-flight background load. All methods are safe for concurrent use; a
// second Open supersedes a running one and discards its partial results.
type Session struct {
	// Progress, when set, runs after each file the background pipeline
	// finishes. Calls are serialized.
	Progress func(done, total int, name string)

	settings   config.Settings
	records    domain.RecordStore
	labelStore domain.LabelStore
	renamer    *rename.Engine
	logger     *slog.Logger

	mu         sync.Mutex
	dir        string
	entries    []*domain.Entry
	current    int
	resume     int
	labels     *LabelCache
	pending    map[string]*pendingEdit
	report     *LoadReport
	cancelLoad context.CancelFunc
}

// New creates a session around the given settings. A nil logger means
// slog.Default.
func New(settings config.Settings, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		settings:   settings,
		records:    repository.NewRecordStore(settings.CompatMode, settings.SavePath, logger),
		labelStore: repository.NewLabelStore(logger),
		renamer:    rename.NewEngine(logger),
		logger:     logger,
		labels:     NewLabelCache(nil),
		pending:    map[string]*pendingEdit{},
	}
}

// Open loads dir and replaces the session state with the result. A load
// already in flight is cancelled and its partial results are discarded.
// Pending manual-mode edits block the switch with ErrUnsavedAnnotations.
func (s *Session) Open(ctx context.Context, dir string) (*LoadReport, error) {
	s.mu.Lock()
	if len(s.pending) > 0 {
		s.mu.Unlock()
		return nil, ErrUnsavedAnnotations
	}
	if s.cancelLoad != nil {
		s.cancelLoad()
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancelLoad = cancel
	s.mu.Unlock()
	defer cancel()

	report, entries, cache, err := s.load(ctx, dir)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx.Err() != nil {
		// a newer Open superseded this load
		return nil, fmt.Errorf("while opening %s: %w", dir, ctx.Err())
	}
	s.dir = dir
	s.entries = entries
	s.labels = cache
	s.current = report.ResumeIndex
	s.resume = report.ResumeIndex
	s.report = report
	s.pending = map[string]*pendingEdit{}
	s.logger.Info("directory opened", "dir", dir, "images", report.Total,
		"restored", len(report.Restored), "missing", len(report.Missing),
		"resume", report.ResumeIndex)
	return report, nil
}

// load runs the whole cycle without touching session state, so a
// cancelled load leaves nothing behind.
func (s *Session) load(ctx context.Context, dir string) (*LoadReport, []*domain.Entry, *LabelCache, error) {
	report := &LoadReport{Dir: dir}

	// an interrupted rename batch must be rolled back before any filename
	// in this directory can be trusted
	moved, err := rename.Recover(dir, s.logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("while recovering rename journal of %s: %w", dir, err)
	}
	report.RolledBack = moved

	files, err := loader.Scan(dir)
	if err != nil {
		return nil, nil, nil, err
	}

	records, parseFailures, err := s.records.Load(dir)
	if err != nil {
		return nil, nil, nil, err
	}
	report.ParseFailures = parseFailures

	legacy, err := s.records.LegacyAnnotations(dir)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("while loading legacy annotations of %s: %w", dir, err)
	}

	persisted, err := s.labelStore.Load(dir)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("while loading label cache of %s: %w", dir, err)
	}
	cache := NewLabelCache(persisted)
	for _, rec := range records {
		cache.Observe(rec.Label)
	}

	byName := make(map[string]*domain.Record, len(records))
	for _, rec := range records {
		byName[rec.Filename] = rec
	}
	onDisk := make(map[string]bool, len(files))
	for _, f := range files {
		onDisk[f.Name] = true
	}

	// restore missing images from their embedded backups
	restored := map[string]bool{}
	for _, rec := range records {
		if onDisk[rec.Filename] {
			continue
		}
		if rec.BackupData == "" {
			report.Missing = append(report.Missing, rec.Filename)
			continue
		}
		file, wrote, err := restoreImage(dir, rec)
		if err != nil {
			report.Missing = append(report.Missing, rec.Filename)
			report.RestoreFailed = append(report.RestoreFailed,
				domain.RestoreFailure{Filename: rec.Filename, Err: err})
			s.logger.Warn("image could not be restored", "file", rec.Filename, "err", err)
			continue
		}
		files = append(files, file)
		onDisk[file.Name] = true
		if wrote {
			restored[file.Name] = true
			report.Restored = append(report.Restored, rec.Filename)
			s.logger.Info("image restored from backup", "file", rec.Filename)
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })

	// background pipeline: hash everything, encode backups under the gate
	slots := make([]*domain.Entry, len(files))
	pipeline := &loader.Loader{
		Jobs:     s.settings.Jobs,
		Encode:   s.settings.BackupEnabled(),
		Limit:    backup.Limit(s.settings.BackupLimitMB),
		Progress: s.Progress,
		Logger:   s.logger,
	}
	for batch := range pipeline.Run(ctx, files) {
		for _, res := range batch.Results {
			slots[res.Index] = s.reconcile(dir, files[res.Index], res, byName, restored, report)
		}
	}
	if ctx.Err() != nil {
		return nil, nil, nil, fmt.Errorf("while loading %s: %w", dir, ctx.Err())
	}

	entries := make([]*domain.Entry, 0, len(slots))
	for _, entry := range slots {
		if entry != nil {
			entries = append(entries, entry)
		}
	}

	// V0.0.2 labels.json: attach annotation text by hash to images that
	// have no annotation content yet
	for _, entry := range entries {
		if entry.Annotated() || entry.Hash == "" {
			continue
		}
		text, ok := legacy[entry.Hash]
		if !ok || strings.TrimSpace(text) == "" {
			continue
		}
		if entry.Record == nil {
			entry.Record = &domain.Record{
				Filename:   entry.Filename,
				Hash:       entry.Hash,
				FileSize:   entry.Size,
				BackupData: entry.Backup,
				Schema:     domain.SchemaLegacy,
			}
		}
		entry.Record.Describe = text
	}

	if cache.Dirty() {
		if err := s.labelStore.Save(dir, cache.Labels()); err != nil {
			report.IOFailures = append(report.IOFailures,
				domain.FileFailure{Filename: "labels_cache.json", Err: err})
		} else {
			cache.MarkSaved()
		}
	}

	report.Total = len(entries)
	report.ResumeIndex = resumeIndex(entries)
	report.Labels = cache.Labels()
	return report, entries, cache, nil
}

// reconcile turns one pipeline result into a working-set entry. Unreadable
// files are reported and dropped; their sidecars stay untouched.
func (s *Session) reconcile(dir string, f loader.File, res loader.Result, byName map[string]*domain.Record, restored map[string]bool, report *LoadReport) *domain.Entry {
	if res.Err != nil {
		report.IOFailures = append(report.IOFailures,
			domain.FileFailure{Filename: f.Name, Err: res.Err})
		return nil
	}
	entry := &domain.Entry{
		Filename: f.Name,
		Path:     f.Path,
		Size:     res.Size,
		Hash:     res.Hash,
	}
	rec := byName[f.Name]
	switch {
	case rec == nil:
		entry.State = domain.StateNew
		entry.Backup = res.Backup
		report.New = append(report.New, f.Name)

	case rec.Hash != res.Hash || rec.FileSize != res.Size:
		// the file on disk is ground truth: refresh fingerprint, size and
		// backup payload together. A payload encoded from the old bytes no
		// longer matches the new fingerprint, so it is replaced even when
		// backups are off.
		rec.Hash = res.Hash
		rec.FileSize = res.Size
		rec.BackupData = res.Backup
		entry.Record = rec
		report.Changed = append(report.Changed, f.Name)
		if err := s.records.Write(dir, rec); err != nil {
			// the sidecar on disk still carries the stale fields
			entry.State = domain.StateChanged
			report.IOFailures = append(report.IOFailures,
				domain.FileFailure{Filename: f.Name, Err: err})
		} else {
			entry.State = domain.StateVerified
			s.logger.Warn("record refreshed from disk", "file", f.Name)
		}

	default:
		entry.Record = rec
		if restored[f.Name] {
			entry.State = domain.StateRestored
		} else {
			entry.State = domain.StateVerified
			report.Verified = append(report.Verified, f.Name)
		}
	}
	return entry
}

// restoreImage rebuilds a missing image from its record's backup payload.
// The payload must decode to exactly the recorded size and fingerprint.
// A file that reappeared since the scan is adopted, never overwritten.
func restoreImage(dir string, rec *domain.Record) (loader.File, bool, error) {
	data, err := backup.Decode(rec.BackupData)
	if err != nil {
		return loader.File{}, false, err
	}
	if int64(len(data)) != rec.FileSize {
		return loader.File{}, false, fmt.Errorf(
			"backup of %s decodes to %d bytes, record says %d",
			rec.Filename, len(data), rec.FileSize)
	}
	if got := hash.Sum(data); got != rec.Hash {
		return loader.File{}, false, fmt.Errorf(
			"backup of %s decodes to fingerprint %s, record says %s",
			rec.Filename, got, rec.Hash)
	}

	target := filepath.Join(dir, rec.Filename)
	if info, err := os.Lstat(target); err == nil {
		return loader.File{Name: rec.Filename, Path: target, Size: info.Size()}, false, nil
	}
	if err := repository.WriteFileAtomic(target, data); err != nil {
		return loader.File{}, false, fmt.Errorf("while writing %s: %w", rec.Filename, err)
	}
	return loader.File{Name: rec.Filename, Path: target, Size: int64(len(data))}, true, nil
}

// resumeIndex finds the first entry with no annotation content. All
// annotated means the last entry; an empty directory means 0.
func resumeIndex(entries []*domain.Entry) int {
	for i, entry := range entries {
		if !entry.Annotated() {
			return i
		}
	}
	if len(entries) == 0 {
		return 0
	}
	return len(entries) - 1
}

// Annotate sets the describe text and labels of the image at index.
// Labels are deduplicated preserving first occurrence. Auto save mode
// persists immediately; manual mode keeps the edit in memory until Flush.
func (s *Session) Annotate(index int, describe string, labels []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dir == "" {
		return ErrNoDirectory
	}
	if index < 0 || index >= len(s.entries) {
		return fmt.Errorf("image index %d out of range [0, %d)", index, len(s.entries))
	}
	entry := s.entries[index]
	if entry.Hash == "" {
		return fmt.Errorf("image %s has no fingerprint", entry.Filename)
	}

	rec, fresh := s.workingCopy(entry)
	rec.Describe = describe
	rec.Label = dedupe(labels)

	s.labels.Observe(rec.Label)
	if err := s.persistLabels(); err != nil {
		return err
	}

	if s.settings.AutoSave() {
		return s.persist(rec)
	}
	if fresh {
		s.pending[entry.Filename] = &pendingEdit{entry: entry, rec: rec, prev: entry.Record}
	}
	entry.Record = rec
	return nil
}

// workingCopy returns the record to edit for an entry: the pending copy
// when one exists, a clone of the loaded record, or a brand new record
// stamped with the entry's verified fingerprint.
func (s *Session) workingCopy(entry *domain.Entry) (*domain.Record, bool) {
	if p, ok := s.pending[entry.Filename]; ok {
		return p.rec, false
	}
	if entry.Record != nil {
		if s.settings.AutoSave() {
			return entry.Record, false
		}
		return entry.Record.Clone(), true
	}
	rec := &domain.Record{
		Filename: entry.Filename,
		Hash:     entry.Hash,
		FileSize: entry.Size,
	}
	if s.settings.BackupEnabled() {
		rec.BackupData = entry.Backup
	}
	if s.settings.AutoSave() {
		entry.Record = rec
		return rec, false
	}
	return rec, true
}

// persist writes one record. Fresh records with no annotation content are
// skipped; records that already have a file are overwritten even when the
// content was cleared.
func (s *Session) persist(rec *domain.Record) error {
	if rec.Path == "" {
		_, err := s.records.Save(s.dir, rec)
		return err
	}
	return s.records.Write(s.dir, rec)
}

func (s *Session) persistLabels() error {
	if !s.labels.Dirty() {
		return nil
	}
	if err := s.labelStore.Save(s.dir, s.labels.Labels()); err != nil {
		return fmt.Errorf("while saving label cache: %w", err)
	}
	s.labels.MarkSaved()
	return nil
}

func dedupe(labels []string) []string {
	if len(labels) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(labels))
	out := make([]string, 0, len(labels))
	for _, label := range labels {
		if label == "" || seen[label] {
			continue
		}
		seen[label] = true
		out = append(out, label)
	}
	return out
}

// Flush persists pending manual-mode edits in filename order and reports
// how many were persisted. It stops at the first write error, leaving the
// failed record and everything after it pending.
func (s *Session) Flush() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.pending))
	for name := range s.pending {
		names = append(names, name)
	}
	sort.Strings(names)

	written := 0
	for _, name := range names {
		p := s.pending[name]
		if err := s.persist(p.rec); err != nil {
			return written, fmt.Errorf("while saving %s: %w", name, err)
		}
		delete(s.pending, name)
		written++
	}
	return written, nil
}

// Discard drops pending manual-mode edits, restoring each entry to its
// loaded record. It reports how many edits were dropped.
func (s *Session) Discard() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.pending)
	for _, p := range s.pending {
		p.entry.Record = p.prev
	}
	s.pending = map[string]*pendingEdit{}
	return n
}

// UnsavedCount reports how many manual-mode edits are still in memory.
func (s *Session) UnsavedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// PlanRename previews the canonical IMG_ numbering without touching the
// disk.
func (s *Session) PlanRename() (*rename.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dir == "" {
		return nil, ErrNoDirectory
	}
	return s.renamer.Plan(s.dir, s.entries)
}

// RenameAll applies the canonical IMG_ numbering to the open directory.
// Nothing happens unless confirmed is true, and pending edits must be
// flushed or discarded first so no save can race a rename.
func (s *Session) RenameAll(confirmed bool) (*rename.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dir == "" {
		return nil, ErrNoDirectory
	}
	if len(s.pending) > 0 {
		return nil, ErrUnsavedAnnotations
	}
	plan, err := s.renamer.Plan(s.dir, s.entries)
	if err != nil {
		return nil, err
	}
	result, err := s.renamer.Apply(plan, confirmed)
	if err != nil {
		return nil, err
	}

	// renaming reorders the directory; keep the cursor on the same image
	var cur *domain.Entry
	if s.current < len(s.entries) {
		cur = s.entries[s.current]
	}
	sort.Slice(s.entries, func(i, j int) bool {
		return s.entries[i].Filename < s.entries[j].Filename
	})
	for i, entry := range s.entries {
		if entry == cur {
			s.current = i
			break
		}
	}
	s.resume = resumeIndex(s.entries)
	return result, nil
}

// Close cancels any in-flight load. Pending manual-mode edits are kept;
// callers decide whether to Flush or Discard them first.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelLoad != nil {
		s.cancelLoad()
		s.cancelLoad = nil
	}
}

// Dir returns the open working directory, empty before the first Open.
func (s *Session) Dir() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dir
}

// Len returns the number of navigable images.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Entries returns the working set in deterministic filename order. The
// slice is a copy; the entries are live.
func (s *Session) Entries() []*domain.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Entry returns the image at a zero-based position.
func (s *Session) Entry(index int) (*domain.Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.entries) {
		return nil, false
	}
	return s.entries[index], true
}

// Find returns the position of an image by basename.
func (s *Session) Find(filename string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, entry := range s.entries {
		if entry.Filename == filename {
			return i, true
		}
	}
	return 0, false
}

// Current returns the entry under the cursor, nil when the directory is
// empty.
func (s *Session) Current() *domain.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current < 0 || s.current >= len(s.entries) {
		return nil
	}
	return s.entries[s.current]
}

// CurrentIndex returns the cursor position.
func (s *Session) CurrentIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Next advances the cursor and reports whether it moved.
func (s *Session) Next() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current >= len(s.entries)-1 {
		return false
	}
	s.current++
	return true
}

// Prev moves the cursor back and reports whether it moved.
func (s *Session) Prev() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current <= 0 {
		return false
	}
	s.current--
	return true
}

// JumpTo moves the cursor to index and reports whether it is valid.
func (s *Session) JumpTo(index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.entries) {
		return false
	}
	s.current = index
	return true
}

// Resume returns the resume position computed by the last Open (updated
// after a rename reorders the directory).
func (s *Session) Resume() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resume
}

// Report returns the last load report, nil before the first Open.
func (s *Session) Report() *LoadReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report
}

// Labels returns the session label cache snapshot in first-seen order.
func (s *Session) Labels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.labels.Labels()
}

// LabelAt returns the label bound to a zero-based position.
func (s *Session) LabelAt(index int) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.labels.At(index)
}

// AddLabel registers a label without attaching it to any image, so the
// presentation layer can offer it for reuse. New labels are persisted to
// the directory's label cache right away.
func (s *Session) AddLabel(label string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dir == "" {
		return false, ErrNoDirectory
	}
	if !s.labels.Add(label) {
		return false, nil
	}
	if err := s.persistLabels(); err != nil {
		return true, err
	}
	return true, nil
}
