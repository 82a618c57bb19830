package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/lewtec/labelflow/internal/backup"
	"github.com/lewtec/labelflow/internal/config"
	"github.com/lewtec/labelflow/internal/domain"
	"github.com/lewtec/labelflow/internal/hash"
	"github.com/lewtec/labelflow/internal/rename"
	"github.com/lewtec/labelflow/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, dir, name string, data []byte) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
		t.Fatalf("writing fixture %s: %v", name, err)
	}
}

// recordFor builds a record whose integrity fields match content.
func recordFor(name string, content []byte) *domain.Record {
	return &domain.Record{
		Filename: name,
		Hash:     hash.Sum(content),
		FileSize: int64(len(content)),
	}
}

func writeRecord(t *testing.T, dir string, rec *domain.Record) {
	t.Helper()
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		t.Fatal(err)
	}
	writeFile(t, dir, repository.SidecarName(rec.Filename), data)
}

func readRecord(t *testing.T, path string) domain.Record {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading record %s: %v", path, err)
	}
	var rec domain.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatalf("decoding record %s: %v", path, err)
	}
	return rec
}

func newSession(t *testing.T, settings config.Settings) *Session {
	t.Helper()
	s := New(settings, testLogger())
	t.Cleanup(s.Close)
	return s
}

func mustOpen(t *testing.T, s *Session, dir string) *LoadReport {
	t.Helper()
	report, err := s.Open(context.Background(), dir)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return report
}

func TestOpenEmptyDirectory(t *testing.T) {
	dir := t.TempDir()
	s := newSession(t, config.Default())

	report := mustOpen(t, s, dir)
	if report.Total != 0 {
		t.Errorf("Total = %d, want 0", report.Total)
	}
	if report.ResumeIndex != 0 {
		t.Errorf("ResumeIndex = %d, want 0", report.ResumeIndex)
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
	if s.Current() != nil {
		t.Error("Current() != nil for an empty directory")
	}
	if s.Dir() != dir {
		t.Errorf("Dir() = %s, want %s", s.Dir(), dir)
	}
}

func TestOpenReconciles(t *testing.T) {
	dir := t.TempDir()

	// IMG_1: image and matching annotated record
	first := []byte("first image bytes")
	writeFile(t, dir, "IMG_1.png", first)
	rec1 := recordFor("IMG_1.png", first)
	rec1.Describe = "a cat"
	rec1.BackupData = backup.Encode(first)
	writeRecord(t, dir, rec1)

	// IMG_2: record with an embedded backup, image deleted
	second := []byte("second image bytes")
	rec2 := recordFor("IMG_2.png", second)
	rec2.BackupData = backup.Encode(second)
	writeRecord(t, dir, rec2)

	// IMG_3: image alone
	writeFile(t, dir, "IMG_3.png", []byte("third"))

	// a sidecar nothing can decode
	writeFile(t, dir, "junk.json", []byte("{broken"))

	s := newSession(t, config.Default())
	report := mustOpen(t, s, dir)

	if report.Total != 3 {
		t.Fatalf("Total = %d, want 3", report.Total)
	}
	if !reflect.DeepEqual(report.Verified, []string{"IMG_1.png"}) {
		t.Errorf("Verified = %v, want [IMG_1.png]", report.Verified)
	}
	if !reflect.DeepEqual(report.Restored, []string{"IMG_2.png"}) {
		t.Errorf("Restored = %v, want [IMG_2.png]", report.Restored)
	}
	if !reflect.DeepEqual(report.New, []string{"IMG_3.png"}) {
		t.Errorf("New = %v, want [IMG_3.png]", report.New)
	}
	if len(report.ParseFailures) != 1 {
		t.Errorf("ParseFailures = %v, want one entry", report.ParseFailures)
	}

	// the deleted image is back, byte for byte
	data, err := os.ReadFile(filepath.Join(dir, "IMG_2.png"))
	if err != nil {
		t.Fatalf("restored image missing: %v", err)
	}
	if string(data) != string(second) {
		t.Errorf("restored content = %q, want %q", data, second)
	}

	entries := s.Entries()
	states := []domain.FileState{domain.StateVerified, domain.StateRestored, domain.StateNew}
	for i, want := range states {
		if entries[i].State != want {
			t.Errorf("entry %d state = %v, want %v", i, entries[i].State, want)
		}
	}

	// the new image staged a backup payload for its first save
	decoded, err := backup.Decode(entries[2].Backup)
	if err != nil || string(decoded) != "third" {
		t.Errorf("staged backup = %q (err %v), want third", decoded, err)
	}

	// IMG_1 is annotated, IMG_2 is not: resume lands on IMG_2
	if report.ResumeIndex != 1 {
		t.Errorf("ResumeIndex = %d, want 1", report.ResumeIndex)
	}
	if cur := s.Current(); cur == nil || cur.Filename != "IMG_2.png" {
		t.Errorf("Current() = %v, want IMG_2.png", cur)
	}
}

func TestOpenRefreshesChangedRecord(t *testing.T) {
	// an image rewritten behind the engine's back, with a sidecar still
	// describing the old bytes
	fixture := func(t *testing.T) string {
		t.Helper()
		dir := t.TempDir()
		writeFile(t, dir, "pic.png", []byte("fresh pixels"))
		stale := recordFor("pic.png", []byte("stale pixels"))
		stale.Describe = "sunset over water"
		stale.BackupData = backup.Encode([]byte("stale pixels"))
		writeRecord(t, dir, stale)
		return dir
	}

	t.Run("backups on", func(t *testing.T) {
		dir := fixture(t)
		s := newSession(t, config.Default())
		report := mustOpen(t, s, dir)

		if !reflect.DeepEqual(report.Changed, []string{"pic.png"}) {
			t.Fatalf("Changed = %v, want [pic.png]", report.Changed)
		}
		// refreshed and rewritten, so the pass leaves it verified
		entry, _ := s.Entry(0)
		if entry.State != domain.StateVerified {
			t.Errorf("state = %v, want verified", entry.State)
		}
		if entry.Record.Describe != "sunset over water" {
			t.Errorf("Describe = %q, annotation was lost in the refresh", entry.Record.Describe)
		}

		// the sidecar on disk now matches the file
		rec := readRecord(t, filepath.Join(dir, "pic.json"))
		if rec.Hash != hash.Sum([]byte("fresh pixels")) {
			t.Errorf("stored hash = %s, want fingerprint of the current file", rec.Hash)
		}
		if rec.FileSize != int64(len("fresh pixels")) {
			t.Errorf("stored size = %d, want %d", rec.FileSize, len("fresh pixels"))
		}
		decoded, err := backup.Decode(rec.BackupData)
		if err != nil || string(decoded) != "fresh pixels" {
			t.Errorf("stored backup = %q (err %v), want fresh pixels", decoded, err)
		}
		if rec.Describe != "sunset over water" {
			t.Errorf("stored Describe = %q, want sunset over water", rec.Describe)
		}

		// annotated all the way through: resume stays on the last image
		if report.ResumeIndex != 0 {
			t.Errorf("ResumeIndex = %d, want 0", report.ResumeIndex)
		}
	})

	t.Run("backups off drops the stale payload", func(t *testing.T) {
		dir := fixture(t)
		settings := config.Default()
		settings.BackupMode = config.BackupModeOff
		s := newSession(t, settings)
		report := mustOpen(t, s, dir)

		if !reflect.DeepEqual(report.Changed, []string{"pic.png"}) {
			t.Fatalf("Changed = %v, want [pic.png]", report.Changed)
		}
		entry, _ := s.Entry(0)
		if entry.State != domain.StateVerified {
			t.Errorf("state = %v, want verified", entry.State)
		}

		// the old payload decodes to bytes the refreshed fingerprint and
		// size disown; keeping it would poison a later restore
		rec := readRecord(t, filepath.Join(dir, "pic.json"))
		if rec.BackupData != "" {
			t.Errorf("stored backup = %q, want none", rec.BackupData)
		}
		if rec.Hash != hash.Sum([]byte("fresh pixels")) {
			t.Errorf("stored hash = %s, want fingerprint of the current file", rec.Hash)
		}
		if rec.FileSize != int64(len("fresh pixels")) {
			t.Errorf("stored size = %d, want %d", rec.FileSize, len("fresh pixels"))
		}
		if rec.Describe != "sunset over water" {
			t.Errorf("stored Describe = %q, want sunset over water", rec.Describe)
		}
	})
}

func TestOpenMissingWithoutBackup(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "here.png", []byte("present bytes"))

	gone := recordFor("gone.png", []byte("lost bytes"))
	gone.Label = []string{"tree"}
	writeRecord(t, dir, gone)

	s := newSession(t, config.Default())
	report := mustOpen(t, s, dir)

	if !reflect.DeepEqual(report.Missing, []string{"gone.png"}) {
		t.Errorf("Missing = %v, want [gone.png]", report.Missing)
	}
	if len(report.RestoreFailed) != 0 {
		t.Errorf("RestoreFailed = %v, want none without a backup", report.RestoreFailed)
	}
	if report.Total != 1 {
		t.Errorf("Total = %d, want 1", report.Total)
	}
	if _, ok := s.Find("gone.png"); ok {
		t.Error("Find(gone.png) = true, missing images are not navigable")
	}

	// labels of missing records still count for the cache
	if !reflect.DeepEqual(s.Labels(), []string{"tree"}) {
		t.Errorf("Labels() = %v, want [tree]", s.Labels())
	}
	persisted, err := repository.NewLabelStore(testLogger()).Load(dir)
	if err != nil || !reflect.DeepEqual(persisted, []string{"tree"}) {
		t.Errorf("persisted labels = %v (err %v), want [tree]", persisted, err)
	}
}

func TestOpenRestoreFailures(t *testing.T) {
	run := func(t *testing.T, rec *domain.Record) *LoadReport {
		t.Helper()
		dir := t.TempDir()
		writeRecord(t, dir, rec)
		s := newSession(t, config.Default())
		report := mustOpen(t, s, dir)

		if len(report.RestoreFailed) != 1 {
			t.Fatalf("RestoreFailed = %v, want one entry", report.RestoreFailed)
		}
		if !reflect.DeepEqual(report.Missing, []string{rec.Filename}) {
			t.Errorf("Missing = %v, want [%s]", report.Missing, rec.Filename)
		}
		if _, err := os.Stat(filepath.Join(dir, rec.Filename)); !os.IsNotExist(err) {
			t.Error("a failed restore left a file behind")
		}
		if report.Total != 0 {
			t.Errorf("Total = %d, want 0", report.Total)
		}
		return report
	}

	t.Run("corrupt payload", func(t *testing.T) {
		rec := recordFor("bad.png", []byte("payload"))
		rec.BackupData = "%%% not base64 %%%"
		run(t, rec)
	})

	t.Run("fingerprint mismatch", func(t *testing.T) {
		rec := recordFor("bad.png", []byte("aaaaaaa"))
		rec.BackupData = backup.Encode([]byte("bbbbbbb"))
		run(t, rec)
	})

	t.Run("size mismatch", func(t *testing.T) {
		rec := recordFor("bad.png", []byte("abc"))
		rec.FileSize = 99
		rec.BackupData = backup.Encode([]byte("abc"))
		run(t, rec)
	})
}

func TestResumePosition(t *testing.T) {
	annotated := func(t *testing.T, dir, name string) {
		t.Helper()
		content := []byte(name + " bytes")
		writeFile(t, dir, name, content)
		rec := recordFor(name, content)
		rec.Describe = "done"
		writeRecord(t, dir, rec)
	}

	t.Run("stops at the first gap", func(t *testing.T) {
		dir := t.TempDir()
		annotated(t, dir, "a.png")
		writeFile(t, dir, "b.png", []byte("b bytes"))
		annotated(t, dir, "c.png")

		s := newSession(t, config.Default())
		report := mustOpen(t, s, dir)
		if report.ResumeIndex != 1 {
			t.Errorf("ResumeIndex = %d, want 1", report.ResumeIndex)
		}
		if cur := s.Current(); cur.Filename != "b.png" {
			t.Errorf("Current() = %s, want b.png", cur.Filename)
		}
	})

	t.Run("fully annotated lands on the last image", func(t *testing.T) {
		dir := t.TempDir()
		annotated(t, dir, "a.png")
		annotated(t, dir, "b.png")

		s := newSession(t, config.Default())
		report := mustOpen(t, s, dir)
		if report.ResumeIndex != 1 {
			t.Errorf("ResumeIndex = %d, want 1", report.ResumeIndex)
		}
	})

	t.Run("nothing annotated starts at the front", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "a.png", []byte("a"))
		writeFile(t, dir, "b.png", []byte("b"))

		s := newSession(t, config.Default())
		report := mustOpen(t, s, dir)
		if report.ResumeIndex != 0 {
			t.Errorf("ResumeIndex = %d, want 0", report.ResumeIndex)
		}
	})
}

func TestOpenLegacyAnnotations(t *testing.T) {
	fixture := func(t *testing.T) string {
		t.Helper()
		dir := t.TempDir()
		content := []byte("legacy bytes")
		writeFile(t, dir, "old.png", content)
		data, err := json.Marshal(map[string]string{hash.Sum(content): "an old note"})
		if err != nil {
			t.Fatal(err)
		}
		writeFile(t, dir, "labels.json", data)
		return dir
	}

	t.Run("compat mode attaches the text", func(t *testing.T) {
		dir := fixture(t)
		settings := config.Default()
		settings.CompatMode = true

		s := newSession(t, settings)
		report := mustOpen(t, s, dir)

		entry, _ := s.Entry(0)
		if entry.Record == nil || entry.Record.Describe != "an old note" {
			t.Fatalf("entry record = %+v, want the legacy text attached", entry.Record)
		}
		if entry.Record.Schema != domain.SchemaLegacy {
			t.Errorf("Schema = %v, want legacy", entry.Record.Schema)
		}
		if !entry.Annotated() {
			t.Error("Annotated() = false with legacy text attached")
		}
		// attached in memory only: no sidecar until an explicit save
		if _, err := os.Stat(filepath.Join(dir, "old.json")); !os.IsNotExist(err) {
			t.Error("legacy attach wrote a sidecar")
		}
		if report.ResumeIndex != 0 {
			t.Errorf("ResumeIndex = %d, want 0", report.ResumeIndex)
		}
	})

	t.Run("without compat mode the map is ignored", func(t *testing.T) {
		dir := fixture(t)
		s := newSession(t, config.Default())
		mustOpen(t, s, dir)

		entry, _ := s.Entry(0)
		if entry.Record != nil {
			t.Errorf("entry record = %+v, want nil", entry.Record)
		}
	})
}

func TestOpenCancelled(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.png", []byte("alpha"))

	s := newSession(t, config.Default())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Open(ctx, dir); err == nil {
		t.Fatal("Open() error = nil with a cancelled context")
	}
	if s.Dir() != "" {
		t.Errorf("Dir() = %s after a cancelled load, want empty", s.Dir())
	}

	// the session stays usable
	report := mustOpen(t, s, dir)
	if report.Total != 1 {
		t.Errorf("Total = %d, want 1", report.Total)
	}
}

func TestOpenRecoversInterruptedRename(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".stage.rename", []byte("alpha"))

	journal := map[string]any{
		"version":    1,
		"phase":      "staging",
		"dir":        dir,
		"created_at": "2026-01-02T15:04:05Z",
		"steps": []map[string]any{{
			"from_image": filepath.Join(dir, "a.png"),
			"temp":       filepath.Join(dir, ".stage.rename"),
			"to_image":   filepath.Join(dir, "IMG_000000.png"),
			"old_name":   "a.png",
			"new_name":   "IMG_000000.png",
		}},
	}
	data, err := json.Marshal(journal)
	if err != nil {
		t.Fatal(err)
	}
	writeFile(t, dir, ".labelflow-rename.json", data)

	s := newSession(t, config.Default())
	report := mustOpen(t, s, dir)

	if report.RolledBack != 1 {
		t.Errorf("RolledBack = %d, want 1", report.RolledBack)
	}
	if _, ok := s.Find("a.png"); !ok {
		t.Error("a.png not restored before the load")
	}
	if rename.HasJournal(dir) {
		t.Error("journal still present after recovery")
	}
}

func TestAnnotateAutoSave(t *testing.T) {
	dir := t.TempDir()
	alpha := []byte("alpha bytes")
	writeFile(t, dir, "a.png", alpha)
	writeFile(t, dir, "b.png", []byte("bravo bytes"))

	s := newSession(t, config.Default())

	if err := s.Annotate(0, "x", nil); !errors.Is(err, ErrNoDirectory) {
		t.Fatalf("Annotate() before Open error = %v, want ErrNoDirectory", err)
	}
	mustOpen(t, s, dir)
	if err := s.Annotate(5, "x", nil); err == nil {
		t.Fatal("Annotate(5) error = nil, want out of range")
	}

	if err := s.Annotate(0, "a dog by the fence", []string{"dog", "", "outdoor", "dog"}); err != nil {
		t.Fatalf("Annotate() error = %v", err)
	}

	rec := readRecord(t, filepath.Join(dir, "a.json"))
	if rec.Describe != "a dog by the fence" {
		t.Errorf("Describe = %q", rec.Describe)
	}
	if !reflect.DeepEqual(rec.Label, []string{"dog", "outdoor"}) {
		t.Errorf("Label = %v, want deduplicated [dog outdoor]", rec.Label)
	}
	if rec.Hash != hash.Sum(alpha) || rec.FileSize != int64(len(alpha)) {
		t.Errorf("integrity fields = %s/%d, want the verified ones", rec.Hash, rec.FileSize)
	}
	decoded, err := backup.Decode(rec.BackupData)
	if err != nil || string(decoded) != string(alpha) {
		t.Errorf("backup = %q (err %v), want the staged payload", decoded, err)
	}

	if !reflect.DeepEqual(s.Labels(), []string{"dog", "outdoor"}) {
		t.Errorf("Labels() = %v, want [dog outdoor]", s.Labels())
	}
	persisted, err := repository.NewLabelStore(testLogger()).Load(dir)
	if err != nil || !reflect.DeepEqual(persisted, []string{"dog", "outdoor"}) {
		t.Errorf("persisted labels = %v (err %v)", persisted, err)
	}

	t.Run("empty annotations are not saved", func(t *testing.T) {
		if err := s.Annotate(1, "   ", nil); err != nil {
			t.Fatalf("Annotate() error = %v", err)
		}
		if _, err := os.Stat(filepath.Join(dir, "b.json")); !os.IsNotExist(err) {
			t.Error("a contentless record was written")
		}
	})

	t.Run("clearing an existing record keeps the sidecar", func(t *testing.T) {
		if err := s.Annotate(0, "", nil); err != nil {
			t.Fatalf("Annotate() error = %v", err)
		}
		rec := readRecord(t, filepath.Join(dir, "a.json"))
		if rec.Describe != "" || len(rec.Label) != 0 {
			t.Errorf("cleared record = %q %v, want empty", rec.Describe, rec.Label)
		}
	})
}

func TestAnnotateManualMode(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.png", []byte("alpha"))
	writeFile(t, dir, "b.png", []byte("bravo"))

	settings := config.Default()
	settings.SaveMode = config.SaveModeManual
	s := newSession(t, settings)
	mustOpen(t, s, dir)

	if err := s.Annotate(0, "first pass", nil); err != nil {
		t.Fatalf("Annotate() error = %v", err)
	}
	if s.UnsavedCount() != 1 {
		t.Fatalf("UnsavedCount() = %d, want 1", s.UnsavedCount())
	}
	if _, err := os.Stat(filepath.Join(dir, "a.json")); !os.IsNotExist(err) {
		t.Error("manual mode wrote a sidecar before Flush")
	}
	entry, _ := s.Entry(0)
	if entry.Record == nil || entry.Record.Describe != "first pass" {
		t.Error("pending edit not visible on the entry")
	}

	if _, err := s.Open(context.Background(), t.TempDir()); !errors.Is(err, ErrUnsavedAnnotations) {
		t.Errorf("Open() error = %v, want ErrUnsavedAnnotations", err)
	}
	if _, err := s.RenameAll(true); !errors.Is(err, ErrUnsavedAnnotations) {
		t.Errorf("RenameAll() error = %v, want ErrUnsavedAnnotations", err)
	}

	// editing the same image again folds into the same pending record
	if err := s.Annotate(0, "second pass", nil); err != nil {
		t.Fatalf("Annotate() error = %v", err)
	}
	if s.UnsavedCount() != 1 {
		t.Errorf("UnsavedCount() = %d after re-edit, want 1", s.UnsavedCount())
	}

	written, err := s.Flush()
	if err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if written != 1 {
		t.Errorf("Flush() = %d, want 1", written)
	}
	if s.UnsavedCount() != 0 {
		t.Errorf("UnsavedCount() = %d after Flush, want 0", s.UnsavedCount())
	}
	rec := readRecord(t, filepath.Join(dir, "a.json"))
	if rec.Describe != "second pass" {
		t.Errorf("flushed Describe = %q, want second pass", rec.Describe)
	}

	t.Run("discard restores the loaded record", func(t *testing.T) {
		if err := s.Annotate(1, "temp note", nil); err != nil {
			t.Fatalf("Annotate() error = %v", err)
		}
		if dropped := s.Discard(); dropped != 1 {
			t.Errorf("Discard() = %d, want 1", dropped)
		}
		entry, _ := s.Entry(1)
		if entry.Record != nil {
			t.Errorf("entry record = %+v after Discard, want nil", entry.Record)
		}
		if _, err := os.Stat(filepath.Join(dir, "b.json")); !os.IsNotExist(err) {
			t.Error("discarded edit reached the disk")
		}
	})
}

func TestRenameAll(t *testing.T) {
	t.Run("requires an open directory", func(t *testing.T) {
		s := newSession(t, config.Default())
		if _, err := s.RenameAll(true); !errors.Is(err, ErrNoDirectory) {
			t.Errorf("RenameAll() error = %v, want ErrNoDirectory", err)
		}
	})

	dir := t.TempDir()
	writeFile(t, dir, "banana.png", []byte("yellow"))
	writeFile(t, dir, "apple.png", []byte("red"))
	rec := recordFor("banana.png", []byte("yellow"))
	rec.Describe = "a banana"
	writeRecord(t, dir, rec)

	s := newSession(t, config.Default())
	mustOpen(t, s, dir)

	if _, err := s.RenameAll(false); !errors.Is(err, rename.ErrNotConfirmed) {
		t.Fatalf("RenameAll(false) error = %v, want ErrNotConfirmed", err)
	}

	result, err := s.RenameAll(true)
	if err != nil {
		t.Fatalf("RenameAll(true) error = %v", err)
	}
	if result.Images != 2 || result.Records != 1 {
		t.Errorf("result = %d images %d records, want 2 and 1", result.Images, result.Records)
	}
	wantMapping := map[string]string{
		"apple.png":  "IMG_000000.png",
		"banana.png": "IMG_000001.png",
	}
	if !reflect.DeepEqual(result.Mapping, wantMapping) {
		t.Errorf("Mapping = %v, want %v", result.Mapping, wantMapping)
	}

	for name, content := range map[string]string{
		"IMG_000000.png": "red",
		"IMG_000001.png": "yellow",
	} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil || string(data) != content {
			t.Errorf("%s = %q (err %v), want %q", name, data, err, content)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "banana.json")); !os.IsNotExist(err) {
		t.Error("old sidecar still present")
	}
	moved := readRecord(t, filepath.Join(dir, "IMG_000001.json"))
	if moved.Filename != "IMG_000001.png" || moved.Describe != "a banana" {
		t.Errorf("moved record = %s %q", moved.Filename, moved.Describe)
	}

	entries := s.Entries()
	if entries[0].Filename != "IMG_000000.png" || entries[1].Filename != "IMG_000001.png" {
		t.Errorf("entries = [%s %s], want canonical order", entries[0].Filename, entries[1].Filename)
	}
	if entries[1].Record.Filename != "IMG_000001.png" {
		t.Errorf("record filename = %s, want IMG_000001.png", entries[1].Record.Filename)
	}
	if _, ok := s.Find("banana.png"); ok {
		t.Error("Find(banana.png) = true after the rename")
	}
	if cur := s.Current(); cur.Filename != "IMG_000000.png" {
		t.Errorf("Current() = %s, cursor drifted across the rename", cur.Filename)
	}
	if s.Resume() != 0 {
		t.Errorf("Resume() = %d, want 0", s.Resume())
	}
}

func TestNavigation(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.png", "b.png", "c.png"} {
		writeFile(t, dir, name, []byte(name))
	}

	s := newSession(t, config.Default())
	mustOpen(t, s, dir)

	if s.CurrentIndex() != 0 {
		t.Fatalf("CurrentIndex() = %d, want 0", s.CurrentIndex())
	}
	if !s.Next() || !s.Next() {
		t.Fatal("Next() = false inside the working set")
	}
	if s.Next() {
		t.Error("Next() = true at the end")
	}
	if !s.Prev() {
		t.Error("Prev() = false at index 2")
	}
	if cur := s.Current(); cur.Filename != "b.png" {
		t.Errorf("Current() = %s, want b.png", cur.Filename)
	}
	if s.JumpTo(5) {
		t.Error("JumpTo(5) = true, want false")
	}
	if !s.JumpTo(0) {
		t.Error("JumpTo(0) = false, want true")
	}
	if s.Prev() {
		t.Error("Prev() = true at the front")
	}

	if _, ok := s.Entry(3); ok {
		t.Error("Entry(3) ok = true, want false")
	}
	if idx, ok := s.Find("c.png"); !ok || idx != 2 {
		t.Errorf("Find(c.png) = %d, %v, want 2, true", idx, ok)
	}
}

func TestAddLabel(t *testing.T) {
	s := newSession(t, config.Default())
	if _, err := s.AddLabel("sky"); !errors.Is(err, ErrNoDirectory) {
		t.Fatalf("AddLabel() before Open error = %v, want ErrNoDirectory", err)
	}

	dir := t.TempDir()
	writeFile(t, dir, "a.png", []byte("alpha"))
	mustOpen(t, s, dir)

	added, err := s.AddLabel("sky")
	if err != nil || !added {
		t.Fatalf("AddLabel(sky) = %v, %v, want true, nil", added, err)
	}
	if added, _ := s.AddLabel("sky"); added {
		t.Error("AddLabel(sky) twice = true, want false")
	}

	if label, ok := s.LabelAt(0); !ok || label != "sky" {
		t.Errorf("LabelAt(0) = %q, %v, want sky, true", label, ok)
	}
	persisted, err := repository.NewLabelStore(testLogger()).Load(dir)
	if err != nil || !reflect.DeepEqual(persisted, []string{"sky"}) {
		t.Errorf("persisted labels = %v (err %v), want [sky]", persisted, err)
	}
}
