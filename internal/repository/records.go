package repository

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/lewtec/labelflow/internal/domain"
)

// Files that are never parsed as image records.
var reservedFiles = map[string]bool{
	"labels.json":       true,
	"labels_cache.json": true,
	"keys_setting.json": true,
}

// legacyLabelsFile is the V0.0.2 hash-to-annotation map.
const legacyLabelsFile = "labels.json"

// RecordStore persists one JSON sidecar per annotated image.
type RecordStore struct {
	// Compat accepts V0.0.2 sidecar layouts next to current ones.
	Compat bool

	// SavePath redirects new sidecar writes into a separate directory.
	// Load scans it in addition to the image directory, and its copies win
	// when both hold a sidecar of the same name.
	SavePath string

	Logger *slog.Logger
}

// NewRecordStore creates a record store. A nil logger means slog.Default.
func NewRecordStore(compat bool, savePath string, logger *slog.Logger) *RecordStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecordStore{Compat: compat, SavePath: savePath, Logger: logger}
}

// SidecarName returns the record filename for an image filename.
func SidecarName(imageFilename string) string {
	stem := strings.TrimSuffix(imageFilename, filepath.Ext(imageFilename))
	return stem + ".json"
}

func reserved(name string) bool {
	return reservedFiles[name]
}

// Load reads every sidecar of dir and of the save path override, skipping
// reserved files and dotfiles. Undecodable sidecars are reported back and
// left on disk untouched.
func (s *RecordStore) Load(dir string) ([]*domain.Record, []domain.ParseFailure, error) {
	var order []string
	byName := make(map[string]*domain.Record)
	var failures []domain.ParseFailure

	scan := func(scanDir string) error {
		entries, err := os.ReadDir(scanDir)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() || reserved(name) || strings.HasPrefix(name, ".") {
				continue
			}
			if !strings.EqualFold(filepath.Ext(name), ".json") {
				continue
			}
			path := filepath.Join(scanDir, name)
			rec, err := s.parse(path)
			if err != nil {
				s.Logger.Debug("skipping sidecar", "path", path, "err", err)
				failures = append(failures, domain.ParseFailure{Path: path, Err: err})
				continue
			}
			if _, seen := byName[name]; !seen {
				order = append(order, name)
			}
			byName[name] = rec
		}
		return nil
	}

	if err := scan(dir); err != nil {
		return nil, nil, fmt.Errorf("while scanning %s for records: %w", dir, err)
	}
	if override := s.overrideDir(dir); override != "" {
		if err := scan(override); err != nil {
			return nil, nil, fmt.Errorf("while scanning save path %s for records: %w", override, err)
		}
	}

	records := make([]*domain.Record, 0, len(order))
	for _, name := range order {
		records = append(records, byName[name])
	}
	return records, failures, nil
}

// parse decodes one sidecar. The current layout is tried strictly first,
// so a legacy file with annotation or labels keys falls through to the
// legacy decoder when compatibility mode is on.
func (s *RecordStore) parse(path string) (*domain.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var rec domain.Record
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	strictErr := dec.Decode(&rec)
	if strictErr == nil {
		rec.Schema = domain.SchemaCurrent
	} else {
		if !s.Compat {
			return nil, strictErr
		}
		legacy, err := parseLegacy(data)
		if err != nil {
			return nil, fmt.Errorf("not a current record (%v) nor a legacy one: %w", strictErr, err)
		}
		rec = *legacy
	}

	if err := rec.Validate(); err != nil {
		return nil, err
	}
	rec.Path = path
	return &rec, nil
}

// legacyRecord is the V0.0.2 layout. Files written by old versions carry
// an annotation text and sometimes a labels array; files upgraded in
// compatibility mode carry both layouts side by side.
type legacyRecord struct {
	Filename   string   `json:"filename"`
	Hash       string   `json:"hash"`
	FileSize   int64    `json:"file_size"`
	BackupData string   `json:"base64_data"`
	Describe   string   `json:"describe"`
	Label      []string `json:"label"`
	Annotation string   `json:"annotation"`
	Labels     []string `json:"labels"`
}

func parseLegacy(data []byte) (*domain.Record, error) {
	var legacy legacyRecord
	if err := json.Unmarshal(data, &legacy); err != nil {
		return nil, err
	}
	rec := domain.Record{
		Filename:   legacy.Filename,
		Hash:       legacy.Hash,
		FileSize:   legacy.FileSize,
		BackupData: legacy.BackupData,
		Describe:   legacy.Describe,
		Label:      legacy.Label,
		Schema:     domain.SchemaLegacy,
	}
	if rec.Describe == "" {
		rec.Describe = legacy.Annotation
	}
	if len(rec.Label) == 0 {
		rec.Label = legacy.Labels
	}
	return &rec, nil
}

// LegacyAnnotations reads the V0.0.2 labels.json map of dir. Outside
// compatibility mode, or when the file is absent, the map is empty.
func (s *RecordStore) LegacyAnnotations(dir string) (map[string]string, error) {
	if !s.Compat {
		return nil, nil
	}
	data, err := os.ReadFile(filepath.Join(dir, legacyLabelsFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out map[string]string
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("while decoding %s: %w", legacyLabelsFile, err)
	}
	return out, nil
}

// Save persists rec when it has annotation content. Empty records are
// skipped so directories do not fill with contentless sidecars.
func (s *RecordStore) Save(dir string, rec *domain.Record) (bool, error) {
	if !rec.Annotated() {
		return false, nil
	}
	if err := s.Write(dir, rec); err != nil {
		return false, err
	}
	return true, nil
}

// Write persists rec regardless of content. Reconciliation uses it to
// refresh integrity fields of an existing sidecar.
func (s *RecordStore) Write(dir string, rec *domain.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	name := SidecarName(rec.Filename)
	if reserved(name) {
		return fmt.Errorf("record name %s is reserved", name)
	}

	path := rec.Path
	if path == "" {
		targetDir := dir
		if override := s.overrideDir(dir); override != "" {
			targetDir = override
		}
		path = filepath.Join(targetDir, name)
	}

	out := *rec
	if out.Label == nil {
		out.Label = []string{}
	}
	data, err := json.MarshalIndent(&out, "", "  ")
	if err != nil {
		return fmt.Errorf("while encoding record %s: %w", rec.Filename, err)
	}
	if err := WriteFileAtomic(path, data); err != nil {
		return fmt.Errorf("while writing record %s: %w", rec.Filename, err)
	}
	rec.Path = path
	return nil
}

// overrideDir returns the usable save path override, or empty when none
// applies. A configured path that does not exist falls back silently, the
// same way records fall back to the image directory.
func (s *RecordStore) overrideDir(dir string) string {
	if s.SavePath == "" || s.SavePath == dir {
		return ""
	}
	info, err := os.Stat(s.SavePath)
	if err != nil || !info.IsDir() {
		return ""
	}
	return s.SavePath
}

// WriteFileAtomic writes data under a temporary name in the target
// directory, then renames it over path. Readers never observe a partial
// file.
func WriteFileAtomic(path string, data []byte) error {
	tempPath := filepath.Join(filepath.Dir(path), fmt.Sprintf(".%s.tmp", uuid.New()))
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return err
	}
	return nil
}

// Verify that RecordStore implements domain.RecordStore
var _ domain.RecordStore = (*RecordStore)(nil)
