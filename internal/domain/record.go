package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// Schema identifies which sidecar layout a record file parsed as.
type Schema int

const (
	// SchemaCurrent is the V0.0.3+ layout: a describe text plus a label array.
	SchemaCurrent Schema = iota
	// SchemaLegacy is the V0.0.2 layout: a single annotation field and an
	// optional labels array. Only accepted in compatibility mode.
	SchemaLegacy
)

func (s Schema) String() string {
	if s == SchemaLegacy {
		return "legacy"
	}
	return "current"
}

// Record is the annotation sidecar for a single image. One record file
// (image stem + ".json") lives next to the image, or under the configured
// save path when one is set.
type Record struct {
	Filename   string   `json:"filename"`
	Hash       string   `json:"hash"`
	FileSize   int64    `json:"file_size"`
	BackupData string   `json:"base64_data"`
	Describe   string   `json:"describe"`
	Label      []string `json:"label"`

	// Schema tells which layout the sidecar parsed as. Records created in
	// memory are always current.
	Schema Schema `json:"-"`

	// Path is the sidecar location on disk, empty until first persisted.
	Path string `json:"-"`
}

var validHash = regexp.MustCompile(`^[0-9a-f]{64}$`)

// ValidHash reports whether s looks like a lowercase SHA-256 hex digest.
func ValidHash(s string) bool {
	return validHash.MatchString(s)
}

// Annotated reports whether the record carries any annotation content.
// Whitespace-only describe text does not count.
func (r *Record) Annotated() bool {
	return strings.TrimSpace(r.Describe) != "" || len(r.Label) > 0
}

// Validate checks the structural invariants every record must hold before
// it is accepted into a working set or written to disk.
func (r *Record) Validate() error {
	if r.Filename == "" {
		return fmt.Errorf("record has no filename")
	}
	if !ValidHash(r.Hash) {
		return fmt.Errorf("record %s: hash %q is not a sha256 hex digest", r.Filename, r.Hash)
	}
	if r.FileSize < 0 {
		return fmt.Errorf("record %s: negative file size %d", r.Filename, r.FileSize)
	}
	return nil
}

// Clone returns a deep copy, so pending edits can be discarded without
// touching the loaded record.
func (r *Record) Clone() *Record {
	out := *r
	if r.Label != nil {
		out.Label = append([]string(nil), r.Label...)
	}
	return &out
}
