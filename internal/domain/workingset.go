package domain

// FileState classifies an entry after reconciliation.
type FileState int

const (
	// StatePending means the entry has not been reconciled yet.
	StatePending FileState = iota
	// StateNew is an image on disk with no record.
	StateNew
	// StateVerified means the disk bytes hash to the recorded fingerprint.
	StateVerified
	// StateChanged means the disk bytes hash differently than recorded.
	// Disk is ground truth: the record is refreshed and rewritten, and the
	// entry comes out verified unless that write failed.
	StateChanged
	// StateMissing is a record whose image file is gone and could not be
	// restored from backup data.
	StateMissing
	// StateRestored means the image was rewritten from its backup data and
	// re-verified against the record.
	StateRestored
)

func (s FileState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateVerified:
		return "verified"
	case StateChanged:
		return "changed"
	case StateMissing:
		return "missing"
	case StateRestored:
		return "restored"
	default:
		return "pending"
	}
}

// Entry is one slot of a working set: an image file (when present) paired
// with its annotation record (when one exists).
type Entry struct {
	Filename string
	Path     string
	Size     int64
	Hash     string
	State    FileState
	Record   *Record

	// Backup is the base64 payload computed during the load for images that
	// have no record yet. It becomes the record's backup on first save.
	Backup string
}

// Annotated reports whether the entry carries annotation content.
func (e *Entry) Annotated() bool {
	return e.Record != nil && e.Record.Annotated()
}

// ParseFailure reports a sidecar file that could not be decoded as a
// record. The file is skipped and left on disk untouched.
type ParseFailure struct {
	Path string
	Err  error
}

// RestoreFailure reports a missing image whose backup data could not be
// turned back into a file.
type RestoreFailure struct {
	Filename string
	Err      error
}

// FileFailure reports a per-file IO error during a directory load. The
// load keeps going; the caller decides what to do about the file.
type FileFailure struct {
	Filename string
	Err      error
}

// ReconcileReport summarizes what opening a directory found.
type ReconcileReport struct {
	Verified      []string
	New           []string
	Changed       []string
	Restored      []string
	Missing       []string
	RestoreFailed []RestoreFailure
	ParseFailures []ParseFailure
	IOFailures    []FileFailure
}

// RecordStore defines the interface for sidecar record persistence.
type RecordStore interface {
	// Load reads every sidecar of dir, skipping reserved files. Files that
	// do not decode as records are reported, not fatal.
	Load(dir string) ([]*Record, []ParseFailure, error)

	// LegacyAnnotations reads the V0.0.2 labels.json hash-to-annotation map
	// when compatibility mode is on. Absent file means an empty map.
	LegacyAnnotations(dir string) (map[string]string, error)

	// Save persists rec atomically, skipping records with no annotation
	// content. It reports whether a file was written.
	Save(dir string, rec *Record) (bool, error)

	// Write persists rec atomically regardless of content. Used when a
	// record needs its integrity fields refreshed from disk.
	Write(dir string, rec *Record) error
}

// LabelStore defines the interface for label cache persistence.
type LabelStore interface {
	// Load reads the persisted label list. Absent file means no labels.
	Load(dir string) ([]string, error)

	// Save rewrites the persisted label list atomically.
	Save(dir string, labels []string) error
}
