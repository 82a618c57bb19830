package repository

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/lewtec/labelflow/internal/domain"
)

// labelCacheFile persists the ordered list of labels seen in a directory,
// so label shortcuts keep their positions across sessions.
const labelCacheFile = "labels_cache.json"

type labelCache struct {
	AvailableLabels []string `json:"available_labels"`
}

// LabelStore persists the label cache of a working directory.
type LabelStore struct {
	Logger *slog.Logger
}

// NewLabelStore creates a label store. A nil logger means slog.Default.
func NewLabelStore(logger *slog.Logger) *LabelStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &LabelStore{Logger: logger}
}

// Load reads the persisted label list of dir. An absent cache file means
// no labels, not an error.
func (s *LabelStore) Load(dir string) ([]string, error) {
	data, err := os.ReadFile(filepath.Join(dir, labelCacheFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cache labelCache
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil, fmt.Errorf("while decoding %s: %w", labelCacheFile, err)
	}
	return cache.AvailableLabels, nil
}

// Save rewrites the label list of dir atomically.
func (s *LabelStore) Save(dir string, labels []string) error {
	if labels == nil {
		labels = []string{}
	}
	data, err := json.MarshalIndent(&labelCache{AvailableLabels: labels}, "", "  ")
	if err != nil {
		return fmt.Errorf("while encoding label cache: %w", err)
	}
	if err := WriteFileAtomic(filepath.Join(dir, labelCacheFile), data); err != nil {
		return fmt.Errorf("while writing label cache: %w", err)
	}
	s.Logger.Debug("label cache saved", "dir", dir, "labels", len(labels))
	return nil
}

// Verify that LabelStore implements domain.LabelStore
var _ domain.LabelStore = (*LabelStore)(nil)
