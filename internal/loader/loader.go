// Package loader enumerates image directories and runs the background
// hash and backup pipeline over them in bounded batches.
package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// EagerThreshold is the image count under which a directory is loaded
	// in a single batch.
	EagerThreshold = 100

	// DefaultBatchSize is the batch size for large directories.
	DefaultBatchSize = 100

	// MinBatchSize is the floor the planner never goes below, no matter
	// how large the files are.
	MinBatchSize = 20

	// MemoryCeiling is the advisory cap, in bytes, on raw buffers plus
	// in-flight encodings held by the pipeline.
	MemoryCeiling = 1 << 30

	// sampleSize is how many files the planner inspects to estimate the
	// average file size.
	sampleSize = 5
)

var supportedFormats = []string{".jpg", ".jpeg", ".png", ".bmp", ".tiff", ".tif"}

// Supported reports whether name has a recognized image extension. The
// check is case insensitive.
func Supported(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, supported := range supportedFormats {
		if ext == supported {
			return true
		}
	}
	return false
}

// File is one enumerated image.
type File struct {
	Name string
	Path string
	Size int64
}

// Scan lists the images of dir in lexicographic filename order. Dotfiles,
// subdirectories and unsupported extensions are skipped. Enumerating the
// same directory twice yields the same order.
func Scan(dir string) ([]File, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("while scanning %s: %w", dir, err)
	}
	var out []File
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !Supported(name) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// the file vanished between listing and stat
			continue
		}
		out = append(out, File{Name: name, Path: filepath.Join(dir, name), Size: info.Size()})
	}
	return out, nil
}

// Plan says how a directory gets loaded.
type Plan struct {
	Total     int
	BatchSize int
	Eager     bool
}

// PlanBatches sizes loading batches from a sample of file sizes. Small
// directories load eagerly in one batch; large ones are split so that the
// projected footprint of a batch stays under the memory ceiling.
func PlanBatches(files []File) Plan {
	total := len(files)
	if total == 0 {
		return Plan{}
	}
	if total < EagerThreshold {
		return Plan{Total: total, BatchSize: total, Eager: true}
	}

	var sampled int64
	for _, f := range files[:sampleSize] {
		sampled += f.Size
	}
	avg := sampled / sampleSize

	batch := DefaultBatchSize
	if avg > 0 && avg*DefaultBatchSize > MemoryCeiling {
		batch = int(MemoryCeiling / avg)
		if batch < MinBatchSize {
			batch = MinBatchSize
		}
	}
	return Plan{Total: total, BatchSize: batch}
}
