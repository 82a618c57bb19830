// Package config loads session settings from a YAML file.
package config

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Save modes. Auto writes a record right after each annotation edit,
// manual keeps edits in memory until an explicit save.
const (
	SaveModeAuto   = "auto"
	SaveModeManual = "manual"
)

// Backup modes. Auto embeds base64 payloads for files under the size
// limit, off never embeds.
const (
	BackupModeAuto = "auto"
	BackupModeOff  = "off"
)

// Settings holds everything the engine needs to open a directory.
type Settings struct {
	// SaveMode is auto or manual. Empty means auto.
	SaveMode string `yaml:"save_mode"`

	// SavePath redirects record writes into a separate directory. Empty
	// means records live next to their images.
	SavePath string `yaml:"save_path"`

	// CompatMode accepts V0.0.2 sidecar layouts and the legacy labels.json
	// annotation map.
	CompatMode bool `yaml:"compat_mode"`

	// BackupMode is auto or off. Empty means auto.
	BackupMode string `yaml:"backup_mode"`

	// BackupLimitMB caps the size of files that get an embedded backup.
	// Zero means the default, values outside 5..20 are clamped at use.
	BackupLimitMB int `yaml:"backup_size_limit_mb"`

	// Jobs is the number of hash workers. Zero means one per CPU.
	Jobs uint `yaml:"jobs"`
}

// Default returns the settings used when no config file is given.
func Default() Settings {
	return Settings{
		SaveMode:   SaveModeAuto,
		BackupMode: BackupModeAuto,
	}
}

// Load reads and validates a settings file.
func Load(filename string) (*Settings, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	var ret Settings
	err = yaml.Unmarshal(data, &ret)
	if err != nil {
		return nil, err
	}
	if err := ret.Validate(); err != nil {
		return nil, err
	}
	return &ret, nil
}

// Validate normalizes empty fields to their defaults and rejects values
// outside the recognized sets.
func (s *Settings) Validate() error {
	if s.SaveMode == "" {
		s.SaveMode = SaveModeAuto
	}
	if s.SaveMode != SaveModeAuto && s.SaveMode != SaveModeManual {
		return fmt.Errorf("save_mode %q is not %q or %q", s.SaveMode, SaveModeAuto, SaveModeManual)
	}
	if s.BackupMode == "" {
		s.BackupMode = BackupModeAuto
	}
	if s.BackupMode != BackupModeAuto && s.BackupMode != BackupModeOff {
		return fmt.Errorf("backup_mode %q is not %q or %q", s.BackupMode, BackupModeAuto, BackupModeOff)
	}
	if s.BackupLimitMB < 0 {
		return fmt.Errorf("backup_size_limit_mb must not be negative, got %d", s.BackupLimitMB)
	}
	return nil
}

// AutoSave reports whether edits are flushed to disk immediately.
func (s *Settings) AutoSave() bool {
	return s.SaveMode != SaveModeManual
}

// BackupEnabled reports whether records embed base64 payloads at all.
func (s *Settings) BackupEnabled() bool {
	return s.BackupMode != BackupModeOff
}
