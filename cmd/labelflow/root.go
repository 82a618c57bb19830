/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lewtec/labelflow/internal/config"
	"github.com/lewtec/labelflow/internal/session"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "labelflow",
	Short: "Keep image directories and their annotation records in sync",
	Long: strings.TrimSpace(`
Labelflow manages directories of images annotated with JSON record files.
It verifies every image against its stored fingerprint, restores deleted
images from backups embedded in the records, renames batches to canonical
names and exports the annotations into a SQLite dataset.
    `),
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "Settings file (YAML)")
	flags.String("save-path", "", "Directory that receives record files instead of the image directory")
	flags.String("save-mode", "", "'auto' saves every edit, 'manual' keeps edits in memory until an explicit save")
	flags.Bool("compat", false, "Accept V0.0.2 record layouts and the legacy labels.json map")
	flags.String("backup-mode", "", "'auto' embeds image backups in records, 'off' disables them")
	flags.Int("backup-limit", 0, "Size limit for embedded backups, in megabytes")
	flags.UintP("jobs", "j", 0, "Amount of concurrent hash workers, 0 means one per CPU")
	flags.BoolP("verbose", "v", false, "Log engine internals to stderr")
}

// loadSettings merges the optional settings file with explicit flags.
// Flags win over the file, the file wins over the defaults.
func loadSettings(cmd *cobra.Command) (config.Settings, error) {
	flags := cmd.Flags()
	settings := config.Default()

	if path, _ := flags.GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return settings, fmt.Errorf("while loading settings %s: %w", path, err)
		}
		settings = *loaded
	}
	if flags.Changed("save-mode") {
		settings.SaveMode, _ = flags.GetString("save-mode")
	}
	if flags.Changed("save-path") {
		settings.SavePath, _ = flags.GetString("save-path")
	}
	if flags.Changed("compat") {
		settings.CompatMode, _ = flags.GetBool("compat")
	}
	if flags.Changed("backup-mode") {
		settings.BackupMode, _ = flags.GetString("backup-mode")
	}
	if flags.Changed("backup-limit") {
		settings.BackupLimitMB, _ = flags.GetInt("backup-limit")
	}
	if flags.Changed("jobs") {
		settings.Jobs, _ = flags.GetUint("jobs")
	}

	if err := settings.Validate(); err != nil {
		return settings, err
	}
	return settings, nil
}

func newLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// openDir loads a directory into a fresh session, with a progress line on
// stderr while the engine hashes the images.
func openDir(cmd *cobra.Command, dir string) (*session.Session, *session.LoadReport, error) {
	settings, err := loadSettings(cmd)
	if err != nil {
		return nil, nil, err
	}
	s := session.New(settings, newLogger(cmd))
	s.Progress = func(done, total int, name string) {
		fmt.Fprintf(os.Stderr, "\rchecking %d/%d  %-40s", done, total, name)
		if done == total {
			fmt.Fprintf(os.Stderr, "\r%-60s\r", "")
		}
	}
	report, err := s.Open(cmd.Context(), dir)
	if err != nil {
		s.Close()
		return nil, nil, err
	}
	return s, report, nil
}
