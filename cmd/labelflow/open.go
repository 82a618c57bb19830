/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/lewtec/labelflow/internal/session"
)

// openCmd represents the open command
var openCmd = &cobra.Command{
	Use:   "open <directory>",
	Short: "Load a directory and reconcile images with their records",
	Long: strings.TrimSpace(`
Open scans a directory, verifies every image against its record, restores
deleted images from embedded backups and reports where annotation work
should resume.
    `),
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, report, err := openDir(cmd, args[0])
		if err != nil {
			return err
		}
		defer s.Close()
		printReport(s, report)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(openCmd)
}

func printReport(s *session.Session, report *session.LoadReport) {
	fmt.Printf("Opened %s: %d images\n", report.Dir, report.Total)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)
	cyan := color.New(color.FgCyan)

	if report.RolledBack > 0 {
		yellow.Printf("Rolled back %d files from an interrupted rename\n", report.RolledBack)
	}

	if len(report.New)+len(report.Changed)+len(report.Restored)+len(report.Missing) > 0 {
		fmt.Println()
	}
	for _, name := range report.New {
		green.Printf("        new:       %s\n", name)
	}
	for _, name := range report.Changed {
		yellow.Printf("        changed:   %s\n", name)
	}
	for _, name := range report.Restored {
		cyan.Printf("        restored:  %s\n", name)
	}
	for _, name := range report.Missing {
		red.Printf("        missing:   %s\n", name)
	}
	for _, failure := range report.RestoreFailed {
		red.Printf("        failed:    %s (%v)\n", failure.Filename, failure.Err)
	}
	for _, failure := range report.ParseFailures {
		red.Printf("        skipped:   %s (%v)\n", filepath.Base(failure.Path), failure.Err)
	}
	for _, failure := range report.IOFailures {
		red.Printf("        unreadable: %s (%v)\n", failure.Filename, failure.Err)
	}

	fmt.Println()
	parts := []string{fmt.Sprintf("%d verified", len(report.Verified))}
	if n := len(report.New); n > 0 {
		parts = append(parts, fmt.Sprintf("%d new", n))
	}
	if n := len(report.Changed); n > 0 {
		parts = append(parts, fmt.Sprintf("%d changed", n))
	}
	if n := len(report.Restored); n > 0 {
		parts = append(parts, fmt.Sprintf("%d restored", n))
	}
	if n := len(report.Missing); n > 0 {
		parts = append(parts, fmt.Sprintf("%d missing", n))
	}
	fmt.Println(strings.Join(parts, ", "))

	if entry, ok := s.Entry(report.ResumeIndex); ok {
		fmt.Printf("Resume at %d: %s\n", report.ResumeIndex, entry.Filename)
	}
	if len(report.Labels) > 0 {
		fmt.Printf("Labels: %s\n", strings.Join(report.Labels, ", "))
	}
}
