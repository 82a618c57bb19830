/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lewtec/labelflow/internal/repository"
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export <directory>",
	Short: "Export annotation records into a SQLite dataset",
	Long: strings.TrimSpace(`
Export reconciles the directory and upserts every image that carries a
record into a SQLite database, one row per image plus one row per label,
keyed by the image fingerprint. Repeated exports update rows in place.
    `),
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, _ := cmd.Flags().GetString("database")
		if database == "" {
			database = filepath.Join(args[0], "dataset.db")
		}

		s, _, err := openDir(cmd, args[0])
		if err != nil {
			return err
		}
		defer s.Close()

		ds, err := repository.OpenDataset(database, newLogger(cmd))
		if err != nil {
			return err
		}
		defer ds.Close()
		if err := ds.Migrate(); err != nil {
			return err
		}

		exported, err := ds.Export(cmd.Context(), s.Entries())
		if err != nil {
			return err
		}
		fmt.Printf("Exported %d annotated images to %s\n", exported, database)

		if stats, _ := cmd.Flags().GetBool("stats"); stats {
			return printStats(cmd, ds)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().String("database", "", "Dataset file, defaults to dataset.db inside the directory")
	exportCmd.Flags().Bool("stats", false, "Print the per-label histogram after exporting")
}

func printStats(cmd *cobra.Command, ds *repository.DatasetStore) error {
	total, err := ds.CountImages(cmd.Context())
	if err != nil {
		return err
	}
	counts, err := ds.LabelCounts(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Printf("\n%d images in the dataset\n", total)
	for _, lc := range counts {
		fmt.Printf("%6d  %s\n", lc.Count, lc.Label)
	}
	return nil
}
