/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// renameCmd represents the rename command
var renameCmd = &cobra.Command{
	Use:   "rename <directory>",
	Short: "Rename every image to the canonical IMG_ numbering",
	Long: strings.TrimSpace(`
Rename assigns IMG_000000-style names to every image in the directory, in
the current sorted order, moving record files along with their images.
The batch lands as a whole or not at all. Without --confirm only the
planned moves are shown.
    `),
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, _, err := openDir(cmd, args[0])
		if err != nil {
			return err
		}
		defer s.Close()

		plan, err := s.PlanRename()
		if err != nil {
			return err
		}
		if len(plan.Steps) == 0 {
			fmt.Println("All image names are already canonical")
			return nil
		}
		for _, step := range plan.Steps {
			fmt.Printf("        %s -> %s\n", step.From, step.To)
		}

		confirmed, _ := cmd.Flags().GetBool("confirm")
		if !confirmed {
			fmt.Printf("\n%d of %d images would change, run again with --confirm to apply\n",
				len(plan.Steps), plan.Total)
			return nil
		}

		result, err := s.RenameAll(true)
		if err != nil {
			return err
		}
		fmt.Printf("\nRenamed %d images and %d records\n", result.Images, result.Records)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(renameCmd)

	renameCmd.Flags().Bool("confirm", false, "Apply the batch instead of only showing it")
}
