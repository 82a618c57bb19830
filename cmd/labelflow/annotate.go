/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// annotateCmd represents the annotate command
var annotateCmd = &cobra.Command{
	Use:   "annotate <directory> <image>",
	Short: "Set the describe text and labels of one image",
	Long: strings.TrimSpace(`
Annotate writes the describe text and labels of an image into its record
file, stamped with the verified fingerprint, size and (when enabled) an
embedded backup of the image. Passing neither --describe nor --label
clears the annotation.
    `),
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		describe, _ := cmd.Flags().GetString("describe")
		labels, _ := cmd.Flags().GetStringSlice("label")

		s, _, err := openDir(cmd, args[0])
		if err != nil {
			return err
		}
		defer s.Close()

		index, ok := s.Find(args[1])
		if !ok {
			return fmt.Errorf("image %s not found in %s", args[1], args[0])
		}
		if err := s.Annotate(index, describe, labels); err != nil {
			return err
		}
		// one-shot invocation: manual save mode still has to land on disk
		if _, err := s.Flush(); err != nil {
			return err
		}

		if describe == "" && len(labels) == 0 {
			fmt.Printf("cleared %s\n", args[1])
		} else {
			fmt.Printf("annotated %s\n", args[1])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(annotateCmd)

	annotateCmd.Flags().StringP("describe", "d", "", "Describe text for the image")
	annotateCmd.Flags().StringSliceP("label", "l", nil, "Label to attach, repeatable")
}
