/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lewtec/labelflow/internal/repository"
	"github.com/lewtec/labelflow/internal/session"
)

// labelsCmd represents the labels command
var labelsCmd = &cobra.Command{
	Use:   "labels <directory>",
	Short: "List the label cache of a directory",
	Long: `List every label ever used in a directory, with its selection slot.
Slots are stable: a label keeps its number for as long as it is in the cache.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := repository.NewLabelStore(newLogger(cmd))
		labels, err := store.Load(args[0])
		if err != nil {
			return err
		}

		if add, _ := cmd.Flags().GetStringSlice("add"); len(add) > 0 {
			cache := session.NewLabelCache(labels)
			cache.Observe(add)
			if cache.Dirty() {
				if err := store.Save(args[0], cache.Labels()); err != nil {
					return err
				}
			}
			labels = cache.Labels()
		}

		out := cmd.OutOrStdout()
		if len(labels) == 0 {
			fmt.Fprintln(out, "No labels recorded yet")
			return nil
		}
		// slots are the same zero-based positions the engine answers to
		for i, label := range labels {
			fmt.Fprintf(out, "%3d  %s\n", i, label)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(labelsCmd)

	labelsCmd.Flags().StringSlice("add", nil, "Register a label without annotating an image, repeatable")
}
