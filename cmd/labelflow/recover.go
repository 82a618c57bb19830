/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lewtec/labelflow/internal/rename"
)

// recoverCmd represents the recover command
var recoverCmd = &cobra.Command{
	Use:   "recover <directory>",
	Short: "Roll back an interrupted rename batch",
	Long: `Roll an interrupted rename batch back to its original names using the
journal left in the directory. Opening the directory does this
automatically; recover exists for scripted cleanups.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		moved, err := rename.Recover(args[0], newLogger(cmd))
		if err != nil {
			return err
		}
		if moved == 0 {
			fmt.Println("Nothing to recover")
		} else {
			fmt.Printf("Moved %d files back to their previous names\n", moved)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(recoverCmd)
}
