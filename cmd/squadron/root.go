package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "squadron",
	Short: "AI squad coordination core",
	Long: `Squadron coordinates a squad of AI agent actors working on tasks.

A task execution moves through a fixed workflow (analyzing, planning,
delegated, in progress, reviewing, testing) driven by a transition table.
The delegation engine decides who on the squad should act, and squad
members talk over a message bus with an in-memory or NATS JetStream
backend.`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
