package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/parkerduff/squadron/internal/config"
	"github.com/parkerduff/squadron/internal/state"
	"github.com/parkerduff/squadron/internal/workflow"
	"github.com/parkerduff/squadron/pkg/models"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show task executions",
	Long:  `List task executions from the state store, newest first.`,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfg.Store.Path); os.IsNotExist(err) {
		fmt.Println("No executions yet. Run 'squadron run <task>' to start.")
		return nil
	}

	db, err := state.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate state store: %w", err)
	}

	executions, err := db.ListExecutions()
	if err != nil {
		return err
	}
	if len(executions) == 0 {
		fmt.Println("No executions yet. Run 'squadron run <task>' to start.")
		return nil
	}

	for _, exec := range executions {
		progress := workflow.Progress(exec.State)
		printState(exec.State)
		fmt.Printf("  %s  %d%%  started %s",
			exec.ID, progress.Percent, exec.StartedAt.Format("2006-01-02 15:04"))
		if exec.Error != "" {
			fmt.Printf("  %s", color.RedString(exec.Error))
		}
		fmt.Println()
	}
	return nil
}

func printState(s models.WorkflowState) {
	switch s {
	case models.StateCompleted:
		color.New(color.FgGreen, color.Bold).Printf("%-11s", s)
	case models.StateFailed:
		color.New(color.FgRed, color.Bold).Printf("%-11s", s)
	case models.StateBlocked:
		color.New(color.FgYellow, color.Bold).Printf("%-11s", s)
	default:
		color.New(color.FgCyan).Printf("%-11s", s)
	}
}
