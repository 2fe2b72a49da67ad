package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/parkerduff/squadron/internal/config"
	"github.com/parkerduff/squadron/internal/tui"
	"github.com/parkerduff/squadron/pkg/models"
)

var (
	runSquadID     string
	runDescription string
	runCriteria    []string
	runOffline     bool
	runHeadless    bool
)

var runCmd = &cobra.Command{
	Use:   "run <task title>",
	Short: "Run a task through the squad workflow",
	Long: `Run a task end to end: analysis, planning, delegation, and assignment.

The execution advances automatically through the planning stages. Review,
testing, and completion are driven by squad member replies on the message
bus (or by a human via the library API).

Use --offline to run without reasoner API access.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTask,
}

func init() {
	runCmd.Flags().StringVar(&runSquadID, "squad", "", "Squad id to delegate within (defaults to the roster's squad)")
	runCmd.Flags().StringVar(&runDescription, "description", "", "Longer task description")
	runCmd.Flags().StringArrayVar(&runCriteria, "criteria", nil, "Acceptance criterion (repeatable)")
	runCmd.Flags().BoolVar(&runOffline, "offline", false, "Use the offline reasoner (no API calls)")
	runCmd.Flags().BoolVar(&runHeadless, "headless", false, "Run without the TUI monitor")
}

func runTask(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	r, err := buildReasoner(cfg, runOffline)
	if err != nil {
		return err
	}

	a, err := buildApp(ctx, cfg, r)
	if err != nil {
		return err
	}
	defer a.close()

	squadID := runSquadID
	if squadID == "" {
		squadID = "default"
	}

	task := &models.Task{
		Title:              strings.Join(args, " "),
		Description:        runDescription,
		AcceptanceCriteria: runCriteria,
	}

	executionID, err := a.orch.Execute(ctx, task, squadID)
	if err != nil {
		if executionID != "" {
			color.Red("execution %s stalled: %v", executionID, err)
			return nil
		}
		return err
	}

	if !runHeadless {
		return tui.Run(a.orch, a.orch.Events(), executionID, cfg.TUI.RefreshRate)
	}

	snap, err := a.orch.Monitor(executionID)
	if err != nil {
		return err
	}
	color.Green("execution %s: %s (%d%%)", snap.ExecutionID, snap.State, snap.Progress.Percent)
	fmt.Printf("  task:  %s\n  state: %s\n", snap.TaskID, snap.Description)
	return nil
}
