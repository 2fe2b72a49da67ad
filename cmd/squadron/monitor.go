package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/parkerduff/squadron/internal/config"
	"github.com/parkerduff/squadron/internal/tui"
)

var monitorOffline bool

var monitorCmd = &cobra.Command{
	Use:   "monitor <execution-id>",
	Short: "Open the TUI monitor for an execution",
	Args:  cobra.ExactArgs(1),
	RunE:  runMonitor,
}

func init() {
	monitorCmd.Flags().BoolVar(&monitorOffline, "offline", true, "Use the offline reasoner (monitoring makes no API calls)")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	r, err := buildReasoner(cfg, monitorOffline)
	if err != nil {
		return err
	}

	a, err := buildApp(ctx, cfg, r)
	if err != nil {
		return err
	}
	defer a.close()

	return tui.Run(a.orch, a.orch.Events(), args[0], cfg.TUI.RefreshRate)
}
