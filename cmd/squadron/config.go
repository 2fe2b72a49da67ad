package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/parkerduff/squadron/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show resolved configuration",
	Long: `Print the configuration squadron would run with, after merging
defaults, the user config file, any project .squadron.yaml, and
environment variables.`,
	RunE: runConfig,
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	heading := color.New(color.FgCyan, color.Bold)

	heading.Println("bus")
	fmt.Printf("  backend:        %s\n", cfg.Bus.Backend)
	fmt.Printf("  queue_cap:      %d\n", cfg.Bus.QueueCap)
	fmt.Printf("  url:            %s\n", cfg.Bus.URL)
	fmt.Printf("  stream:         %s\n", cfg.Bus.Stream)
	fmt.Printf("  subject_prefix: %s\n", cfg.Bus.SubjectPrefix)
	fmt.Printf("  consumer_group: %s\n", cfg.Bus.ConsumerGroup)
	fmt.Printf("  max_msgs:       %d\n", cfg.Bus.MaxMsgs)
	fmt.Printf("  max_age:        %s\n", cfg.Bus.MaxAge)

	heading.Println("store")
	fmt.Printf("  path: %s\n", cfg.Store.Path)

	heading.Println("roster")
	fmt.Printf("  path:  %s\n", cfg.Roster.Path)
	fmt.Printf("  watch: %v\n", cfg.Roster.Watch)

	heading.Println("observer")
	fmt.Printf("  enabled:        %v\n", cfg.Observer.Enabled)
	fmt.Printf("  subject_prefix: %s\n", cfg.Observer.SubjectPrefix)

	heading.Println("anthropic")
	key := cfg.Anthropic.APIKey
	if key != "" {
		key = "(set)"
	} else {
		key = "(unset)"
	}
	fmt.Printf("  api_key:         %s\n", key)
	fmt.Printf("  model:           %s\n", cfg.Anthropic.Model)
	fmt.Printf("  use_aws_bedrock: %v\n", cfg.Anthropic.UseAWSBedrock)

	fmt.Printf("\nuser config: %s\n", config.GetUserConfigPath())
	return nil
}
