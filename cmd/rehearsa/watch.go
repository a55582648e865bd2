package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vitaliisemenov/rehearsa/internal/daemon"
)

func newWatchCommand(a **app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Manage the daemon's watched-stack registry",
	}

	cmd.AddCommand(newWatchAddCommand(a), newWatchRemoveCommand(a), newWatchListCommand(a))
	return cmd
}

func newWatchAddCommand(a **app) *cobra.Command {
	var (
		schedule string
		catchUp  bool
	)

	cmd := &cobra.Command{
		Use:   "add <stack> <compose-file>",
		Short: "Register a stack for the daemon to watch",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := daemon.NewRegistry((*a).cfg.Daemon.WatchFile)
			return registry.Add(daemon.WatchEntry{
				Stack:       args[0],
				ComposePath: args[1],
				Added:       time.Now().UTC().Format(time.RFC3339),
				Schedule:    schedule,
				CatchUp:     catchUp,
			})
		},
	}

	cmd.Flags().StringVar(&schedule, "schedule", "", "5-field cron expression for periodic rehearsal")
	cmd.Flags().BoolVar(&catchUp, "catch-up", false, "fire the most recently missed slot on daemon restart instead of skipping it")

	return cmd
}

func newWatchRemoveCommand(a **app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <stack>",
		Short: "Stop watching a stack",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := daemon.NewRegistry((*a).cfg.Daemon.WatchFile)
			return registry.Remove(args[0])
		},
	}
}

func newWatchListCommand(a **app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List watched stacks",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := daemon.NewRegistry((*a).cfg.Daemon.WatchFile)
			entries, err := registry.Load()
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Printf("%s\t%s\tschedule=%q catch_up=%v\n", e.Stack, e.ComposePath, e.Schedule, e.CatchUp)
			}
			return nil
		},
	}
}
