package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newBaselineCommand(a **app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "baseline",
		Short: "Manage pinned restore-contract baselines",
	}

	cmd.AddCommand(newBaselinePromoteCommand(a), newBaselineShowCommand(a))
	return cmd
}

func newBaselinePromoteCommand(a **app) *cobra.Command {
	var timestamp string

	cmd := &cobra.Command{
		Use:   "promote <stack>",
		Short: "Pin a recorded run as the stack's new baseline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := (*a).baseline.PromoteBaseline((*a).history, args[0], timestamp)
			if err != nil {
				return err
			}
			fmt.Printf("promoted baseline for %s: confidence=%d services=%v\n", b.Stack, b.ExpectedConfidence, b.ExpectedServices)
			return nil
		},
	}

	cmd.Flags().StringVar(&timestamp, "timestamp", "", "substring matching the run timestamp to promote; defaults to the latest run")
	return cmd
}

func newBaselineShowCommand(a **app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <stack>",
		Short: "Print the stack's currently pinned baseline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := (*a).baseline.LoadBaseline(args[0])
			if err != nil {
				return err
			}
			if b == nil {
				return fmt.Errorf("no baseline pinned for stack %q", args[0])
			}
			return printJSON(b)
		},
	}
}
