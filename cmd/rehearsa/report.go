package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vitaliisemenov/rehearsa/internal/daemon"
)

func newReportCommand(a **app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Assemble read-only coverage reports over watched stacks",
	}

	cmd.AddCommand(newReportFleetCommand(a), newReportComplianceCommand(a))
	return cmd
}

func watchedStackNames(a *app) ([]string, error) {
	registry := daemon.NewRegistry(a.cfg.Daemon.WatchFile)
	entries, err := registry.Load()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Stack)
	}
	return names, nil
}

func newReportFleetCommand(a **app) *cobra.Command {
	return &cobra.Command{
		Use:   "fleet",
		Short: "Print the latest run, policy verdict, and baseline drift for every watched stack",
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := watchedStackNames(*a)
			if err != nil {
				return err
			}
			rep, err := (*a).assembler.FleetStatus(names)
			if err != nil {
				return err
			}
			return printJSON(rep)
		},
	}
}

func newReportComplianceCommand(a **app) *cobra.Command {
	var (
		window      int
		staleDays   int
	)

	cmd := &cobra.Command{
		Use:   "compliance",
		Short: "Print rolling stability and baseline staleness for every watched stack",
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := watchedStackNames(*a)
			if err != nil {
				return err
			}
			rep, err := (*a).assembler.Compliance(names, window, time.Duration(staleDays)*24*time.Hour)
			if err != nil {
				return err
			}
			return printJSON(rep)
		},
	}

	cmd.Flags().IntVar(&window, "window", 10, "number of recent runs to average for the stability score")
	cmd.Flags().IntVar(&staleDays, "stale-days", 30, "flag a baseline as stale if it was promoted longer ago than this")

	return cmd
}

func printJSON(v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}
