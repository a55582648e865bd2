package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vitaliisemenov/rehearsa/internal/executor"
	"github.com/vitaliisemenov/rehearsa/internal/runtime"
)

func newCleanupCommand(a **app) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Remove orphaned rehearsal containers and networks left behind by a crash",
		RunE: func(cmd *cobra.Command, args []string) error {
			docker, err := runtime.NewDocker()
			if err != nil {
				return fmt.Errorf("connect to container runtime: %w", err)
			}

			report, err := executor.Cleanup(cmd.Context(), docker, (*a).cfg.Lock.Dir)
			if err != nil {
				return err
			}

			for _, c := range report.RemovedContainers {
				fmt.Printf("removed container %s\n", c)
			}
			for _, n := range report.RemovedNetworks {
				fmt.Printf("removed network %s\n", n)
			}
			for _, s := range report.SkippedLive {
				fmt.Printf("skipped (stack still rehearsing): %s\n", s)
			}
			for _, e := range report.Errors {
				fmt.Printf("error: %s\n", e)
			}
			if len(report.Errors) > 0 {
				return fmt.Errorf("cleanup completed with %d error(s)", len(report.Errors))
			}
			return nil
		},
	}
}
