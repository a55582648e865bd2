package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vitaliisemenov/rehearsa/internal/executor"
)

func newRunCommand(a **app) *cobra.Command {
	var (
		timeoutSec    int
		injectFailure string
		strictIntegrity bool
		pullPolicy    string
		jsonOutput    bool
	)

	cmd := &cobra.Command{
		Use:   "run <compose-file>",
		Short: "Run a single rehearsal against a composition file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exec, err := (*a).newExecutor()
			if err != nil {
				return fmt.Errorf("connect to container runtime: %w", err)
			}

			summary, err := exec.Run(cmd.Context(), executor.Options{
				ComposePath:     args[0],
				TimeoutSec:      timeoutSec,
				InjectFailure:   injectFailure,
				StrictIntegrity: strictIntegrity,
				PullPolicy:      executor.PullPolicy(pullPolicy),
			})
			if summary != nil {
				printSummary(summary, jsonOutput)
			}
			if err != nil {
				return err
			}
			if summary != nil {
				os.Exit(summary.ExitCode)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&timeoutSec, "timeout", 120, "per-service health wait timeout in seconds")
	cmd.Flags().StringVar(&injectFailure, "inject-failure", "", "force the named service to score 0, for rehearsing failure handling")
	cmd.Flags().BoolVar(&strictIntegrity, "strict-integrity", false, "fail the run if any existing history record for this stack fails hash verification")
	cmd.Flags().StringVar(&pullPolicy, "pull-policy", string(executor.PullIfMissing), "image pull policy: Always, IfMissing, or Never")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print the run summary as JSON")

	return cmd
}

func printSummary(s *executor.Summary, asJSON bool) {
	if asJSON {
		b, err := json.MarshalIndent(s, "", "  ")
		if err == nil {
			fmt.Println(string(b))
			return
		}
	}
	fmt.Printf("stack:      %s\n", s.Stack)
	fmt.Printf("confidence: %d\n", s.Confidence)
	fmt.Printf("readiness:  %d\n", s.Readiness)
	fmt.Printf("risk:       %s\n", s.Risk)
	fmt.Printf("duration:   %.1fs\n", s.DurationSeconds)
	fmt.Printf("exit code:  %d\n", s.ExitCode)
	if s.PolicyViolated {
		fmt.Println("policy:     VIOLATED")
	}
	if s.BaselineDrift {
		fmt.Println("baseline:   DRIFTED")
	}
	if s.ProviderVerificationFailed {
		fmt.Printf("provider:   VERIFICATION FAILED (%s)\n", s.ProviderError)
	}
}
