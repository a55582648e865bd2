package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vitaliisemenov/rehearsa/internal/policy"
)

func newPolicyCommand(a **app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Configure and inspect per-stack gating rules",
	}

	cmd.AddCommand(newPolicySetCommand(a), newPolicyShowCommand(a))
	return cmd
}

func newPolicySetCommand(a **app) *cobra.Command {
	var (
		minConfidence           int
		minReadiness            int
		blockOnRegression       bool
		failOnNewServiceFailure bool
		failOnDurationSpike     bool
		durationSpikePercent    float64
		failOnBaselineDrift     bool
	)

	cmd := &cobra.Command{
		Use:   "set <stack>",
		Short: "Write (replacing) the gating rules for a stack",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := &policy.StackPolicy{
				BlockOnRegression:       blockOnRegression,
				FailOnNewServiceFailure: failOnNewServiceFailure,
				FailOnDurationSpike:     failOnDurationSpike,
				DurationSpikePercent:    durationSpikePercent,
				FailOnBaselineDrift:     failOnBaselineDrift,
			}
			if cmd.Flags().Changed("min-confidence") {
				p.MinConfidence = &minConfidence
			}
			if cmd.Flags().Changed("min-readiness") {
				p.MinReadiness = &minReadiness
			}

			if err := (*a).policy.Save(args[0], p); err != nil {
				return err
			}
			fmt.Printf("policy saved for %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().IntVar(&minConfidence, "min-confidence", 0, "fail the run if confidence drops below this")
	cmd.Flags().IntVar(&minReadiness, "min-readiness", 0, "fail the run if readiness drops below this")
	cmd.Flags().BoolVar(&blockOnRegression, "block-on-regression", false, "fail the run on any confidence regression vs the previous run")
	cmd.Flags().BoolVar(&failOnNewServiceFailure, "fail-on-new-service-failure", false, "fail the run if any service scores 0")
	cmd.Flags().BoolVar(&failOnDurationSpike, "fail-on-duration-spike", false, "fail the run if duration spikes vs the previous run")
	cmd.Flags().Float64Var(&durationSpikePercent, "duration-spike-percent", 0, "spike threshold percent; defaults to policy.DefaultDurationSpikePercent when unset")
	cmd.Flags().BoolVar(&failOnBaselineDrift, "fail-on-baseline-drift", false, "fail the run on any detected baseline drift")

	return cmd
}

func newPolicyShowCommand(a **app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <stack>",
		Short: "Print the stack's configured gating rules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := (*a).policy.Load(args[0])
			if err != nil {
				return err
			}
			if p == nil {
				return fmt.Errorf("no policy configured for stack %q", args[0])
			}
			return printJSON(p)
		},
	}
}
