// Package report assembles read-only coverage reports over the history,
// baseline, and policy stores (C10): a fleet status snapshot and a
// per-stack compliance summary. It never mutates state.
package report

import (
	"fmt"
	"time"

	"github.com/vitaliisemenov/rehearsa/internal/baseline"
	"github.com/vitaliisemenov/rehearsa/internal/history"
	"github.com/vitaliisemenov/rehearsa/internal/policy"
)

// StackStatus is one stack's entry in a FleetReport.
type StackStatus struct {
	Stack          string          `json:"stack"`
	LatestRun      *history.RunRecord `json:"latest_run,omitempty"`
	PolicyVerdict  *policy.Verdict `json:"policy_verdict,omitempty"`
	BaselineDrift  *baseline.Drift `json:"baseline_drift,omitempty"`
	HasBaseline    bool            `json:"has_baseline"`
	NoHistoryYet   bool            `json:"no_history_yet,omitempty"`
}

// FleetReport is the latest known state of every watched stack.
type FleetReport struct {
	GeneratedAt string        `json:"generated_at"`
	Stacks      []StackStatus `json:"stacks"`
}

// Assembler builds reports from the persisted stores. Stores are the same
// ones the executor writes through.
type Assembler struct {
	History  *history.Store
	Baseline *baseline.Store
	Policy   *policy.Store
	Now      func() time.Time
}

func (a *Assembler) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// FleetStatus assembles a FleetReport covering stackNames.
func (a *Assembler) FleetStatus(stackNames []string) (*FleetReport, error) {
	report := &FleetReport{GeneratedAt: a.now().UTC().Format(time.RFC3339)}

	for _, name := range stackNames {
		status := StackStatus{Stack: name}

		latest, err := a.History.LoadLatest(name)
		if err != nil {
			return nil, fmt.Errorf("report: load latest run for %q: %w", name, err)
		}
		if latest == nil {
			status.NoHistoryYet = true
			report.Stacks = append(report.Stacks, status)
			continue
		}
		status.LatestRun = latest

		b, err := a.Baseline.LoadBaseline(name)
		if err != nil {
			return nil, fmt.Errorf("report: load baseline for %q: %w", name, err)
		}
		var drift *baseline.Drift
		if b != nil {
			status.HasBaseline = true
			drift = baseline.CompareToBaseline(b, latest.Services, latest.Confidence, latest.Readiness, latest.DurationSeconds)
			status.BaselineDrift = drift
		}

		p, err := a.Policy.Load(name)
		if err != nil {
			return nil, fmt.Errorf("report: load policy for %q: %w", name, err)
		}
		if p != nil {
			// Regression is evaluated against the previous run at rehearsal
			// time, where a violation shows in the persisted exit code; a status
			// snapshot re-checks only the threshold and drift rules that
			// don't need the prior-run comparison.
			status.PolicyVerdict = policy.Evaluate(p, latest, &history.Regression{}, drift)
		}

		report.Stacks = append(report.Stacks, status)
	}

	return report, nil
}

// ComplianceEntry is one stack's compliance summary.
type ComplianceEntry struct {
	Stack           string `json:"stack"`
	StabilityScore  int    `json:"stability_score"`
	HasBaseline     bool   `json:"has_baseline"`
	BaselineStale   bool   `json:"baseline_stale"`
	BaselinePinnedAt string `json:"baseline_pinned_at,omitempty"`
}

// ComplianceReport summarizes rolling stability and baseline staleness for
// every watched stack.
type ComplianceReport struct {
	GeneratedAt    string            `json:"generated_at"`
	StalenessLimit string            `json:"staleness_limit"`
	Stacks         []ComplianceEntry `json:"stacks"`
}

// Compliance assembles a ComplianceReport over stackNames, using window
// runs to compute rolling stability and staleWindow to flag a baseline as
// stale if it was promoted longer ago than that.
func (a *Assembler) Compliance(stackNames []string, window int, staleWindow time.Duration) (*ComplianceReport, error) {
	report := &ComplianceReport{
		GeneratedAt:    a.now().UTC().Format(time.RFC3339),
		StalenessLimit: staleWindow.String(),
	}

	for _, name := range stackNames {
		stability, err := a.History.CalculateStability(name, window)
		if err != nil {
			return nil, fmt.Errorf("report: calculate stability for %q: %w", name, err)
		}
		entry := ComplianceEntry{Stack: name, StabilityScore: stability}

		b, err := a.Baseline.LoadBaseline(name)
		if err != nil {
			return nil, fmt.Errorf("report: load baseline for %q: %w", name, err)
		}
		if b != nil {
			entry.HasBaseline = true
			entry.BaselinePinnedAt = b.PromotedAt
			if promoted, err := time.Parse(time.RFC3339, b.PromotedAt); err == nil {
				entry.BaselineStale = a.now().Sub(promoted) > staleWindow
			}
		}

		report.Stacks = append(report.Stacks, entry)
	}

	return report, nil
}
