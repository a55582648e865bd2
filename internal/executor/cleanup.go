package executor

import (
	"context"
	"fmt"

	"github.com/vitaliisemenov/rehearsa/internal/lock"
	"github.com/vitaliisemenov/rehearsa/internal/runtime"
)

// NamePrefix tags every ephemeral container and network a rehearsal
// creates, so a crashed run's leftovers are recognizable independent of
// which stack or service they belonged to.
const NamePrefix = "rehearsa_"

// LabelStack and LabelRunID tag every container and network a rehearsal
// creates, so Cleanup can recover which stack a candidate orphan belongs to
// and check whether that stack's rehearsal is still genuinely in flight.
const (
	LabelStack = "rehearsa.stack"
	LabelRunID = "rehearsa.run_id"
)

// CleanupReport records what Cleanup removed.
type CleanupReport struct {
	RemovedContainers []string
	RemovedNetworks   []string
	SkippedLive       []string
	Errors            []string
}

// Cleanup sweeps every container and network tagged with NamePrefix, except
// those belonging to a stack whose per-stack lock (lockDir) is currently
// held by a live process — that stack's rehearsal is genuinely still in
// flight, not a crash leftover. Normal runs always tear their own
// containers and network down on every exit path (including panic recovery
// upstream); anything still present and unlocked when Cleanup runs is, by
// construction, a crash leftover.
func Cleanup(ctx context.Context, rt runtime.Runtime, lockDir string) (*CleanupReport, error) {
	report := &CleanupReport{}

	live := func(labels map[string]string) bool {
		stack, ok := labels[LabelStack]
		return ok && stack != "" && lock.IsHeld(lockDir, stack)
	}

	containers, err := rt.ListContainersByPrefix(ctx, NamePrefix)
	if err != nil {
		return nil, fmt.Errorf("executor: list orphan containers: %w", err)
	}
	for _, c := range containers {
		if live(c.Labels) {
			report.SkippedLive = append(report.SkippedLive, c.Name)
			continue
		}
		if err := rt.RemoveContainer(ctx, c.Name); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("remove container %s: %v", c.Name, err))
			continue
		}
		report.RemovedContainers = append(report.RemovedContainers, c.Name)
	}

	networks, err := rt.ListNetworksByPrefix(ctx, NamePrefix)
	if err != nil {
		return nil, fmt.Errorf("executor: list orphan networks: %w", err)
	}
	for _, n := range networks {
		if live(n.Labels) {
			report.SkippedLive = append(report.SkippedLive, n.Name)
			continue
		}
		if err := rt.RemoveNetwork(ctx, n.Name); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("remove network %s: %v", n.Name, err))
			continue
		}
		report.RemovedNetworks = append(report.RemovedNetworks, n.Name)
	}

	return report, nil
}
