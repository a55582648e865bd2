// Package executor drives one rehearsal end to end: lock, preflight,
// topo-sorted service bring-up with wait-and-score, teardown, and the
// aggregation of confidence, regression, drift, and policy into a
// persisted record.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vitaliisemenov/rehearsa/internal/baseline"
	"github.com/vitaliisemenov/rehearsa/internal/compose"
	"github.com/vitaliisemenov/rehearsa/internal/history"
	"github.com/vitaliisemenov/rehearsa/internal/lock"
	"github.com/vitaliisemenov/rehearsa/internal/policy"
	"github.com/vitaliisemenov/rehearsa/internal/preflight"
	"github.com/vitaliisemenov/rehearsa/internal/provider"
	"github.com/vitaliisemenov/rehearsa/internal/risk"
	"github.com/vitaliisemenov/rehearsa/internal/runtime"
	"github.com/vitaliisemenov/rehearsa/internal/stack"
)

// PullPolicy controls how an executor run ensures images are present.
type PullPolicy string

const (
	PullAlways    PullPolicy = "Always"
	PullIfMissing PullPolicy = "IfMissing"
	PullNever     PullPolicy = "Never"
)

// Options configures a single rehearsal run.
type Options struct {
	ComposePath     string
	TimeoutSec      int
	InjectFailure   string
	StrictIntegrity bool
	PullPolicy      PullPolicy
}

// Summary is the outcome of one rehearsal, suitable for logging or CLI
// output.
type Summary struct {
	Stack                      string
	Readiness                  int
	Confidence                 int
	DurationSeconds            float64
	Risk                       risk.Band
	ServiceScores              map[string]int
	PolicyViolated             bool
	BaselineDrift              bool
	ProviderVerificationFailed bool
	ProviderError              string
	ExitCode                   int
}

// Sentinel error kinds, wrapped with context at each call site.
var (
	ErrParse              = errors.New("failed to parse composition file")
	ErrIntegrityViolation = errors.New("history integrity violation")
	ErrCycleDetected      = errors.New("dependency cycle detected")
	ErrLockHeld           = errors.New("stack lock already held")
	ErrRuntime            = errors.New("container runtime error")
)

// Executor wires together every collaborator a rehearsal needs.
type Executor struct {
	History  *history.Store
	Baseline *baseline.Store
	Policy   *policy.Store
	Runtime  runtime.Runtime
	Rules    []preflight.Rule
	HostEnv  preflight.HostEnv
	LockDir  string
	Logger   *slog.Logger

	// Provider, when set, is run after scoring and before persisting to
	// confirm the stack's backing backup provider considers it restorable.
	// Nil disables provider verification entirely.
	Provider provider.Verifier

	// PollInterval is the wait-and-score polling cadence; defaults to one
	// second to match the contract, overridden in tests for speed.
	PollInterval time.Duration
	// Sleep defaults to time.Sleep; overridden in tests with a no-op.
	Sleep func(time.Duration)
	// Now defaults to time.Now; overridden in tests for determinism.
	Now func() time.Time
}

func (e *Executor) pollInterval() time.Duration {
	if e.PollInterval > 0 {
		return e.PollInterval
	}
	return time.Second
}

func (e *Executor) sleep(d time.Duration) {
	if e.Sleep != nil {
		e.Sleep(d)
		return
	}
	time.Sleep(d)
}

func (e *Executor) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Executor) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func stemOf(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Run executes one rehearsal and returns its summary. A lock-contention
// skip is reported via *lock.HeldError wrapped in ErrLockHeld; callers
// (the daemon) should treat that as non-fatal.
func (e *Executor) Run(ctx context.Context, opts Options) (*Summary, error) {
	start := e.now()
	stackName := stemOf(opts.ComposePath)
	log := e.logger().With("stack", stackName)

	if opts.StrictIntegrity {
		if err := e.History.ValidateStackIntegrity(stackName); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrIntegrityViolation, err)
		}
	}

	heldLock, err := lock.Acquire(e.LockDir, stackName)
	if err != nil {
		var held *lock.HeldError
		if errors.As(err, &held) {
			return nil, fmt.Errorf("%w: %w", ErrLockHeld, err)
		}
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	defer heldLock.Release()

	s, err := compose.Load(opts.ComposePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}

	rules := e.Rules
	if rules == nil {
		rules = preflight.DefaultRules()
	}
	hostEnv := e.HostEnv
	if hostEnv == nil {
		hostEnv = preflight.OSHostEnv{}
	}
	findings, readiness := preflight.Analyze(ctx, s, hostEnv, e.Runtime, rules)
	for _, f := range findings {
		log.Info("preflight finding", "rule", f.Rule, "service", f.Service, "severity", string(f.Severity), "message", f.Message, "penalty", f.Penalty)
	}

	deps, err := s.DependencyMap()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	order, err := stack.TopologicalSort(deps)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCycleDetected, err)
	}

	runID := uuid.New().String()
	networkName := fmt.Sprintf("%sstack_%s", NamePrefix, runID)

	var createdContainers []string
	teardown := func() {
		for _, name := range createdContainers {
			if err := e.Runtime.RemoveContainer(context.Background(), name); err != nil {
				log.Warn("teardown: failed to remove container", "container", name, "error", err)
			}
		}
		if err := e.Runtime.RemoveNetwork(context.Background(), networkName); err != nil {
			log.Warn("teardown: failed to remove network", "network", networkName, "error", err)
		}
	}
	defer teardown()

	runLabels := map[string]string{LabelStack: stackName, LabelRunID: runID}
	if err := e.Runtime.CreateNetwork(ctx, networkName, runLabels); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	serviceScores := make(map[string]int, len(order))
	for _, svcName := range order {
		svc := s.Services[svcName]

		if err := e.ensureImage(ctx, svc.Image, opts.PullPolicy); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
		}

		containerName := fmt.Sprintf("%s%s_%s", NamePrefix, runID, svcName)
		labels := make(map[string]string, len(svc.Labels)+2)
		for k, v := range svc.Labels {
			labels[k] = v
		}
		labels[LabelStack] = stackName
		labels[LabelRunID] = runID
		spec := runtime.ContainerSpec{
			Name:         containerName,
			Image:        svc.Image,
			Command:      svc.Command,
			Entrypoint:   svc.Entrypoint,
			Labels:       labels,
			NetworkName:  networkName,
			NetworkAlias: svcName,
		}
		pairs, bareKeys := svc.ExplicitEnv()
		for k, v := range pairs {
			spec.Env = append(spec.Env, k+"="+v)
		}
		for _, k := range bareKeys {
			if v, ok := hostEnv.LookupEnv(k); ok {
				spec.Env = append(spec.Env, k+"="+v)
			}
		}
		hasHealthCheck := svc.HealthCheck != nil
		if hasHealthCheck {
			hc := &runtime.HealthCheckSpec{
				Test:    svc.HealthCheck.Test,
				Retries: int(svc.HealthCheck.Retries),
			}
			if d, ok := svc.HealthCheck.IntervalDuration(); ok {
				hc.Interval = d.Nanoseconds()
			}
			if d, ok := svc.HealthCheck.TimeoutDuration(); ok {
				hc.Timeout = d.Nanoseconds()
			}
			spec.HealthCheck = hc
		}

		if err := e.Runtime.CreateContainer(ctx, spec); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
		}
		createdContainers = append(createdContainers, containerName)

		if err := e.Runtime.StartContainer(ctx, containerName); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
		}

		score := e.waitAndScore(ctx, containerName, hasHealthCheck, opts.TimeoutSec)
		if opts.InjectFailure == svcName {
			score = 0
		}
		serviceScores[svcName] = score
		log.Info("service scored", "service", svcName, "score", score)
	}

	confidence := meanScore(serviceScores)
	riskBand := risk.Of(confidence)
	duration := e.now().Sub(start).Seconds()

	reg, err := e.History.AnalyzeRegression(stackName, confidence, readiness, duration)
	if err != nil {
		return nil, fmt.Errorf("analyze regression: %w", err)
	}

	var drift *baseline.Drift
	pinned, err := e.Baseline.LoadBaseline(stackName)
	if err != nil {
		return nil, fmt.Errorf("load baseline: %w", err)
	}
	if pinned != nil {
		drift = baseline.CompareToBaseline(pinned, serviceScores, confidence, readiness, duration)
	}

	p, err := e.Policy.Load(stackName)
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}

	record := &history.RunRecord{
		Stack:           stackName,
		Timestamp:       start.UTC().Format(time.RFC3339),
		DurationSeconds: duration,
		Confidence:      confidence,
		Readiness:       readiness,
		Risk:            riskBand,
		Services:        serviceScores,
	}

	verdict := policy.Evaluate(p, record, reg, drift)

	var providerFailed bool
	var providerErrMsg string
	if e.Provider != nil {
		if verr := e.Provider.Verify(ctx, s); verr != nil {
			providerFailed = true
			providerErrMsg = verr.Error()
			log.Error("provider verification failed", "error", verr)
		}
	}

	record.ExitCode = exitCodeFor(confidence, verdict, p, drift, providerFailed)

	if err := e.History.Persist(record); err != nil {
		return nil, fmt.Errorf("persist record: %w", err)
	}

	return &Summary{
		Stack:                      stackName,
		Readiness:                  readiness,
		Confidence:                 confidence,
		DurationSeconds:            duration,
		Risk:                       riskBand,
		ServiceScores:              serviceScores,
		PolicyViolated:             verdict.Violated,
		BaselineDrift:              drift != nil && drift.Present,
		ProviderVerificationFailed: providerFailed,
		ProviderError:              providerErrMsg,
		ExitCode:                   record.ExitCode,
	}, nil
}

func (e *Executor) ensureImage(ctx context.Context, image string, p PullPolicy) error {
	switch p {
	case PullAlways:
		return e.Runtime.PullImage(ctx, image)
	case PullNever:
		present, err := e.Runtime.ImageExistsLocally(ctx, image)
		if err != nil {
			return err
		}
		if !present {
			return fmt.Errorf("image %q absent locally and pull policy is Never", image)
		}
		return nil
	default: // PullIfMissing
		present, err := e.Runtime.ImageExistsLocally(ctx, image)
		if err != nil {
			return err
		}
		if present {
			return nil
		}
		return e.Runtime.PullImage(ctx, image)
	}
}

func (e *Executor) waitAndScore(ctx context.Context, containerName string, hasHealthCheck bool, timeoutSec int) int {
	if timeoutSec <= 0 {
		timeoutSec = 1
	}
	for i := 0; i < timeoutSec; i++ {
		state, err := e.Runtime.InspectContainer(ctx, containerName)
		if err == nil {
			switch state.Status {
			case runtime.StatusRunning:
				if !hasHealthCheck {
					return 85
				}
				switch state.Health {
				case runtime.HealthHealthy:
					return 100
				case runtime.HealthUnhealthy:
					return 40
				}
			case runtime.StatusExited, runtime.StatusDead:
				return 0
			}
		}
		e.sleep(e.pollInterval())
	}
	return 0
}

func meanScore(scores map[string]int) int {
	if len(scores) == 0 {
		return 0
	}
	sum := 0
	for _, s := range scores {
		sum += s
	}
	return sum / len(scores)
}

func exitCodeFor(confidence int, verdict *policy.Verdict, p *policy.StackPolicy, drift *baseline.Drift, providerFailed bool) int {
	if providerFailed {
		return 6
	}
	if verdict != nil && verdict.Violated {
		return 4
	}
	if p != nil && p.FailOnBaselineDrift && drift != nil && drift.Present {
		return 5
	}
	switch {
	case confidence >= 70:
		return 0
	case confidence >= 40:
		return 2
	default:
		return 3
	}
}
