package daemon

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/vitaliisemenov/rehearsa/internal/executor"
	"github.com/vitaliisemenov/rehearsa/internal/metrics"
	"github.com/vitaliisemenov/rehearsa/internal/notify"
	"github.com/vitaliisemenov/rehearsa/pkg/logger"
)

// DefaultMaxConcurrent is used when neither the environment override nor
// the config file sets a concurrency limit.
const DefaultMaxConcurrent = 1

// ResolveMaxConcurrent applies the three-tier resolution: environment
// override, then configFileValue (0 means "not set in config"), then the
// default.
func ResolveMaxConcurrent(configFileValue int) int {
	if v, ok := os.LookupEnv("REHEARSA_MAX_CONCURRENT"); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	if configFileValue > 0 {
		return configFileValue
	}
	return DefaultMaxConcurrent
}

// Runner is the subset of executor.Executor the daemon drives, narrowed to
// an interface so tests can substitute a recording fake.
type Runner interface {
	Run(ctx context.Context, opts executor.Options) (*executor.Summary, error)
}

// Daemon dispatches rehearsal intents from file-change and cron producers
// through a single process-wide concurrency permit, serialized per stack
// by the executor's own file lock.
type Daemon struct {
	Registry       *Registry
	SchedulerState *SchedulerState
	Runner         Runner
	MaxConcurrent  int
	Logger         *slog.Logger

	// Dispatcher routes RehearsalFatalError/PolicyViolation/BaselineDrift/
	// ProviderVerificationFailed/RehearsalRecovered events. Nil disables
	// notification entirely.
	Dispatcher *notify.Dispatcher
	// Metrics, when set, is updated with in-flight gauges, dispatch
	// outcomes, and per-run duration/confidence observations.
	Metrics *metrics.Collectors

	// HeartbeatInterval and TickInterval default to 60s and 30s. Tests
	// override both to run the loop fast.
	HeartbeatInterval time.Duration
	TickInterval      time.Duration

	sem        *semaphore.Weighted
	wg         sync.WaitGroup
	initOnce   sync.Once
	problemMu  sync.Mutex
	hadProblem map[string]bool
}

func (d *Daemon) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func (d *Daemon) init() {
	d.initOnce.Do(func() {
		limit := d.MaxConcurrent
		if limit <= 0 {
			limit = DefaultMaxConcurrent
		}
		d.sem = semaphore.NewWeighted(int64(limit))
		if d.HeartbeatInterval <= 0 {
			d.HeartbeatInterval = 60 * time.Second
		}
		if d.TickInterval <= 0 {
			d.TickInterval = 30 * time.Second
		}
		d.hadProblem = make(map[string]bool)
	})
}

// Dispatch acquires the concurrency permit and runs one rehearsal in its
// own goroutine. It never blocks the caller beyond the semaphore wait.
func (d *Daemon) Dispatch(ctx context.Context, watch WatchEntry) {
	d.init()
	if err := d.sem.Acquire(ctx, 1); err != nil {
		d.logger().Warn("dispatch: failed to acquire concurrency permit", "stack", watch.Stack, "error", err)
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.sem.Release(1)
		d.runOne(ctx, watch)
	}()
}

func (d *Daemon) notify(kind notify.EventKind, stack, message string) {
	if d.Dispatcher == nil {
		return
	}
	d.Dispatcher.Dispatch(notify.NewEvent(kind, stack, message))
}

func (d *Daemon) dispatchOutcome(stack, outcome string) {
	if d.Metrics == nil {
		return
	}
	d.Metrics.DispatchTotal.WithLabelValues(stack, outcome).Inc()
}

// recordProblem tracks whether stack's most recent run had a problem, and
// fires RehearsalRecovered the first time a clean run follows one that
// didn't.
func (d *Daemon) recordProblem(stack string, problem bool) {
	d.problemMu.Lock()
	hadProblem := d.hadProblem[stack]
	d.hadProblem[stack] = problem
	d.problemMu.Unlock()

	if !problem && hadProblem {
		d.notify(notify.RehearsalRecovered, stack, "rehearsal recovered: most recent run completed cleanly")
	}
}

func (d *Daemon) runOne(ctx context.Context, watch WatchEntry) {
	ctx = logger.WithRunID(ctx, uuid.New().String())
	log := logger.FromContext(ctx, d.logger()).With("stack", watch.Stack)

	if d.Metrics != nil {
		d.Metrics.RehearsalsInFlight.Inc()
		defer d.Metrics.RehearsalsInFlight.Dec()
	}

	summary, err := d.Runner.Run(ctx, executor.Options{
		ComposePath: watch.ComposePath,
		TimeoutSec:  120,
		PullPolicy:  executor.PullIfMissing,
	})
	if err != nil {
		if errors.Is(err, executor.ErrLockHeld) {
			log.Info("rehearsal skipped: stack already in progress")
			d.dispatchOutcome(watch.Stack, "skipped_locked")
			return
		}
		log.Error("rehearsal failed", "error", err)
		d.dispatchOutcome(watch.Stack, "error")
		d.notify(notify.RehearsalFatalError, watch.Stack, err.Error())
		d.recordProblem(watch.Stack, true)
		return
	}

	log.Info("rehearsal completed", "confidence", summary.Confidence, "readiness", summary.Readiness, "exit_code", summary.ExitCode)
	d.dispatchOutcome(watch.Stack, "ran")
	if d.Metrics != nil {
		d.Metrics.ObserveRun(watch.Stack, summary.DurationSeconds, summary.Confidence)
	}

	problem := summary.ProviderVerificationFailed || summary.PolicyViolated || summary.BaselineDrift
	if summary.ProviderVerificationFailed {
		d.notify(notify.ProviderVerificationFailed, watch.Stack, summary.ProviderError)
	}
	if summary.PolicyViolated {
		d.notify(notify.PolicyViolation, watch.Stack, "stack failed its configured policy gate")
	}
	if summary.BaselineDrift {
		d.notify(notify.BaselineDrift, watch.Stack, "stack drifted from its pinned baseline")
	}
	d.recordProblem(watch.Stack, problem)
}

// Tick runs one scheduler pass: for every watch with a schedule, evaluate
// the cron expression against the recorded state, persist the advanced
// state before dispatching, and dispatch on DecisionFire.
func (d *Daemon) Tick(ctx context.Context, now time.Time) error {
	d.init()
	watches, err := d.Registry.Load()
	if err != nil {
		return err
	}
	state, err := d.SchedulerState.Load()
	if err != nil {
		return err
	}

	dirty := false
	for _, w := range watches {
		if w.Schedule == "" {
			continue
		}
		sched, err := ParseSchedule(w.Schedule)
		if err != nil {
			d.logger().Warn("tick: invalid schedule", "stack", w.Stack, "schedule", w.Schedule, "error", err)
			continue
		}

		var lastState time.Time
		if raw, ok := state[w.Stack]; ok {
			lastState, _ = time.Parse(time.RFC3339, raw)
		}

		decision, newState := EvaluateTick(sched, now, lastState, w.CatchUp)
		if decision == DecisionNone {
			continue
		}

		state[w.Stack] = newState.UTC().Format(time.RFC3339)
		dirty = true

		if decision == DecisionFire {
			// Persist before dispatch so a crash cannot replay this slot.
			if err := d.SchedulerState.Save(state); err != nil {
				return err
			}
			dirty = false
			d.Dispatch(ctx, w)
		}
	}

	if dirty {
		if err := d.SchedulerState.Save(state); err != nil {
			return err
		}
	}
	return nil
}

// WatchFiles starts one fsnotify watcher, adds each distinct compose-file
// parent directory to it, and dispatches on Create/Write events matching a registered
// absolute path. It runs until ctx is cancelled.
func (d *Daemon) WatchFiles(ctx context.Context) error {
	d.init()
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	watches, err := d.Registry.Load()
	if err != nil {
		return err
	}

	byPath := make(map[string]WatchEntry, len(watches))
	watchedDirs := make(map[string]bool)
	for _, w := range watches {
		byPath[w.ComposePath] = w
		dir := filepath.Dir(w.ComposePath)
		if !watchedDirs[dir] {
			if err := watcher.Add(dir); err != nil {
				d.logger().Warn("watch: failed to watch directory", "dir", dir, "error", err)
				continue
			}
			watchedDirs[dir] = true
		}
	}

	lastEvent := time.Now()
	heartbeat := time.NewTicker(d.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w, ok := byPath[event.Name]
			if !ok {
				continue
			}
			lastEvent = time.Now()
			d.Dispatch(ctx, w)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			d.logger().Warn("watch: fsnotify error", "error", err)
		case <-heartbeat.C:
			if time.Since(lastEvent) >= d.HeartbeatInterval {
				d.logger().Info("heartbeat", "watch_count", len(watches))
			}
		}
	}
}

// Wait blocks until every dispatched rehearsal goroutine has returned.
// Intended for graceful shutdown and for tests.
func (d *Daemon) Wait() {
	d.wg.Wait()
}
