package main

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/vitaliisemenov/rehearsa/internal/baseline"
	"github.com/vitaliisemenov/rehearsa/internal/config"
	"github.com/vitaliisemenov/rehearsa/internal/executor"
	"github.com/vitaliisemenov/rehearsa/internal/history"
	"github.com/vitaliisemenov/rehearsa/internal/metrics"
	"github.com/vitaliisemenov/rehearsa/internal/notify"
	"github.com/vitaliisemenov/rehearsa/internal/policy"
	"github.com/vitaliisemenov/rehearsa/internal/preflight"
	"github.com/vitaliisemenov/rehearsa/internal/provider"
	"github.com/vitaliisemenov/rehearsa/internal/report"
	"github.com/vitaliisemenov/rehearsa/internal/runtime"
	"github.com/vitaliisemenov/rehearsa/pkg/logger"
)

// app holds every collaborator a subcommand needs, built once from
// configuration in the root command's PersistentPreRunE.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	history    *history.Store
	baseline   *baseline.Store
	policy     *policy.Store
	dispatcher *notify.Dispatcher
	metrics    *metrics.Collectors
	assembler  *report.Assembler
}

func newApp(cfg *config.Config) (*app, error) {
	log := logger.NewLogger(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		Filename:   cfg.Log.Filename,
		MaxSize:    cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})

	historyStore := history.NewStore(cfg.History.Dir)
	baselineStore := baseline.NewStore(cfg.Baseline.Dir, cfg.Baseline.HistoryDir)
	policyStore := policy.NewStore(cfg.Policy.Dir)

	registry, err := notify.LoadChannelRegistry(cfg.Notify.ChannelsFile)
	if err != nil {
		return nil, fmt.Errorf("load notification channels: %w", err)
	}
	dispatcher := notify.NewDispatcher(registry, log)

	var collectors *metrics.Collectors
	if cfg.Metrics.Enabled {
		collectors = metrics.NewCollectors(prometheus.DefaultRegisterer)
	}

	return &app{
		cfg:        cfg,
		logger:     log,
		history:    historyStore,
		baseline:   baselineStore,
		policy:     policyStore,
		dispatcher: dispatcher,
		metrics:    collectors,
		assembler:  &report.Assembler{History: historyStore, Baseline: baselineStore, Policy: policyStore},
	}, nil
}

// newExecutor builds an Executor wired to a real Docker runtime.
func (a *app) newExecutor() (*executor.Executor, error) {
	docker, err := runtime.NewDocker()
	if err != nil {
		return nil, err
	}

	var verifier provider.Verifier
	if len(a.cfg.Provider.Command) > 0 {
		verifier = provider.NewSubprocessVerifier(provider.CommandConfig{
			Command: a.cfg.Provider.Command,
			Timeout: a.cfg.Provider.Timeout,
		}, a.logger)
	}

	return &executor.Executor{
		History:  a.history,
		Baseline: a.baseline,
		Policy:   a.policy,
		Runtime:  docker,
		Rules:    preflight.DefaultRules(),
		HostEnv:  preflight.OSHostEnv{},
		LockDir:  a.cfg.Lock.Dir,
		Logger:   a.logger,
		Provider: verifier,
	}, nil
}

var cfgFile string

func newRootCommand() *cobra.Command {
	var a *app

	root := &cobra.Command{
		Use:   "rehearsa",
		Short: "Rehearse restore contracts for container-composed application stacks",
		Long: "rehearsa brings a stack up in an isolated network, scores its health " +
			"against the contract it promises to restore, and records, gates, and " +
			"reports on the outcome.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			a, err = newApp(cfg)
			return err
		},
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "path to rehearsa config file (YAML)")

	root.AddCommand(
		newRunCommand(&a),
		newDaemonCommand(&a),
		newWatchCommand(&a),
		newCleanupCommand(&a),
		newReportCommand(&a),
		newBaselineCommand(&a),
		newPolicyCommand(&a),
	)

	return root
}
