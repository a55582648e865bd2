// Package config loads rehearsa's configuration from a YAML file, layered
// with environment variable overrides, using Viper + mapstructure as the
// teacher does for its own configuration surface.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level rehearsa configuration.
type Config struct {
	History  HistoryConfig  `mapstructure:"history"`
	Baseline BaselineConfig `mapstructure:"baseline"`
	Policy   PolicyConfig   `mapstructure:"policy"`
	Lock     LockConfig     `mapstructure:"lock"`
	Daemon   DaemonConfig   `mapstructure:"daemon"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Provider ProviderConfig `mapstructure:"provider"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Log      LogConfig      `mapstructure:"log"`
}

// HistoryConfig controls where run records are persisted and how stability
// is computed.
type HistoryConfig struct {
	Dir             string `mapstructure:"dir"`
	StabilityWindow int    `mapstructure:"stability_window"`
}

// BaselineConfig controls where pinned baselines and their promotion
// history are persisted.
type BaselineConfig struct {
	Dir            string        `mapstructure:"dir"`
	HistoryDir     string        `mapstructure:"history_dir"`
	StalenessLimit time.Duration `mapstructure:"staleness_limit"`
}

// PolicyConfig controls where per-stack policy gates are persisted.
type PolicyConfig struct {
	Dir string `mapstructure:"dir"`
}

// LockConfig controls the per-stack cross-process lock directory.
type LockConfig struct {
	Dir string `mapstructure:"dir"`
}

// DaemonConfig controls the watch registry, scheduler state, and
// concurrency of the long-running daemon.
type DaemonConfig struct {
	WatchFile         string        `mapstructure:"watch_file"`
	SchedulerStateFile string       `mapstructure:"scheduler_state_file"`
	MaxConcurrent     int           `mapstructure:"max_concurrent"`
	TickInterval      time.Duration `mapstructure:"tick_interval"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
}

// NotifyConfig controls the location of the notification channel registry
// file.
type NotifyConfig struct {
	ChannelsFile string `mapstructure:"channels_file"`
}

// ProviderConfig configures the optional backup-provider verification
// command run after scoring, before persisting. Empty Command disables
// verification entirely.
type ProviderConfig struct {
	Command []string      `mapstructure:"command"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// MetricsConfig controls the Prometheus exporter.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	Path    string `mapstructure:"path"`
}

// LogConfig controls structured logging output and rotation.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// Load reads configuration from configPath (if non-empty and present),
// layers environment variable overrides on top, and validates the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvPrefix("REHEARSA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("config: read %s: %w", configPath, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	home := os.ExpandEnv("$HOME/.rehearsa")

	v.SetDefault("history.dir", home+"/history")
	v.SetDefault("history.stability_window", 10)

	v.SetDefault("baseline.dir", home+"/baselines")
	v.SetDefault("baseline.history_dir", home+"/baseline-history")
	v.SetDefault("baseline.staleness_limit", "720h")

	v.SetDefault("policy.dir", home+"/policies")

	v.SetDefault("lock.dir", "/var/lock/rehearsa")

	v.SetDefault("daemon.watch_file", "/etc/rehearsa/watches.json")
	v.SetDefault("daemon.scheduler_state_file", "/etc/rehearsa/scheduler_state.json")
	v.SetDefault("daemon.max_concurrent", 1)
	v.SetDefault("daemon.tick_interval", "30s")
	v.SetDefault("daemon.heartbeat_interval", "60s")

	v.SetDefault("notify.channels_file", home+"/notify_channels.json")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.addr", ":9090")
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("log.compress", true)
}

// Validate rejects configurations that would fail at startup rather than
// silently misbehave at runtime.
func (c *Config) Validate() error {
	if c.History.Dir == "" {
		return fmt.Errorf("history.dir cannot be empty")
	}
	if c.Baseline.Dir == "" {
		return fmt.Errorf("baseline.dir cannot be empty")
	}
	if c.Policy.Dir == "" {
		return fmt.Errorf("policy.dir cannot be empty")
	}
	if c.Lock.Dir == "" {
		return fmt.Errorf("lock.dir cannot be empty")
	}
	if c.Daemon.MaxConcurrent <= 0 {
		return fmt.Errorf("daemon.max_concurrent must be positive, got %d", c.Daemon.MaxConcurrent)
	}
	if c.History.StabilityWindow <= 0 {
		return fmt.Errorf("history.stability_window must be positive, got %d", c.History.StabilityWindow)
	}
	if c.Log.Level == "" {
		return fmt.Errorf("log.level cannot be empty")
	}
	return nil
}
