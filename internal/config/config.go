package config

import (
	"os"
	"path/filepath"

	"github.com/Iron-Ham/forkrunner/internal/logging"
	"github.com/Iron-Ham/forkrunner/internal/orchestrator/progress"
	"github.com/spf13/viper"
)

// Config represents the complete forkrunner configuration
type Config struct {
	Retry   RetryConfig   `mapstructure:"retry" yaml:"retry"`
	Runner  RunnerConfig  `mapstructure:"runner" yaml:"runner"`
	Display DisplayConfig `mapstructure:"display" yaml:"display"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// RetryConfig controls how many failed test cases may be re-queued
type RetryConfig struct {
	// TotalQuota is the number of retries shared by every pool in a run (default: 10)
	TotalQuota int `mapstructure:"total_quota" yaml:"total_quota"`
	// PerTestCaseQuota is the number of retries a single test case may receive,
	// 0 = never retry (default: 1)
	PerTestCaseQuota int `mapstructure:"per_test_case_quota" yaml:"per_test_case_quota"`
}

// RunnerConfig controls the execution harness
type RunnerConfig struct {
	// MaxParallelPools caps how many pools execute at once, 0 = all pools (default: 0)
	MaxParallelPools int `mapstructure:"max_parallel_pools" yaml:"max_parallel_pools"`
}

// DisplayConfig controls the run summary output
type DisplayConfig struct {
	// BarWidth is the width of each progress bar in columns (default: 30)
	BarWidth int `mapstructure:"bar_width" yaml:"bar_width"`
	// ShowPools prints a row per pool under the overall summary (default: true)
	ShowPools bool `mapstructure:"show_pools" yaml:"show_pools"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	// ListenAddr serves /metrics on this address while a run executes, "" = disabled
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled controls whether logging is enabled (default: true)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level" yaml:"level"`
	// Dir is the directory for forkrunner.log, "" = stderr
	Dir string `mapstructure:"dir" yaml:"dir"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	// MaxBackups is the number of backup log files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Retry: RetryConfig{
			TotalQuota:       10,
			PerTestCaseQuota: 1,
		},
		Runner: RunnerConfig{
			MaxParallelPools: 0,
		},
		Display: DisplayConfig{
			BarWidth:  30,
			ShowPools: true,
		},
		Metrics: MetricsConfig{
			ListenAddr: "",
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			Dir:        "",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("retry.total_quota", defaults.Retry.TotalQuota)
	viper.SetDefault("retry.per_test_case_quota", defaults.Retry.PerTestCaseQuota)

	viper.SetDefault("runner.max_parallel_pools", defaults.Runner.MaxParallelPools)

	viper.SetDefault("display.bar_width", defaults.Display.BarWidth)
	viper.SetDefault("display.show_pools", defaults.Display.ShowPools)

	viper.SetDefault("metrics.listen_addr", defaults.Metrics.ListenAddr)

	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads and validates the configuration held by v
func LoadFrom(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// ProgressConfig returns the quotas handed to the progress reporter
func (c *Config) ProgressConfig() progress.Config {
	return progress.Config{
		TotalRetryQuota:       c.Retry.TotalQuota,
		PerTestCaseRetryQuota: c.Retry.PerTestCaseQuota,
	}
}

// NewLogger builds the logger described by the logging section. Disabled
// logging yields a NopLogger.
func (c *LoggingConfig) NewLogger() (*logging.Logger, error) {
	if !c.Enabled {
		return logging.NopLogger(), nil
	}
	return logging.NewLogger(c.Dir, c.Level, logging.RotationConfig{
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
	})
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "forkrunner")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".forkrunner"
	}
	return filepath.Join(home, ".config", "forkrunner")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
