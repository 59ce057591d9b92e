package runner

import "github.com/Iron-Ham/forkrunner/internal/logging"

// Option configures a Runner.
type Option func(*runnerConfig)

type runnerConfig struct {
	logger           *logging.Logger
	maxParallelPools int
}

// WithLogger sets the logger for run and pool diagnostics.
func WithLogger(logger *logging.Logger) Option {
	return func(c *runnerConfig) {
		c.logger = logger
	}
}

// WithMaxParallelPools caps how many pools execute at once. Zero or a
// negative value runs every pool at once.
func WithMaxParallelPools(n int) Option {
	return func(c *runnerConfig) {
		c.maxParallelPools = n
	}
}
