package config

import (
	"fmt"
	"net"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "retry.total_quota")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateRetry()...)
	errors = append(errors, c.validateRunner()...)
	errors = append(errors, c.validateDisplay()...)
	errors = append(errors, c.validateMetrics()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validateRetry validates the RetryConfig
func (c *Config) validateRetry() []ValidationError {
	var errors []ValidationError

	if c.Retry.TotalQuota < 0 {
		errors = append(errors, ValidationError{
			Field:   "retry.total_quota",
			Value:   c.Retry.TotalQuota,
			Message: "must be non-negative",
		})
	}
	if c.Retry.PerTestCaseQuota < 0 {
		errors = append(errors, ValidationError{
			Field:   "retry.per_test_case_quota",
			Value:   c.Retry.PerTestCaseQuota,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateRunner validates the RunnerConfig
func (c *Config) validateRunner() []ValidationError {
	var errors []ValidationError

	if c.Runner.MaxParallelPools < 0 {
		errors = append(errors, ValidationError{
			Field:   "runner.max_parallel_pools",
			Value:   c.Runner.MaxParallelPools,
			Message: "must be non-negative (0 runs every pool at once)",
		})
	}

	return errors
}

// validateDisplay validates the DisplayConfig
func (c *Config) validateDisplay() []ValidationError {
	var errors []ValidationError

	const minBarWidth, maxBarWidth = 10, 120
	if c.Display.BarWidth < minBarWidth || c.Display.BarWidth > maxBarWidth {
		errors = append(errors, ValidationError{
			Field:   "display.bar_width",
			Value:   c.Display.BarWidth,
			Message: fmt.Sprintf("must be between %d and %d", minBarWidth, maxBarWidth),
		})
	}

	return errors
}

// validateMetrics validates the MetricsConfig
func (c *Config) validateMetrics() []ValidationError {
	var errors []ValidationError

	if c.Metrics.ListenAddr != "" {
		if _, _, err := net.SplitHostPort(c.Metrics.ListenAddr); err != nil {
			errors = append(errors, ValidationError{
				Field:   "metrics.listen_addr",
				Value:   c.Metrics.ListenAddr,
				Message: "must be host:port",
			})
		}
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	const maxSizeLimit = 1000
	if c.Logging.MaxSizeMB < 1 || c.Logging.MaxSizeMB > maxSizeLimit {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("must be between 1 and %d", maxSizeLimit),
		})
	}

	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}
