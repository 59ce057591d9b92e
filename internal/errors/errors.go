// Package errors provides centralized error definitions and error handling utilities
// for forkrunner. It defines sentinel errors for the run, pool and plan subsystems,
// semantic error types with context wrapping, and classification helpers.
//
// # Error Types
//
// Domain-specific errors:
//   - PoolError: errors raised while driving a single pool (pool name, test case)
//
// Semantic errors:
//   - NotFoundError: resource not found (e.g. an unregistered pool)
//   - ValidationError: invalid input or state (e.g. a malformed run plan)
//
// # Usage
//
//	err := errors.NewNotFoundError("pool", "tablets").WithCause(errors.ErrPoolNotFound)
//	if errors.Is(err, errors.ErrPoolNotFound) { ... }
//
//	var nf *errors.NotFoundError
//	if errors.As(err, &nf) { ... }
//
// Retry budget exhaustion is never an error; it is reported as a plain false
// from the admission APIs.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Run and pool sentinel errors
var (
	// ErrPoolNotFound indicates a lookup of a pool that was never registered
	// with the reporter. It signals a wiring defect in the orchestrator.
	ErrPoolNotFound = New("pool not registered")
	// ErrAlreadyStarted indicates the run clock was started twice.
	ErrAlreadyStarted = New("run already started")
	// ErrAlreadyStopped indicates the run clock was stopped twice.
	ErrAlreadyStopped = New("run already stopped")
	// ErrNotStarted indicates the run clock was stopped before it was started.
	ErrNotStarted = New("run not started")
	// ErrPoolAlreadyRegistered indicates a second tracker was offered for a
	// pool the reporter already tracks.
	ErrPoolAlreadyRegistered = New("pool already registered")
)

// Plan sentinel errors
var (
	// ErrPlanInvalid indicates that a run plan failed validation.
	ErrPlanInvalid = New("plan is invalid")
	// ErrPlanNotFound indicates that a run plan file could not be read.
	ErrPlanNotFound = New("plan not found")
)

// General sentinel errors
var (
	// ErrCanceled indicates that an operation was canceled.
	ErrCanceled = New("operation canceled")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	userFacing bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

func (e *baseError) setSeverity(s Severity) {
	e.severity = s
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// PoolError represents errors raised while driving one pool's execution loop.
//
// Example:
//
//	err := errors.NewPoolError("retry request failed", errors.ErrPoolNotFound).
//		WithPool("phones").WithTestCase("LoginTest#testValid")
//	fmt.Println(err) // "pool error [pool=phones, test=LoginTest#testValid]: retry request failed: pool not registered"
type PoolError struct {
	baseError
	Pool     string
	TestCase string
}

// NewPoolError creates a new PoolError.
func NewPoolError(message string, cause error) *PoolError {
	return &PoolError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			userFacing: false,
		},
	}
}

// WithPool adds a pool name to the error context.
func (e *PoolError) WithPool(name string) *PoolError {
	e.Pool = name
	return e
}

// WithTestCase adds a test case identifier to the error context.
func (e *PoolError) WithTestCase(id string) *PoolError {
	e.TestCase = id
	return e
}

// WithSeverity overrides the default SeverityError.
func (e *PoolError) WithSeverity(s Severity) *PoolError {
	e.setSeverity(s)
	return e
}

// Error returns the formatted error message.
func (e *PoolError) Error() string {
	var parts []string
	if e.Pool != "" {
		parts = append(parts, fmt.Sprintf("pool=%s", e.Pool))
	}
	if e.TestCase != "" {
		parts = append(parts, fmt.Sprintf("test=%s", e.TestCase))
	}

	prefix := "pool error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("pool error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *PoolError) Is(target error) bool {
	if _, ok := target.(*PoolError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// NotFoundError represents a resource that could not be found.
//
// Example:
//
//	err := errors.NewNotFoundError("pool", "tablets")
//	fmt.Println(err) // "pool 'tablets' not found"
type NotFoundError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:    fmt.Sprintf("%s '%s' not found", resourceType, resourceID),
			severity:   SeverityError,
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// WithCause adds a cause to the error.
func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *NotFoundError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s '%s' not found: %v", e.ResourceType, e.ResourceID, e.cause)
	}
	return fmt.Sprintf("%s '%s' not found", e.ResourceType, e.ResourceID)
}

// Is checks if this error matches the target.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ValidationError represents invalid input or state.
//
// Example:
//
//	err := errors.NewValidationError("pool name cannot be empty").WithField("pools[0].name")
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			severity:   SeverityWarning,
			userFacing: true,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}

	prefix := "validation error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("validation error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Classification
// -----------------------------------------------------------------------------

// IsUserFacing reports whether err carries a message safe to print to the
// terminal as-is. Wiring defects such as PoolError are not user facing.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	var notFound *NotFoundError
	if As(err, &notFound) {
		return notFound.IsUserFacing()
	}
	var validation *ValidationError
	if As(err, &validation) {
		return validation.IsUserFacing()
	}
	var pool *PoolError
	if As(err, &pool) {
		return pool.IsUserFacing()
	}
	return false
}

// SeverityOf returns the severity of the first classified error in err's
// chain. Unclassified errors are SeverityError.
func SeverityOf(err error) Severity {
	var classified interface{ Severity() Severity }
	if As(err, &classified) {
		return classified.Severity()
	}
	return SeverityError
}

// UserMessage returns the text to print for err on the terminal. A user
// facing error prints its own message without the context wrapped around it;
// anything else prints the whole chain.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var notFound *NotFoundError
	if As(err, &notFound) && notFound.IsUserFacing() {
		return notFound.Error()
	}
	var validation *ValidationError
	if As(err, &validation) && validation.IsUserFacing() {
		return validation.Error()
	}
	return err.Error()
}

// IsMissingPool reports whether err was caused by an unregistered pool lookup.
func IsMissingPool(err error) bool {
	return Is(err, ErrPoolNotFound)
}
