// Package retry provides retry admission for test cases that fail during a
// run executed across several worker pools.
//
// A Controller enforces two budgets at once: a global number of retries
// shared by every pool, and a ceiling on how many failures a single test case
// may accumulate and still be retried. Exhausting either budget is a normal
// outcome reported as a denied request, never as an error.
package retry

import (
	"sync/atomic"

	"github.com/Iron-Ham/forkrunner/internal/event"
	"github.com/Iron-Ham/forkrunner/internal/logging"
)

// Request describes one retry request. Pool and TestCase only label the
// observability event; the decision depends on Failures alone.
type Request struct {
	Pool     string
	TestCase string
	// Failures is the number of failures recorded for the test case across
	// all pools, including the failure that triggered this request.
	Failures int
}

// Decision is the outcome of a retry request.
type Decision struct {
	Granted bool
	// CeilingExceeded is true when the per-test-case ceiling denied the request.
	// The global budget is untouched in that case.
	CeilingExceeded bool
	// BudgetExhausted is true when the test case was eligible but no global
	// retries were left.
	BudgetExhausted  bool
	RemainingGlobal  int
	RemainingPerCase int
}

// Controller grants or denies retries. It is safe for concurrent use by any
// number of pools and never blocks.
type Controller struct {
	remaining      atomic.Int64
	total          int
	perCaseCeiling int
	logger         *logging.Logger
	bus            *event.Bus
}

// NewController creates a controller with totalQuota global retries and a
// per-test-case ceiling. Negative quotas are treated as zero. logger and bus
// may be nil.
func NewController(totalQuota, perCaseCeiling int, logger *logging.Logger, bus *event.Bus) *Controller {
	if logger == nil {
		logger = logging.NopLogger()
	}
	c := &Controller{
		total:          max(totalQuota, 0),
		perCaseCeiling: max(perCaseCeiling, 0),
		logger:         logger,
		bus:            bus,
	}
	c.remaining.Store(int64(c.total))
	return c
}

// Request reports whether a test case that has failed currentFailureCount
// times may be retried. A ceiling of n admits failure counts up to n.
func (c *Controller) Request(currentFailureCount int) bool {
	return c.Admit(Request{Failures: currentFailureCount}).Granted
}

// Admit evaluates req. The per-test-case ceiling is checked first; only an
// eligible request consumes a global retry, and it consumes exactly one.
func (c *Controller) Admit(req Request) Decision {
	var d Decision

	if req.Failures > c.perCaseCeiling {
		d.CeilingExceeded = true
		d.RemainingGlobal = c.RemainingRetries()
	} else if left, ok := c.consumeGlobal(); ok {
		d.Granted = true
		d.RemainingGlobal = left
	} else {
		d.BudgetExhausted = true
	}

	if !d.CeilingExceeded {
		d.RemainingPerCase = c.perCaseCeiling - req.Failures
	}

	c.report(req, d)
	return d
}

// consumeGlobal decrements the global budget if it is strictly positive and
// returns the value left after the decrement.
func (c *Controller) consumeGlobal() (int, bool) {
	for {
		current := c.remaining.Load()
		if current <= 0 {
			return 0, false
		}
		if c.remaining.CompareAndSwap(current, current-1) {
			return int(current - 1), true
		}
	}
}

func (c *Controller) report(req Request, d Decision) {
	if c.logger.Enabled(logging.LevelDebug) {
		msg := "retry requested but not allowed"
		if d.Granted {
			msg = "retry requested and allowed"
		}
		c.logger.Debug(msg,
			"pool", req.Pool,
			"test", req.TestCase,
			"failures", req.Failures,
			"total_retry_left", d.RemainingGlobal,
			"test_case_retry_left", d.RemainingPerCase,
		)
	}

	if c.bus != nil {
		c.bus.Publish(event.NewRetryRequestedEvent(
			req.Pool, req.TestCase, req.Failures, d.Granted, d.RemainingGlobal, d.RemainingPerCase,
		))
	}
}

// RemainingRetries returns the global retries left. It never goes below zero.
func (c *Controller) RemainingRetries() int {
	return int(c.remaining.Load())
}

// TotalQuota returns the configured global retry budget.
func (c *Controller) TotalQuota() int {
	return c.total
}

// PerCaseCeiling returns the configured per-test-case ceiling.
func (c *Controller) PerCaseCeiling() int {
	return c.perCaseCeiling
}

// Granted returns how many retries have been granted so far.
func (c *Controller) Granted() int {
	return c.total - c.RemainingRetries()
}
