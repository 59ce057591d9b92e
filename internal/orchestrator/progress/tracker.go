// Package progress aggregates live progress and failure history for a run
// executed by several worker pools at once, and routes every pool's retry
// requests through a shared retry.Controller.
package progress

import "sync/atomic"

// Tracker holds one pool's counters. Each tracker has a single writer (its
// pool's execution loop) and any number of concurrent readers; the reporter
// additionally increments the requeue counter when it grants a retry.
type Tracker struct {
	planned   atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	runFailed atomic.Int64
	requeued  atomic.Int64
}

// Snapshot is a point-in-time copy of a tracker's counters. Fields are read
// one by one, so a snapshot taken during a write may mix adjacent states.
type Snapshot struct {
	Planned        int
	Completed      int
	FailedTests    int
	FailedTestRuns int
	Requeued       int
}

// NewTracker creates a tracker for a pool that will run planned tests.
func NewTracker(planned int) *Tracker {
	t := &Tracker{}
	t.planned.Store(int64(max(planned, 0)))
	return t
}

// RecordCompletion records a test reaching its final outcome. Completions
// beyond the planned count are ignored so progress never exceeds 1.
func (t *Tracker) RecordCompletion() {
	for {
		current := t.completed.Load()
		if current >= t.planned.Load() {
			return
		}
		if t.completed.CompareAndSwap(current, current+1) {
			return
		}
	}
}

// RecordFailure records a failed test execution.
func (t *Tracker) RecordFailure() {
	t.failed.Add(1)
}

// RecordTestRunFailure records a test run that failed as a whole (device
// disconnect, instrumentation crash) rather than an assertion failure.
func (t *Tracker) RecordTestRunFailure() {
	t.runFailed.Add(1)
}

// RecordRequeue records that a failed test was put back in the pool's queue.
func (t *Tracker) RecordRequeue() {
	t.requeued.Add(1)
}

// Progress returns completed/planned in [0,1], or 1 when nothing is planned.
func (t *Tracker) Progress() float64 {
	planned := t.planned.Load()
	if planned == 0 {
		return 1
	}
	return float64(t.completed.Load()) / float64(planned)
}

// FailedTests returns the number of failed test executions.
func (t *Tracker) FailedTests() int {
	return int(t.failed.Load())
}

// FailedTestRuns returns the number of failed test runs.
func (t *Tracker) FailedTestRuns() int {
	return int(t.runFailed.Load())
}

// Snapshot returns a copy of all counters.
func (t *Tracker) Snapshot() Snapshot {
	return Snapshot{
		Planned:        int(t.planned.Load()),
		Completed:      int(t.completed.Load()),
		FailedTests:    int(t.failed.Load()),
		FailedTestRuns: int(t.runFailed.Load()),
		Requeued:       int(t.requeued.Load()),
	}
}
