package event

import "time"

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a "category.action" identifier, e.g. "retry.requested".
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Event type identifiers.
const (
	TypeRetryRequested = "retry.requested"
	TypeRunStarted     = "run.started"
	TypeRunStopped     = "run.stopped"
	TypePoolProgress   = "pool.progress"
	TypeTestFinished   = "test.finished"
)

// baseEvent provides common fields for all events.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// RetryRequestedEvent is emitted for every retry admission decision.
type RetryRequestedEvent struct {
	baseEvent
	Pool             string // Requesting pool; empty when the controller is used directly
	TestCase         string // "Class#method"; empty when the controller is used directly
	Failures         int    // Failures recorded for the test case, this one included
	Granted          bool
	RemainingGlobal  int // Global retries left after the decision
	RemainingPerCase int // Retries left for this test case, 0 when the ceiling denied it
}

// NewRetryRequestedEvent creates a RetryRequestedEvent.
func NewRetryRequestedEvent(pool, testCase string, failures int, granted bool, remainingGlobal, remainingPerCase int) RetryRequestedEvent {
	return RetryRequestedEvent{
		baseEvent:        newBaseEvent(TypeRetryRequested),
		Pool:             pool,
		TestCase:         testCase,
		Failures:         failures,
		Granted:          granted,
		RemainingGlobal:  remainingGlobal,
		RemainingPerCase: remainingPerCase,
	}
}

// RunStartedEvent is emitted when the reporter clock starts.
type RunStartedEvent struct {
	baseEvent
	Pools int
}

// NewRunStartedEvent creates a RunStartedEvent.
func NewRunStartedEvent(pools int) RunStartedEvent {
	return RunStartedEvent{baseEvent: newBaseEvent(TypeRunStarted), Pools: pools}
}

// RunStoppedEvent is emitted when the reporter clock stops.
type RunStoppedEvent struct {
	baseEvent
	Elapsed         time.Duration
	OverallProgress float64
	FailedTests     int
	FailedTestRuns  int
}

// NewRunStoppedEvent creates a RunStoppedEvent.
func NewRunStoppedEvent(elapsed time.Duration, progress float64, failedTests, failedRuns int) RunStoppedEvent {
	return RunStoppedEvent{
		baseEvent:       newBaseEvent(TypeRunStopped),
		Elapsed:         elapsed,
		OverallProgress: progress,
		FailedTests:     failedTests,
		FailedTestRuns:  failedRuns,
	}
}

// PoolProgressEvent is emitted by the runner whenever a pool's counters move.
type PoolProgressEvent struct {
	baseEvent
	Pool      string
	Planned   int
	Completed int
	Failed    int
	Requeued  int
	Progress  float64
}

// NewPoolProgressEvent creates a PoolProgressEvent.
func NewPoolProgressEvent(pool string, planned, completed, failed, requeued int, progress float64) PoolProgressEvent {
	return PoolProgressEvent{
		baseEvent: newBaseEvent(TypePoolProgress),
		Pool:      pool,
		Planned:   planned,
		Completed: completed,
		Failed:    failed,
		Requeued:  requeued,
		Progress:  progress,
	}
}

// TestFinishedEvent is emitted when a test case reaches its final outcome in a pool.
type TestFinishedEvent struct {
	baseEvent
	Pool     string
	TestCase string
	Passed   bool
	Attempts int
}

// NewTestFinishedEvent creates a TestFinishedEvent.
func NewTestFinishedEvent(pool, testCase string, passed bool, attempts int) TestFinishedEvent {
	return TestFinishedEvent{
		baseEvent: newBaseEvent(TypeTestFinished),
		Pool:      pool,
		TestCase:  testCase,
		Passed:    passed,
		Attempts:  attempts,
	}
}
