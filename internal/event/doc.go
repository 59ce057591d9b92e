// Package event provides a synchronous pub-sub bus through which the retry
// admission controller, the progress reporter and the runner publish
// observability events without depending on their consumers (metrics,
// display, logs).
//
// # Main Types
//
//   - [Event]: interface implemented by every event (EventType, Timestamp)
//   - [Bus]: thread-safe synchronous dispatcher
//   - [Handler]: func(Event)
//
// # Event Types
//
//   - [RetryRequestedEvent] ("retry.requested"): one per admission decision,
//     carrying the remaining global and per-test-case quota
//   - [RunStartedEvent] / [RunStoppedEvent]: the reporter clock started or stopped
//   - [PoolProgressEvent]: a pool's counters changed
//   - [TestFinishedEvent]: a test case reached its final outcome in a pool
//
// # Thread Safety
//
// Publish may be called from every pool goroutine at once. Handlers run
// synchronously on the publishing goroutine, so they must be safe for
// concurrent use and must not block.
package event
