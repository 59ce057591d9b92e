package progress

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Iron-Ham/forkrunner/internal/errors"
	"github.com/Iron-Ham/forkrunner/internal/event"
	"github.com/Iron-Ham/forkrunner/internal/logging"
	"github.com/Iron-Ham/forkrunner/internal/model"
	"github.com/Iron-Ham/forkrunner/internal/orchestrator/retry"
)

// Config holds the retry quotas of a run. It is fixed at construction.
type Config struct {
	// TotalRetryQuota is the number of retries shared by all pools.
	TotalRetryQuota int
	// PerTestCaseRetryQuota is the number of retries a single test case may
	// receive. A test case is retried while its failures across all pools do
	// not exceed it, so 0 disables retries.
	PerTestCaseRetryQuota int
}

// PoolSummary is a read-only view of one pool for reporting.
type PoolSummary struct {
	Pool     *model.Pool
	Counts   Snapshot
	Progress float64
}

// Reporter is the single coordination point shared by every pool of a run.
// It owns the per-pool trackers, the failure history and the retry
// controller, and exposes aggregate progress to reporting code.
//
// Construct one Reporter per run and hand it to each pool's execution loop.
// All methods are safe for concurrent use.
type Reporter struct {
	mu       sync.RWMutex
	trackers map[*model.Pool]*Tracker

	failures *FailureAccumulator
	retries  *retry.Controller

	clockMu   sync.Mutex
	startedAt time.Time
	stoppedAt time.Time
	now       func() time.Time

	logger *logging.Logger
	bus    *event.Bus
}

// NewReporter creates a reporter enforcing cfg's quotas. logger and bus may be nil.
func NewReporter(cfg Config, logger *logging.Logger, bus *event.Bus) *Reporter {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Reporter{
		trackers: make(map[*model.Pool]*Tracker),
		failures: NewFailureAccumulator(),
		retries:  retry.NewController(cfg.TotalRetryQuota, cfg.PerTestCaseRetryQuota, logger, bus),
		now:      time.Now,
		logger:   logger,
		bus:      bus,
	}
}

// Start records the start of the run. It may be called once.
func (r *Reporter) Start() error {
	r.clockMu.Lock()
	if !r.startedAt.IsZero() {
		r.clockMu.Unlock()
		return errors.ErrAlreadyStarted
	}
	r.startedAt = r.now()
	r.clockMu.Unlock()

	pools := r.poolCount()
	r.logger.Info("run started", "pools", pools)
	if r.bus != nil {
		r.bus.Publish(event.NewRunStartedEvent(pools))
	}
	return nil
}

// Stop records the end of the run. It may be called once, after Start.
func (r *Reporter) Stop() error {
	r.clockMu.Lock()
	switch {
	case r.startedAt.IsZero():
		r.clockMu.Unlock()
		return errors.ErrNotStarted
	case !r.stoppedAt.IsZero():
		r.clockMu.Unlock()
		return errors.ErrAlreadyStopped
	}
	r.stoppedAt = r.now()
	elapsed := r.stoppedAt.Sub(r.startedAt)
	r.clockMu.Unlock()

	progress := r.OverallProgress()
	failed, runFailed := r.TotalFailedTests(), r.TotalFailedTestRuns()
	r.logger.Info("run stopped",
		"elapsed_ms", elapsed.Milliseconds(),
		"progress", progress,
		"failed_tests", failed,
		"failed_test_runs", runFailed,
		"retries_left", r.RemainingRetries(),
	)
	if r.bus != nil {
		r.bus.Publish(event.NewRunStoppedEvent(elapsed, progress, failed, runFailed))
	}
	return nil
}

// ElapsedMillis returns the milliseconds since Start while the run is in
// progress and the fixed start-to-stop interval once stopped. It returns 0
// before Start. Durations come from the monotonic clock reading.
func (r *Reporter) ElapsedMillis() int64 {
	r.clockMu.Lock()
	defer r.clockMu.Unlock()

	switch {
	case r.startedAt.IsZero():
		return 0
	case r.stoppedAt.IsZero():
		return r.now().Sub(r.startedAt).Milliseconds()
	default:
		return r.stoppedAt.Sub(r.startedAt).Milliseconds()
	}
}

// AddPool registers the tracker for pool. A pool keeps its first tracker for
// the whole run; registering it again returns an error matching
// errors.ErrPoolAlreadyRegistered.
func (r *Reporter) AddPool(pool *model.Pool, tracker *Tracker) error {
	r.mu.Lock()
	_, exists := r.trackers[pool]
	if !exists {
		r.trackers[pool] = tracker
	}
	r.mu.Unlock()

	if exists {
		r.logger.Warn("pool registered twice", "pool", pool.String())
		return fmt.Errorf("adding pool %s: %w", pool, errors.ErrPoolAlreadyRegistered)
	}
	return nil
}

// TrackerFor returns the tracker registered for pool. An unregistered pool
// is a wiring defect and yields an error matching errors.ErrPoolNotFound.
func (r *Reporter) TrackerFor(pool *model.Pool) (*Tracker, error) {
	r.mu.RLock()
	tracker, ok := r.trackers[pool]
	r.mu.RUnlock()

	if !ok {
		return nil, errors.NewNotFoundError("pool", pool.String()).WithCause(errors.ErrPoolNotFound)
	}
	return tracker, nil
}

// TotalFailedTests sums failed test executions over all pools.
func (r *Reporter) TotalFailedTests() int {
	sum := 0
	for _, t := range r.snapshotTrackers() {
		sum += t.FailedTests()
	}
	return sum
}

// TotalFailedTestRuns sums failed test runs over all pools.
func (r *Reporter) TotalFailedTestRuns() int {
	sum := 0
	for _, t := range r.snapshotTrackers() {
		sum += t.FailedTestRuns()
	}
	return sum
}

// OverallProgress returns the unweighted mean of every pool's progress:
// a pool running 3 tests counts as much as a pool running 300. It returns 0
// when no pools are registered.
func (r *Reporter) OverallProgress() float64 {
	trackers := r.snapshotTrackers()
	if len(trackers) == 0 {
		return 0
	}

	var sum float64
	for _, t := range trackers {
		sum += t.Progress()
	}
	return sum / float64(len(trackers))
}

// RecordFailedTestCase records a failure of tc in pool.
func (r *Reporter) RecordFailedTestCase(pool *model.Pool, tc model.TestCase) {
	r.failures.Record(pool, tc)
}

// RequestRetry asks whether the failed tc may be re-queued in pool.
//
// The failure that triggered the request must already have been recorded
// with RecordFailedTestCase. The admission decision is made on the
// cumulative failures of tc summed across all pools, that failure included.
// When granted, the pool's tracker is marked as having re-queued work.
//
// An unregistered pool returns an error and consumes no retry budget.
func (r *Reporter) RequestRetry(pool *model.Pool, tc model.TestCase) (bool, error) {
	tracker, err := r.TrackerFor(pool)
	if err != nil {
		return false, err
	}

	d := r.retries.Admit(retry.Request{
		Pool:     pool.Name,
		TestCase: tc.String(),
		Failures: r.failures.Count(tc),
	})
	if d.Granted {
		tracker.RecordRequeue()
	}
	return d.Granted, nil
}

// FailAndRequestRetry records a failure of tc in pool and then requests a
// retry for it, in the order RequestRetry requires.
func (r *Reporter) FailAndRequestRetry(pool *model.Pool, tc model.TestCase) (bool, error) {
	if _, err := r.TrackerFor(pool); err != nil {
		return false, err
	}
	r.RecordFailedTestCase(pool, tc)
	return r.RequestRetry(pool, tc)
}

// FailureCountFor returns how many times tc failed in pool.
func (r *Reporter) FailureCountFor(pool *model.Pool, tc model.TestCase) int {
	return r.failures.PoolCount(pool, tc)
}

// TotalFailureCount returns how many times tc failed across all pools.
func (r *Reporter) TotalFailureCount(tc model.TestCase) int {
	return r.failures.Count(tc)
}

// RemainingRetries returns the global retries left.
func (r *Reporter) RemainingRetries() int {
	return r.retries.RemainingRetries()
}

// RetriesGranted returns how many retries have been granted so far.
func (r *Reporter) RetriesGranted() int {
	return r.retries.Granted()
}

// PoolSummaries returns a summary of every registered pool sorted by name.
func (r *Reporter) PoolSummaries() []PoolSummary {
	r.mu.RLock()
	summaries := make([]PoolSummary, 0, len(r.trackers))
	for pool, t := range r.trackers {
		summaries = append(summaries, PoolSummary{
			Pool:     pool,
			Counts:   t.Snapshot(),
			Progress: t.Progress(),
		})
	}
	r.mu.RUnlock()

	slices.SortFunc(summaries, func(a, b PoolSummary) int {
		return strings.Compare(a.Pool.String(), b.Pool.String())
	})
	return summaries
}

func (r *Reporter) snapshotTrackers() []*Tracker {
	r.mu.RLock()
	defer r.mu.RUnlock()

	trackers := make([]*Tracker, 0, len(r.trackers))
	for _, t := range r.trackers {
		trackers = append(trackers, t)
	}
	return trackers
}

func (r *Reporter) poolCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.trackers)
}
