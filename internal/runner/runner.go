// Package runner executes a run plan: every pool works through its own queue
// of test cases concurrently, re-queuing failures when the shared progress
// reporter admits a retry.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/Iron-Ham/forkrunner/internal/errors"
	"github.com/Iron-Ham/forkrunner/internal/event"
	"github.com/Iron-Ham/forkrunner/internal/logging"
	"github.com/Iron-Ham/forkrunner/internal/model"
	"github.com/Iron-Ham/forkrunner/internal/orchestrator/progress"
	"github.com/Iron-Ham/forkrunner/internal/plan"
	"github.com/sourcegraph/conc/pool"
)

// Config holds the collaborators of a run.
type Config struct {
	Plan     *plan.Plan
	Reporter *progress.Reporter
	Executor Executor
	// Bus receives pool progress and test finished events. Optional.
	Bus *event.Bus
}

// TestResult is the final outcome of one test case in one pool.
type TestResult struct {
	Pool     string         `json:"pool"`
	TestCase model.TestCase `json:"test_case"`
	Outcome  plan.Outcome   `json:"outcome"`
	Attempts int            `json:"attempts"`
}

// Passed reports whether the test case ended passing.
func (r TestResult) Passed() bool {
	return !r.Outcome.Failed()
}

// Result summarizes a finished run.
type Result struct {
	// Tests holds one entry per finished test case, grouped by pool in plan
	// order. Test cases a canceled run never finished are absent.
	Tests           []TestResult
	ElapsedMillis   int64
	OverallProgress float64
	FailedTests     int
	FailedTestRuns  int
	RetriesGranted  int
}

// Failed returns the test results that ended failing.
func (r *Result) Failed() []TestResult {
	var failed []TestResult
	for _, t := range r.Tests {
		if !t.Passed() {
			failed = append(failed, t)
		}
	}
	return failed
}

// Passed reports whether every test case finished passing.
func (r *Result) Passed() bool {
	return len(r.Failed()) == 0
}

// Runner drives one run of a plan. A Runner is single-use.
type Runner struct {
	cfg    Config
	rcfg   runnerConfig
	logger *logging.Logger
}

// New creates a Runner for cfg.
func New(cfg Config, opts ...Option) (*Runner, error) {
	if cfg.Plan == nil {
		return nil, missingField("Plan")
	}
	if cfg.Reporter == nil {
		return nil, missingField("Reporter")
	}
	if cfg.Executor == nil {
		return nil, missingField("Executor")
	}

	rc := runnerConfig{}
	for _, opt := range opts {
		opt(&rc)
	}
	if rc.logger == nil {
		rc.logger = logging.NopLogger()
	}

	return &Runner{cfg: cfg, rcfg: rc, logger: rc.logger}, nil
}

func missingField(name string) error {
	return errors.NewValidationError("runner: "+name+" is required").
		WithField(name).
		WithCause(errors.ErrInvalidInput)
}

type queued struct {
	tc       model.TestCase
	attempts int
}

// Run registers every pool with the reporter, executes all pools and stops
// the reporter clock. Cancelling ctx stops each pool before its next
// attempt; the partial result is returned with an error matching
// errors.ErrCanceled.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	pools := r.cfg.Plan.Model()
	trackers := make([]*progress.Tracker, len(pools))
	for i, p := range pools {
		trackers[i] = progress.NewTracker(len(r.cfg.Plan.Pools[i].Tests))
		if err := r.cfg.Reporter.AddPool(p, trackers[i]); err != nil {
			return nil, fmt.Errorf("registering pools: %w", err)
		}
	}

	if err := r.cfg.Reporter.Start(); err != nil {
		return nil, fmt.Errorf("starting run: %w", err)
	}

	workers := pool.New().WithContext(ctx)
	if r.rcfg.maxParallelPools > 0 {
		workers = workers.WithMaxGoroutines(r.rcfg.maxParallelPools)
	}

	// Each pool writes only its own slot.
	results := make([][]TestResult, len(pools))
	for i := range pools {
		workers.Go(func(ctx context.Context) error {
			res, err := r.runPool(ctx, pools[i], r.cfg.Plan.Pools[i].Tests, trackers[i])
			results[i] = res
			return err
		})
	}
	runErr := workers.Wait()

	if err := r.cfg.Reporter.Stop(); err != nil {
		return nil, fmt.Errorf("stopping run: %w", err)
	}

	result := &Result{
		ElapsedMillis:   r.cfg.Reporter.ElapsedMillis(),
		OverallProgress: r.cfg.Reporter.OverallProgress(),
		FailedTests:     r.cfg.Reporter.TotalFailedTests(),
		FailedTestRuns:  r.cfg.Reporter.TotalFailedTestRuns(),
		RetriesGranted:  r.cfg.Reporter.RetriesGranted(),
	}
	for _, res := range results {
		result.Tests = append(result.Tests, res...)
	}
	return result, runErr
}

// runPool works through one pool's queue. Failed test cases go to the back
// of the queue when a retry is granted.
func (r *Runner) runPool(ctx context.Context, p *model.Pool, tests []plan.Test, tracker *progress.Tracker) ([]TestResult, error) {
	logger := r.logger.WithPool(p.Name)
	started := time.Now()

	queue := make([]queued, 0, len(tests))
	for _, t := range tests {
		queue = append(queue, queued{tc: t.TestCase()})
	}

	results := make([]TestResult, 0, len(tests))
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			logger.Warn("pool canceled", "remaining", len(queue), "error", err)
			return results, errors.NewPoolError("pool canceled", errors.Join(errors.ErrCanceled, err)).
				WithPool(p.Name).
				WithSeverity(errors.SeverityWarning)
		}

		item := queue[0]
		queue = queue[1:]
		item.attempts++

		outcome := r.cfg.Executor.Execute(ctx, p, item.tc, item.attempts)
		if ctx.Err() != nil {
			// Attempts interrupted by cancellation are not accounted.
			item.attempts--
			queue = append([]queued{item}, queue...)
			continue
		}
		logger.Debug("test executed",
			"test", item.tc.String(),
			"attempt", item.attempts,
			"outcome", string(outcome),
		)

		if !outcome.Failed() {
			tracker.RecordCompletion()
			results = append(results, r.finish(p, item, outcome))
			r.publishProgress(p, tracker)
			continue
		}

		if outcome == plan.OutcomeRunFailed {
			tracker.RecordTestRunFailure()
		} else {
			tracker.RecordFailure()
		}

		granted, err := r.cfg.Reporter.FailAndRequestRetry(p, item.tc)
		if err != nil {
			return results, errors.NewPoolError("retry request failed", err).
				WithPool(p.Name).
				WithTestCase(item.tc.String())
		}

		if granted {
			queue = append(queue, item)
		} else {
			tracker.RecordCompletion()
			results = append(results, r.finish(p, item, outcome))
		}
		r.publishProgress(p, tracker)
	}

	logger.Info("pool finished",
		"tests", len(results),
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return results, nil
}

func (r *Runner) finish(p *model.Pool, item queued, outcome plan.Outcome) TestResult {
	res := TestResult{
		Pool:     p.Name,
		TestCase: item.tc,
		Outcome:  outcome,
		Attempts: item.attempts,
	}
	if r.cfg.Bus != nil {
		r.cfg.Bus.Publish(event.NewTestFinishedEvent(p.Name, item.tc.String(), res.Passed(), item.attempts))
	}
	return res
}

func (r *Runner) publishProgress(p *model.Pool, tracker *progress.Tracker) {
	if r.cfg.Bus == nil {
		return
	}
	s := tracker.Snapshot()
	r.cfg.Bus.Publish(event.NewPoolProgressEvent(
		p.Name,
		s.Planned,
		s.Completed,
		s.FailedTests+s.FailedTestRuns,
		s.Requeued,
		tracker.Progress(),
	))
}
