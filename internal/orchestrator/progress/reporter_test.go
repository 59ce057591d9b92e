package progress

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Iron-Ham/forkrunner/internal/errors"
	"github.com/Iron-Ham/forkrunner/internal/event"
	"github.com/Iron-Ham/forkrunner/internal/model"
)

// fakeClock is a manually advanced clock for elapsed-time tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestReporter(total, perCase int) *Reporter {
	return NewReporter(Config{TotalRetryQuota: total, PerTestCaseRetryQuota: perCase}, nil, nil)
}

func TestReporter_OverallProgressIsUnweightedMean(t *testing.T) {
	r := newTestReporter(0, 0)

	// Planned counts differ by orders of magnitude; each pool still weighs the same.
	idle := NewTracker(1000)
	half := NewTracker(2)
	half.RecordCompletion()
	done := NewTracker(7)
	for i := 0; i < 7; i++ {
		done.RecordCompletion()
	}

	r.AddPool(model.NewPool("idle"), idle)
	r.AddPool(model.NewPool("half"), half)
	r.AddPool(model.NewPool("done"), done)

	if got := r.OverallProgress(); got != 0.5 {
		t.Errorf("OverallProgress() = %v, want exactly 0.5", got)
	}
}

func TestReporter_OverallProgressWithoutPools(t *testing.T) {
	r := newTestReporter(0, 0)
	if got := r.OverallProgress(); got != 0 {
		t.Errorf("OverallProgress() = %v, want 0", got)
	}
}

func TestReporter_TotalsSumAllPools(t *testing.T) {
	r := newTestReporter(0, 0)
	a, b := NewTracker(5), NewTracker(5)
	a.RecordFailure()
	a.RecordFailure()
	a.RecordTestRunFailure()
	b.RecordFailure()
	b.RecordTestRunFailure()
	b.RecordTestRunFailure()

	r.AddPool(model.NewPool("a"), a)
	r.AddPool(model.NewPool("b"), b)

	if got := r.TotalFailedTests(); got != 3 {
		t.Errorf("TotalFailedTests() = %d, want 3", got)
	}
	if got := r.TotalFailedTestRuns(); got != 3 {
		t.Errorf("TotalFailedTestRuns() = %d, want 3", got)
	}
}

func TestReporter_TrackerForMissingPool(t *testing.T) {
	r := newTestReporter(5, 5)
	registered := model.NewPool("phones")
	r.AddPool(registered, NewTracker(1))

	if _, err := r.TrackerFor(registered); err != nil {
		t.Fatalf("TrackerFor(registered) error = %v", err)
	}

	_, err := r.TrackerFor(model.NewPool("phones"))
	if !errors.Is(err, errors.ErrPoolNotFound) {
		t.Fatalf("TrackerFor(unregistered) error = %v, want ErrPoolNotFound", err)
	}
	var nf *errors.NotFoundError
	if !errors.As(err, &nf) || nf.ResourceID != "phones" {
		t.Errorf("expected NotFoundError for pool phones, got %v", err)
	}
}

func TestReporter_RequestRetryMissingPoolConsumesNothing(t *testing.T) {
	r := newTestReporter(1, 5)
	stray := model.NewPool("stray")
	tc := model.NewTestCase("A", "b")

	r.RecordFailedTestCase(stray, tc)
	granted, err := r.RequestRetry(stray, tc)
	if err == nil || !errors.IsMissingPool(err) {
		t.Fatalf("RequestRetry() error = %v, want missing pool", err)
	}
	if granted {
		t.Error("RequestRetry() granted for unregistered pool")
	}
	if r.RemainingRetries() != 1 {
		t.Errorf("RemainingRetries() = %d, want 1", r.RemainingRetries())
	}

	if _, err := r.FailAndRequestRetry(stray, tc); !errors.IsMissingPool(err) {
		t.Errorf("FailAndRequestRetry() error = %v, want missing pool", err)
	}
	if r.TotalFailureCount(tc) != 1 {
		t.Errorf("FailAndRequestRetry must not record failures for unregistered pools")
	}
}

func TestReporter_TwoPoolScenario(t *testing.T) {
	r := newTestReporter(2, 1)
	a, b := model.NewPool("A"), model.NewPool("B")
	trackerA, trackerB := NewTracker(1), NewTracker(1)
	r.AddPool(a, trackerA)
	r.AddPool(b, trackerB)

	testT := model.NewTestCase("Suite", "T")
	testU := model.NewTestCase("Suite", "U")

	var got []bool
	request := func(pool *model.Pool, tc model.TestCase) {
		r.RecordFailedTestCase(pool, tc)
		granted, err := r.RequestRetry(pool, tc)
		if err != nil {
			t.Fatalf("RequestRetry(%s, %s) error = %v", pool, tc, err)
		}
		got = append(got, granted)
	}

	request(a, testT)
	if r.RemainingRetries() != 1 {
		t.Errorf("after first grant RemainingRetries() = %d, want 1", r.RemainingRetries())
	}
	request(b, testU)
	if r.RemainingRetries() != 0 {
		t.Errorf("after second grant RemainingRetries() = %d, want 0", r.RemainingRetries())
	}
	request(a, testT)

	want := []bool{true, true, false}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("grant %d = %v, want %v", i, got[i], want[i])
		}
	}
	if trackerA.Snapshot().Requeued != 1 || trackerB.Snapshot().Requeued != 1 {
		t.Errorf("requeued A=%d B=%d, want 1 and 1", trackerA.Snapshot().Requeued, trackerB.Snapshot().Requeued)
	}
	if r.FailureCountFor(a, testT) != 2 || r.FailureCountFor(b, testT) != 0 {
		t.Errorf("FailureCountFor: A=%d B=%d, want 2 and 0", r.FailureCountFor(a, testT), r.FailureCountFor(b, testT))
	}
}

func TestReporter_CeilingDenialKeepsGlobalBudget(t *testing.T) {
	r := newTestReporter(10, 1)
	pool := model.NewPool("phones")
	tracker := NewTracker(1)
	r.AddPool(pool, tracker)
	tc := model.NewTestCase("Flaky", "test")

	results := make([]bool, 0, 4)
	for i := 0; i < 4; i++ {
		granted, err := r.FailAndRequestRetry(pool, tc)
		if err != nil {
			t.Fatalf("FailAndRequestRetry() error = %v", err)
		}
		results = append(results, granted)
	}

	// A quota of 1 retries the first failure only.
	want := []bool{true, false, false, false}
	for i := range want {
		if results[i] != want[i] {
			t.Errorf("attempt %d granted = %v, want %v", i, results[i], want[i])
		}
	}
	if r.RemainingRetries() != 9 {
		t.Errorf("RemainingRetries() = %d, want 9", r.RemainingRetries())
	}
	if tracker.Snapshot().Requeued != 1 {
		t.Errorf("Requeued = %d, want 1", tracker.Snapshot().Requeued)
	}
}

func TestReporter_PerTestCaseQuotaBoundsRetries(t *testing.T) {
	tests := []struct {
		name        string
		perCase     int
		wantGranted int
	}{
		{"zero quota never retries", 0, 0},
		{"quota of one", 1, 1},
		{"quota of three", 3, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestReporter(10, tt.perCase)
			a, b := model.NewPool("phones"), model.NewPool("tablets")
			r.AddPool(a, NewTracker(1))
			r.AddPool(b, NewTracker(1))
			tc := model.NewTestCase("Flaky", "test")

			granted := 0
			for i := 0; i < 6; i++ {
				// Failures in either pool count against the same test case.
				pool := a
				if i%2 == 1 {
					pool = b
				}
				ok, err := r.FailAndRequestRetry(pool, tc)
				if err != nil {
					t.Fatalf("FailAndRequestRetry() error = %v", err)
				}
				if ok {
					granted++
				}
			}

			if granted != tt.wantGranted {
				t.Errorf("granted = %d, want %d", granted, tt.wantGranted)
			}
			if r.RemainingRetries() != 10-tt.wantGranted {
				t.Errorf("RemainingRetries() = %d, want %d", r.RemainingRetries(), 10-tt.wantGranted)
			}
		})
	}
}

func TestReporter_AddPoolKeepsFirstTracker(t *testing.T) {
	r := newTestReporter(1, 1)
	pool := model.NewPool("phones")
	first := NewTracker(2)
	if err := r.AddPool(pool, first); err != nil {
		t.Fatalf("AddPool() error = %v", err)
	}
	first.RecordCompletion()
	first.RecordFailure()

	if err := r.AddPool(pool, NewTracker(5)); !errors.Is(err, errors.ErrPoolAlreadyRegistered) {
		t.Fatalf("second AddPool() error = %v, want ErrPoolAlreadyRegistered", err)
	}

	got, err := r.TrackerFor(pool)
	if err != nil {
		t.Fatalf("TrackerFor() error = %v", err)
	}
	if got != first {
		t.Error("re-registering replaced the original tracker")
	}
	if r.OverallProgress() != 0.5 || r.TotalFailedTests() != 1 {
		t.Errorf("progress %v, failed %d; counters of the first tracker were lost", r.OverallProgress(), r.TotalFailedTests())
	}

	// A different pool with the same name is a distinct registration.
	if err := r.AddPool(model.NewPool("phones"), NewTracker(1)); err != nil {
		t.Errorf("AddPool(same name, new pool) error = %v", err)
	}
}

func TestReporter_ConcurrentRequestRetry(t *testing.T) {
	const quota = 30
	r := newTestReporter(quota, 1000)

	pools := make([]*model.Pool, 6)
	for i := range pools {
		pools[i] = model.NewPool(string(rune('a' + i)))
		r.AddPool(pools[i], NewTracker(100))
	}

	var grants atomic.Int64
	var wg sync.WaitGroup
	for _, pool := range pools {
		wg.Add(1)
		go func(pool *model.Pool) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				tc := model.NewTestCase("Suite", string(rune('A'+j%5)))
				granted, err := r.FailAndRequestRetry(pool, tc)
				if err != nil {
					t.Errorf("FailAndRequestRetry() error = %v", err)
					return
				}
				if granted {
					grants.Add(1)
				}
			}
		}(pool)
	}
	wg.Wait()

	if got := grants.Load(); got != quota {
		t.Errorf("grants = %d, want %d", got, quota)
	}
	if r.RemainingRetries() != 0 {
		t.Errorf("RemainingRetries() = %d, want 0", r.RemainingRetries())
	}
	requeued := 0
	for _, s := range r.PoolSummaries() {
		requeued += s.Counts.Requeued
	}
	if requeued != quota {
		t.Errorf("sum of Requeued = %d, want %d", requeued, quota)
	}
	if got := r.TotalFailureCount(model.NewTestCase("Suite", "A")); got != 60 {
		t.Errorf("TotalFailureCount(A) = %d, want 60", got)
	}
}

func TestReporter_StartStopErrors(t *testing.T) {
	r := newTestReporter(0, 0)

	if err := r.Stop(); !errors.Is(err, errors.ErrNotStarted) {
		t.Errorf("Stop() before Start() = %v, want ErrNotStarted", err)
	}
	if err := r.Start(); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	if err := r.Start(); !errors.Is(err, errors.ErrAlreadyStarted) {
		t.Errorf("second Start() = %v, want ErrAlreadyStarted", err)
	}
	if err := r.Stop(); err != nil {
		t.Fatalf("Stop() = %v", err)
	}
	if err := r.Stop(); !errors.Is(err, errors.ErrAlreadyStopped) {
		t.Errorf("second Stop() = %v, want ErrAlreadyStopped", err)
	}
}

func TestReporter_ElapsedMillis(t *testing.T) {
	clock := newFakeClock()
	r := newTestReporter(0, 0)
	r.now = clock.Now

	if got := r.ElapsedMillis(); got != 0 {
		t.Errorf("ElapsedMillis() before Start = %d, want 0", got)
	}

	if err := r.Start(); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	clock.Advance(150 * time.Millisecond)
	first := r.ElapsedMillis()
	clock.Advance(250 * time.Millisecond)
	second := r.ElapsedMillis()

	if first != 150 || second != 400 {
		t.Errorf("ElapsedMillis() = %d then %d, want 150 then 400", first, second)
	}

	if err := r.Stop(); err != nil {
		t.Fatalf("Stop() = %v", err)
	}
	clock.Advance(time.Hour)
	for i := 0; i < 3; i++ {
		if got := r.ElapsedMillis(); got != 400 {
			t.Errorf("ElapsedMillis() after Stop = %d, want 400", got)
		}
	}
}

func TestReporter_ElapsedMillisRealClockIsMonotonic(t *testing.T) {
	r := newTestReporter(0, 0)
	if err := r.Start(); err != nil {
		t.Fatalf("Start() = %v", err)
	}

	last := r.ElapsedMillis()
	for i := 0; i < 5; i++ {
		time.Sleep(2 * time.Millisecond)
		now := r.ElapsedMillis()
		if now < last {
			t.Fatalf("ElapsedMillis() decreased from %d to %d", last, now)
		}
		last = now
	}
	if last < 10 {
		t.Errorf("ElapsedMillis() = %d after sleeping at least 10ms", last)
	}
}

func TestReporter_PoolSummariesSortedByName(t *testing.T) {
	r := newTestReporter(0, 0)
	tablets := NewTracker(2)
	tablets.RecordCompletion()
	r.AddPool(model.NewPool("tablets"), tablets)
	r.AddPool(model.NewPool("phones"), NewTracker(3))

	summaries := r.PoolSummaries()
	if len(summaries) != 2 {
		t.Fatalf("len(PoolSummaries()) = %d, want 2", len(summaries))
	}
	if summaries[0].Pool.Name != "phones" || summaries[1].Pool.Name != "tablets" {
		t.Errorf("order = %s, %s", summaries[0].Pool.Name, summaries[1].Pool.Name)
	}
	if summaries[1].Progress != 0.5 || summaries[1].Counts.Completed != 1 {
		t.Errorf("tablets summary = %+v", summaries[1])
	}
}

func TestReporter_PublishesLifecycleEvents(t *testing.T) {
	bus := event.NewBus(nil)
	r := NewReporter(Config{TotalRetryQuota: 1, PerTestCaseRetryQuota: 0}, nil, bus)
	pool := model.NewPool("phones")
	r.AddPool(pool, NewTracker(1))

	var types []string
	bus.SubscribeAll(func(e event.Event) {
		types = append(types, e.EventType())
	})

	_ = r.Start()
	_, _ = r.FailAndRequestRetry(pool, model.NewTestCase("A", "b"))
	_ = r.Stop()

	want := []string{event.TypeRunStarted, event.TypeRetryRequested, event.TypeRunStopped}
	if len(types) != len(want) {
		t.Fatalf("events = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, types[i], want[i])
		}
	}
}
