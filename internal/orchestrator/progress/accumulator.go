package progress

import (
	"sync"
	"sync/atomic"

	"github.com/Iron-Ham/forkrunner/internal/model"
)

type poolTestCase struct {
	pool *model.Pool
	test model.TestCase
}

// FailureAccumulator counts failures per (pool, test case) and per test case
// across all pools. Counts only grow. It is safe for concurrent use; entries
// are created on the first recorded failure.
type FailureAccumulator struct {
	byPool sync.Map // poolTestCase -> *atomic.Int64
	byTest sync.Map // model.TestCase -> *atomic.Int64
}

// NewFailureAccumulator creates an empty accumulator.
func NewFailureAccumulator() *FailureAccumulator {
	return &FailureAccumulator{}
}

// Record adds one failure of tc in pool.
func (a *FailureAccumulator) Record(pool *model.Pool, tc model.TestCase) {
	counter(&a.byPool, poolTestCase{pool: pool, test: tc}).Add(1)
	counter(&a.byTest, tc).Add(1)
}

// Count returns the failures of tc summed over every pool.
func (a *FailureAccumulator) Count(tc model.TestCase) int {
	return load(&a.byTest, tc)
}

// PoolCount returns the failures of tc in pool.
func (a *FailureAccumulator) PoolCount(pool *model.Pool, tc model.TestCase) int {
	return load(&a.byPool, poolTestCase{pool: pool, test: tc})
}

func counter(m *sync.Map, key any) *atomic.Int64 {
	if v, ok := m.Load(key); ok {
		return v.(*atomic.Int64)
	}
	v, _ := m.LoadOrStore(key, new(atomic.Int64))
	return v.(*atomic.Int64)
}

func load(m *sync.Map, key any) int {
	v, ok := m.Load(key)
	if !ok {
		return 0
	}
	return int(v.(*atomic.Int64).Load())
}
