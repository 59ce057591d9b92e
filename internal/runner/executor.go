package runner

import (
	"context"
	"sync"

	"github.com/Iron-Ham/forkrunner/internal/model"
	"github.com/Iron-Ham/forkrunner/internal/plan"
)

// Executor dispatches one attempt of a test case to a pool's devices and
// reports the outcome. attempt counts from 1.
//
// Implementations are called concurrently for different pools but never
// concurrently for the same pool.
type Executor interface {
	Execute(ctx context.Context, pool *model.Pool, tc model.TestCase, attempt int) plan.Outcome
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, pool *model.Pool, tc model.TestCase, attempt int) plan.Outcome

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, pool *model.Pool, tc model.TestCase, attempt int) plan.Outcome {
	return f(ctx, pool, tc, attempt)
}

// ScriptedExecutor replays the outcomes scripted in a plan. Test cases the
// plan does not mention pass.
type ScriptedExecutor struct {
	scripts map[string]map[model.TestCase]plan.Test

	mu    sync.Mutex
	calls int
}

// NewScriptedExecutor builds an executor replaying p.
func NewScriptedExecutor(p *plan.Plan) *ScriptedExecutor {
	scripts := make(map[string]map[model.TestCase]plan.Test, len(p.Pools))
	for _, pool := range p.Pools {
		tests := make(map[model.TestCase]plan.Test, len(pool.Tests))
		for _, test := range pool.Tests {
			tests[test.TestCase()] = test
		}
		scripts[pool.Name] = tests
	}
	return &ScriptedExecutor{scripts: scripts}
}

// Execute returns the outcome scripted for the attempt. A canceled context
// reports the attempt as a failed run.
func (e *ScriptedExecutor) Execute(ctx context.Context, pool *model.Pool, tc model.TestCase, attempt int) plan.Outcome {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	if ctx.Err() != nil {
		return plan.OutcomeRunFailed
	}
	test, ok := e.scripts[pool.Name][tc]
	if !ok {
		return plan.OutcomePass
	}
	return test.OutcomeAt(attempt)
}

// Calls returns how many attempts were executed.
func (e *ScriptedExecutor) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}
