package runner

import (
	"context"
	"testing"

	"github.com/Iron-Ham/forkrunner/internal/model"
	"github.com/Iron-Ham/forkrunner/internal/plan"
)

func TestScriptedExecutor(t *testing.T) {
	p := &plan.Plan{Pools: []plan.Pool{
		{Name: "phones", Tests: []plan.Test{
			{Class: "A", Method: "b", Outcomes: []plan.Outcome{plan.OutcomeFail, plan.OutcomeRunFailed}},
		}},
		{Name: "tablets", Tests: []plan.Test{
			{Class: "A", Method: "b"},
		}},
	}}
	exec := NewScriptedExecutor(p)
	phones, tablets := model.NewPool("phones"), model.NewPool("tablets")
	tc := model.NewTestCase("A", "b")
	ctx := context.Background()

	tests := []struct {
		name    string
		pool    *model.Pool
		tc      model.TestCase
		attempt int
		want    plan.Outcome
	}{
		{"first scripted attempt", phones, tc, 1, plan.OutcomeFail},
		{"second scripted attempt", phones, tc, 2, plan.OutcomeRunFailed},
		{"script exhausted", phones, tc, 3, plan.OutcomePass},
		{"scripts are per pool", tablets, tc, 1, plan.OutcomePass},
		{"unknown test", phones, model.NewTestCase("Z", "z"), 1, plan.OutcomePass},
		{"unknown pool", model.NewPool("watches"), tc, 1, plan.OutcomePass},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exec.Execute(ctx, tt.pool, tt.tc, tt.attempt); got != tt.want {
				t.Errorf("Execute() = %q, want %q", got, tt.want)
			}
		})
	}

	if exec.Calls() != len(tests) {
		t.Errorf("Calls() = %d, want %d", exec.Calls(), len(tests))
	}
}

func TestScriptedExecutor_CanceledContext(t *testing.T) {
	p := &plan.Plan{Pools: []plan.Pool{{Name: "phones"}}}
	exec := NewScriptedExecutor(p)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if got := exec.Execute(ctx, model.NewPool("phones"), model.NewTestCase("A", "b"), 1); got != plan.OutcomeRunFailed {
		t.Errorf("Execute() = %q, want run_failed", got)
	}
}
