// Package plan loads run plans: the pools of a run, the devices in each pool
// and the test cases each pool executes.
//
// A plan is a YAML document:
//
//	pools:
//	  - name: phones
//	    devices: [emulator-5554, emulator-5556]
//	    tests:
//	      - class: com.example.LoginTest
//	        method: testLogin
//	        outcomes: [fail, pass]
//
// Outcomes script what each successive attempt of a test case reports. Once
// the list is exhausted every further attempt passes, so a test case with no
// outcomes passes on its first attempt.
package plan

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/Iron-Ham/forkrunner/internal/errors"
	"github.com/Iron-Ham/forkrunner/internal/model"
	"gopkg.in/yaml.v3"
)

// Outcome is the result an attempt of a test case reports.
type Outcome string

const (
	// OutcomePass means the test case passed.
	OutcomePass Outcome = "pass"
	// OutcomeFail means the test case ran and failed.
	OutcomeFail Outcome = "fail"
	// OutcomeRunFailed means the test run itself broke, for example because
	// the device went away, before the test case could report a result.
	OutcomeRunFailed Outcome = "run_failed"
)

// ValidOutcomes returns the outcomes a plan may script.
func ValidOutcomes() []Outcome {
	return []Outcome{OutcomePass, OutcomeFail, OutcomeRunFailed}
}

// IsValid reports whether o is a known outcome.
func (o Outcome) IsValid() bool {
	switch o {
	case OutcomePass, OutcomeFail, OutcomeRunFailed:
		return true
	default:
		return false
	}
}

// Failed reports whether o should be handled as a failure.
func (o Outcome) Failed() bool {
	return o == OutcomeFail || o == OutcomeRunFailed
}

// Plan is the full description of a run.
type Plan struct {
	Pools []Pool `yaml:"pools"`
}

// Pool describes one group of devices and the tests it runs.
type Pool struct {
	Name    string   `yaml:"name"`
	Devices []string `yaml:"devices,omitempty"`
	Tests   []Test   `yaml:"tests"`
}

// Test is one test case and its scripted outcomes.
type Test struct {
	Class    string    `yaml:"class"`
	Method   string    `yaml:"method"`
	Outcomes []Outcome `yaml:"outcomes,omitempty"`
}

// TestCase returns the identity of t.
func (t Test) TestCase() model.TestCase {
	return model.NewTestCase(t.Class, t.Method)
}

// OutcomeAt returns the scripted outcome of the given attempt, counting from 1.
// Attempts past the end of the script pass.
func (t Test) OutcomeAt(attempt int) Outcome {
	if attempt < 1 || attempt > len(t.Outcomes) {
		return OutcomePass
	}
	return t.Outcomes[attempt-1]
}

// Load reads and validates the plan at path.
func Load(path string) (*Plan, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError("plan", path).WithCause(errors.ErrPlanNotFound)
		}
		return nil, fmt.Errorf("opening plan: %w", err)
	}
	defer func() { _ = f.Close() }()

	return Decode(f)
}

// Parse decodes and validates a plan held in memory.
func Parse(data []byte) (*Plan, error) {
	return Decode(bytes.NewReader(data))
}

// Decode reads a plan from r and validates it. Unknown keys are rejected.
func Decode(r io.Reader) (*Plan, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var p Plan
	if err := dec.Decode(&p); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.NewValidationError("plan is empty").WithCause(errors.ErrPlanInvalid)
		}
		return nil, errors.NewValidationError("parsing plan").WithCause(fmt.Errorf("%w: %v", errors.ErrPlanInvalid, err))
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks the plan is runnable. The returned error matches
// errors.ErrPlanInvalid.
func (p *Plan) Validate() error {
	if len(p.Pools) == 0 {
		return invalid("pools", nil, "plan must define at least one pool")
	}

	seen := make(map[string]bool, len(p.Pools))
	for i, pool := range p.Pools {
		field := fmt.Sprintf("pools[%d]", i)
		if pool.Name == "" {
			return invalid(field+".name", nil, "pool name cannot be empty")
		}
		if seen[pool.Name] {
			return invalid(field+".name", pool.Name, "duplicate pool name")
		}
		seen[pool.Name] = true

		for j, test := range pool.Tests {
			tfield := fmt.Sprintf("%s.tests[%d]", field, j)
			if test.Class == "" {
				return invalid(tfield+".class", nil, "test class cannot be empty")
			}
			if test.Method == "" {
				return invalid(tfield+".method", nil, "test method cannot be empty")
			}
			for k, o := range test.Outcomes {
				if !o.IsValid() {
					return invalid(fmt.Sprintf("%s.outcomes[%d]", tfield, k), string(o),
						fmt.Sprintf("unknown outcome (valid: %v)", ValidOutcomes()))
				}
			}
		}
	}
	return nil
}

// TestCount returns the number of test cases over all pools.
func (p *Plan) TestCount() int {
	n := 0
	for _, pool := range p.Pools {
		n += len(pool.Tests)
	}
	return n
}

// Model returns the runtime pool for every plan pool, in plan order.
func (p *Plan) Model() []*model.Pool {
	pools := make([]*model.Pool, len(p.Pools))
	for i, pool := range p.Pools {
		pools[i] = model.NewPool(pool.Name, pool.Devices...)
	}
	return pools
}

func invalid(field string, value any, message string) error {
	err := errors.NewValidationError(message).WithField(field).WithCause(errors.ErrPlanInvalid)
	if value != nil {
		err = err.WithValue(value)
	}
	return err
}
