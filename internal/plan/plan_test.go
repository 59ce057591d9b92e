package plan

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Iron-Ham/forkrunner/internal/errors"
	"github.com/Iron-Ham/forkrunner/internal/model"
)

const samplePlan = `
pools:
  - name: phones
    devices: [emulator-5554, emulator-5556]
    tests:
      - class: com.example.LoginTest
        method: testLogin
        outcomes: [fail, pass]
      - class: com.example.LoginTest
        method: testLogout
  - name: tablets
    devices: [emulator-5558]
    tests:
      - class: com.example.LoginTest
        method: testLogin
        outcomes: [run_failed, fail]
`

func TestParse(t *testing.T) {
	p, err := Parse([]byte(samplePlan))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if len(p.Pools) != 2 {
		t.Fatalf("len(Pools) = %d, want 2", len(p.Pools))
	}
	if p.Pools[0].Name != "phones" || len(p.Pools[0].Devices) != 2 {
		t.Errorf("Pools[0] = %+v", p.Pools[0])
	}
	if p.TestCount() != 3 {
		t.Errorf("TestCount() = %d, want 3", p.TestCount())
	}

	login := p.Pools[0].Tests[0]
	if got := login.TestCase(); got != model.NewTestCase("com.example.LoginTest", "testLogin") {
		t.Errorf("TestCase() = %v", got)
	}
	if got := p.Pools[1].Tests[0].TestCase(); got != login.TestCase() {
		t.Errorf("same class and method in two pools should be one identity, got %v and %v", got, login.TestCase())
	}
}

func TestTest_OutcomeAt(t *testing.T) {
	test := Test{Class: "A", Method: "b", Outcomes: []Outcome{OutcomeFail, OutcomeRunFailed}}

	tests := []struct {
		attempt int
		want    Outcome
	}{
		{0, OutcomePass},
		{1, OutcomeFail},
		{2, OutcomeRunFailed},
		{3, OutcomePass},
		{10, OutcomePass},
	}
	for _, tt := range tests {
		if got := test.OutcomeAt(tt.attempt); got != tt.want {
			t.Errorf("OutcomeAt(%d) = %q, want %q", tt.attempt, got, tt.want)
		}
	}

	if got := (Test{Class: "A", Method: "b"}).OutcomeAt(1); got != OutcomePass {
		t.Errorf("unscripted test OutcomeAt(1) = %q, want pass", got)
	}
}

func TestOutcome_Failed(t *testing.T) {
	tests := []struct {
		outcome Outcome
		want    bool
	}{
		{OutcomePass, false},
		{OutcomeFail, true},
		{OutcomeRunFailed, true},
	}
	for _, tt := range tests {
		if got := tt.outcome.Failed(); got != tt.want {
			t.Errorf("%q.Failed() = %v, want %v", tt.outcome, got, tt.want)
		}
	}
}

func TestPlan_Validate(t *testing.T) {
	tests := []struct {
		name      string
		yaml      string
		wantField string
	}{
		{
			name:      "no pools",
			yaml:      "pools: []\n",
			wantField: "pools",
		},
		{
			name:      "empty pool name",
			yaml:      "pools:\n  - name: \"\"\n",
			wantField: "pools[0].name",
		},
		{
			name:      "duplicate pool name",
			yaml:      "pools:\n  - name: a\n  - name: a\n",
			wantField: "pools[1].name",
		},
		{
			name:      "empty class",
			yaml:      "pools:\n  - name: a\n    tests:\n      - method: m\n",
			wantField: "pools[0].tests[0].class",
		},
		{
			name:      "empty method",
			yaml:      "pools:\n  - name: a\n    tests:\n      - class: C\n",
			wantField: "pools[0].tests[0].method",
		},
		{
			name:      "unknown outcome",
			yaml:      "pools:\n  - name: a\n    tests:\n      - class: C\n        method: m\n        outcomes: [pass, flaky]\n",
			wantField: "pools[0].tests[0].outcomes[1]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, errors.ErrPlanInvalid) {
				t.Errorf("error should match ErrPlanInvalid: %v", err)
			}
			var verr *errors.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("error type = %T, want *errors.ValidationError", err)
			}
			if verr.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", verr.Field, tt.wantField)
			}
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty document", ""},
		{"unknown key", "pools:\n  - name: a\n    retries: 3\n"},
		{"wrong shape", "pools: phones\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, errors.ErrPlanInvalid) {
				t.Errorf("error should match ErrPlanInvalid: %v", err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	t.Run("reads file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "plan.yaml")
		if err := os.WriteFile(path, []byte(samplePlan), 0o644); err != nil {
			t.Fatal(err)
		}

		p, err := Load(path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if len(p.Pools) != 2 {
			t.Errorf("len(Pools) = %d, want 2", len(p.Pools))
		}
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		if !errors.Is(err, errors.ErrPlanNotFound) {
			t.Fatalf("Load() error = %v, want ErrPlanNotFound", err)
		}
		if !strings.Contains(err.Error(), "nope.yaml") {
			t.Errorf("error should name the path: %v", err)
		}
	})
}

func TestPlan_Model(t *testing.T) {
	p, err := Parse([]byte(samplePlan))
	if err != nil {
		t.Fatal(err)
	}

	pools := p.Model()
	if len(pools) != 2 {
		t.Fatalf("len(Model()) = %d, want 2", len(pools))
	}
	if pools[0].Name != "phones" || pools[1].Name != "tablets" {
		t.Errorf("Model() order = [%s %s]", pools[0], pools[1])
	}
	if pools[0] == pools[1] {
		t.Error("each pool must be a distinct identity")
	}
	if len(pools[1].Devices) != 1 || pools[1].Devices[0] != "emulator-5558" {
		t.Errorf("Devices = %v", pools[1].Devices)
	}
}
