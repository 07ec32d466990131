package harness

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/kpfister44/Kinnect-sub000/internal/engine"
)

// TraceSnapshot is the golden-file shape: the scenario name plus its full
// trace. Aliased post ids and sequential request ids keep it byte-stable.
type TraceSnapshot struct {
	ScenarioName string              `json:"scenario_name"`
	Trace        []engine.TraceEvent `json:"trace"`
}

// RunWithGolden executes a scenario and compares its trace against
// testdata/golden/{name}.golden. Regenerate goldens with:
//
//	go test ./internal/harness -update
//
// The scenario's own assertions are evaluated too; a failed assertion fails
// the test before the golden comparison.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	if !result.Pass {
		return fmt.Errorf("scenario %s failed:\n%v", scenario.Name, result.Errors)
	}

	AssertGolden(t, scenario.Name, result)
	return nil
}

// AssertGolden compares an already-obtained result's trace against the named
// golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) {
	t.Helper()

	snapshot := TraceSnapshot{ScenarioName: scenarioName, Trace: result.Trace}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		t.Fatalf("marshal trace snapshot: %v", err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
}
