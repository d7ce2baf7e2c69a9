package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/stockpile/internal/model"
)

// Snapshot captures a scenario execution for golden comparison: the steps
// with their outcomes, the final records, and the audit trail. Timestamps
// are left out.
type Snapshot struct {
	ScenarioName string
	Trace        []StepEvent
	Records      []map[string]any
	History      []map[string]any
}

// toCanonicalMap converts a Snapshot to plain values for canonical JSON.
func (s *Snapshot) toCanonicalMap() map[string]any {
	steps := make([]any, len(s.Trace))
	for i, ev := range s.Trace {
		step := map[string]any{
			"seq":   ev.Seq,
			"phase": ev.Phase,
			"op":    ev.Op,
			"case":  ev.Case,
		}
		if ev.Args != nil {
			step["args"] = ev.Args
		}
		if ev.Result != nil {
			step["result"] = ev.Result
		}
		steps[i] = step
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"steps":         steps,
		"records":       toList(s.Records),
		"history":       toList(s.History),
	}
}

func toList(rows []map[string]any) []any {
	out := make([]any, len(rows))
	for i, r := range rows {
		out[i] = r
	}
	return out
}

// MarshalSnapshot renders result as canonical JSON.
func MarshalSnapshot(name string, result *Result) ([]byte, error) {
	snap := Snapshot{
		ScenarioName: name,
		Trace:        result.Trace,
		Records:      result.Records,
		History:      result.History,
	}
	return model.MarshalCanonical(snap.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := MarshalSnapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
