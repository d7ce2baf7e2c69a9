package harness

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// SuiteResult contains results from running every scenario in a directory.
type SuiteResult struct {
	TotalScenarios int               `json:"total_scenarios"`
	Passed         int               `json:"passed"`
	Failed         int               `json:"failed"`
	Failures       []ScenarioFailure `json:"failures,omitempty"`
}

// ScenarioFailure represents a scenario that failed to load, run, or pass.
type ScenarioFailure struct {
	Scenario string `json:"scenario"`
	Path     string `json:"path"`
	Error    string `json:"error"`
}

// RunDir loads and runs every *.yaml scenario under dir in name order.
// Scenarios that fail to load or run count as failures rather than
// aborting the suite.
func RunDir(dir string, opts ...Option) (*SuiteResult, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("list scenarios in %s: %w", dir, err)
	}
	sort.Strings(paths)

	suite := &SuiteResult{}
	for _, path := range paths {
		suite.TotalScenarios++

		scenario, err := LoadScenario(path)
		if err != nil {
			suite.fail(filepath.Base(path), path, err.Error())
			continue
		}

		result, err := Run(scenario, opts...)
		if err != nil {
			suite.fail(scenario.Name, path, err.Error())
			continue
		}
		if !result.Pass {
			suite.fail(scenario.Name, path, strings.Join(result.Errors, "\n"))
			continue
		}
		suite.Passed++
	}
	return suite, nil
}

func (s *SuiteResult) fail(name, path, msg string) {
	s.Failed++
	s.Failures = append(s.Failures, ScenarioFailure{Scenario: name, Path: path, Error: msg})
}
