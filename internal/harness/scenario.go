package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario: setup steps, a flow of
// operations with expected outcomes, and assertions on the final store.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Setup establishes initial state. Every setup step must succeed.
	Setup []Step `yaml:"setup,omitempty"`

	// Steps is the main flow. Each step may carry an expect clause.
	Steps []Step `yaml:"steps"`

	// Assertions validate the audit trail and final state.
	// Supported types: history_contains, history_order, history_count, final_state
	Assertions []Assertion `yaml:"assertions"`
}

// Step is a single engine operation.
type Step struct {
	// Op names the operation (see package documentation).
	Op string `yaml:"op"`

	// Args contains the operation arguments.
	Args map[string]any `yaml:"args"`

	// Expect specifies the expected outcome.
	// If nil, the outcome is recorded but not validated.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect specifies expected step behavior.
type Expect struct {
	// Case is "ok" or the expected model.Code.
	Case string `yaml:"case"`

	// Result contains expected result fields. Subset match.
	Result map[string]any `yaml:"result,omitempty"`
}

// Assertion validates the audit trail or final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Name is the record name (history_contains, history_order, history_count).
	Name string `yaml:"name,omitempty"`

	// Action is the audit action (history_contains, history_count).
	Action string `yaml:"action,omitempty"`

	// Actions is the expected action order (history_order).
	Actions []string `yaml:"actions,omitempty"`

	// Count is the expected number of entries (history_count).
	Count int `yaml:"count,omitempty"`

	// Table is the table name (final_state).
	Table string `yaml:"table,omitempty"`

	// Where specifies column filters (final_state).
	Where map[string]any `yaml:"where,omitempty"`

	// Expect contains expected field values (history_contains, final_state).
	// Subset match.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Absent asserts that no row matches (final_state).
	Absent bool `yaml:"absent,omitempty"`
}

// Assertion type constants.
const (
	AssertHistoryContains = "history_contains"
	AssertHistoryOrder    = "history_order"
	AssertHistoryCount    = "history_count"
	AssertFinalState      = "final_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict decoding catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Setup {
		if err := validateStep(fmt.Sprintf("setup[%d]", i), step); err != nil {
			return err
		}
	}
	for i, step := range s.Steps {
		if err := validateStep(fmt.Sprintf("steps[%d]", i), step); err != nil {
			return err
		}
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(where string, step Step) error {
	if step.Op == "" {
		return fmt.Errorf("%s: op is required", where)
	}
	if _, ok := operations[step.Op]; !ok {
		return fmt.Errorf("%s: unknown op %q", where, step.Op)
	}
	if step.Expect != nil && step.Expect.Case == "" {
		return fmt.Errorf("%s.expect: case is required", where)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertHistoryContains:
		if a.Name == "" || a.Action == "" {
			return fmt.Errorf("assertions[%d]: name and action are required for history_contains", index)
		}
	case AssertHistoryOrder:
		if a.Name == "" || len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: name and actions are required for history_order", index)
		}
	case AssertHistoryCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for history_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for history_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if !a.Absent && len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
