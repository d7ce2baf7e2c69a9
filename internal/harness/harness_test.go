package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func step(op string, args map[string]any, expect *Expect) Step {
	return Step{Op: op, Args: args, Expect: expect}
}

func expectOK(result map[string]any) *Expect {
	return &Expect{Case: CaseOK, Result: result}
}

func TestRun_Passes(t *testing.T) {
	scenario := &Scenario{
		Name:        "add_then_remove",
		Description: "Partial removal keeps the record",
		Steps: []Step{
			step("add", map[string]any{"name": "Widget", "quantity": 5}, expectOK(map[string]any{"quantity": 5, "created": true})),
			step("add", map[string]any{"name": "Widget", "quantity": 3}, expectOK(map[string]any{"quantity": 8, "created": false})),
			step("remove", map[string]any{"name": "Widget", "quantity": 2}, expectOK(map[string]any{"remaining": 6, "deleted": false, "low_stock": true})),
		},
		Assertions: []Assertion{
			{Type: AssertHistoryCount, Name: "Widget", Action: "ADD", Count: 2},
			{Type: AssertFinalState, Table: "items", Where: map[string]any{"name": "Widget"}, Expect: map[string]any{"quantity": 6}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Errors)

	require.Len(t, result.Trace, 3)
	for i, ev := range result.Trace {
		assert.Equal(t, int64(i+1), ev.Seq)
		assert.Equal(t, "step", ev.Phase)
	}

	require.Len(t, result.Records, 1)
	assert.Equal(t, "Widget", result.Records[0]["name"])
	assert.Equal(t, int64(6), result.Records[0]["quantity"])

	require.Len(t, result.History, 3)
	assert.Equal(t, "ADD", result.History[0]["action"])
	assert.Equal(t, "REMOVE", result.History[2]["action"])
	assert.Equal(t, int64(2), result.History[2]["quantity"])
}

func TestRun_ExpectMismatch(t *testing.T) {
	scenario := &Scenario{
		Name:        "mismatch",
		Description: "Wrong expectations are reported, not fatal",
		Steps: []Step{
			step("add", map[string]any{"name": "Widget", "quantity": 5}, expectOK(map[string]any{"quantity": 6})),
			step("get", map[string]any{"name": "Gadget"}, expectOK(nil)),
			step("get", map[string]any{"name": "Widget"}, expectOK(map[string]any{"colour": "red"})),
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 3)
	assert.Contains(t, result.Errors[0], `steps[0] add: result "quantity" = 5, expected 6`)
	assert.Contains(t, result.Errors[1], "steps[1] get: expected case ok, got NOT_FOUND")
	assert.Contains(t, result.Errors[2], `steps[2] get: result has no field "colour"`)
}

func TestRun_FailureCases(t *testing.T) {
	scenario := &Scenario{
		Name:        "failures",
		Description: "Refusals are outcomes with their own case",
		Setup: []Step{
			step("add", map[string]any{"name": "Widget", "quantity": 5}, nil),
		},
		Steps: []Step{
			step("remove", map[string]any{"name": "Widget", "quantity": 9},
				&Expect{Case: "INSUFFICIENT_QUANTITY", Result: map[string]any{"available": 5}}),
			step("remove", map[string]any{"name": "Gadget", "quantity": 1}, &Expect{Case: "NOT_FOUND"}),
			step("add", map[string]any{"name": "Widget", "quantity": -1}, &Expect{Case: "INVALID_ARGUMENT"}),
			step("set_price", map[string]any{"name": "Widget", "price": "0"}, &Expect{Case: "INVALID_ARGUMENT"}),
			step("set_price", map[string]any{"name": "Gadget", "price": 2}, &Expect{Case: "NOT_FOUND"}),
			step("delete", map[string]any{"name": "Gadget"}, &Expect{Case: "NOT_FOUND"}),
		},
		Assertions: []Assertion{
			{Type: AssertHistoryCount, Name: "Widget", Action: "REMOVE", Count: 0},
			{Type: AssertFinalState, Table: "items", Where: map[string]any{"name": "Widget"}, Expect: map[string]any{"quantity": 5}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Trace, 7)
	assert.Equal(t, "setup", result.Trace[0].Phase)
	assert.Equal(t, "INVALID_ARGUMENT", result.Trace[3].Case)
	assert.Nil(t, result.Trace[3].Result)
}

func TestRun_SetupFailureAborts(t *testing.T) {
	scenario := &Scenario{
		Name:        "bad_setup",
		Description: "Setup must succeed",
		Setup: []Step{
			step("remove", map[string]any{"name": "Widget", "quantity": 1}, nil),
		},
		Steps: []Step{
			step("get", map[string]any{"name": "Widget"}, nil),
		},
	}

	result, err := Run(scenario)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "setup step 0 (remove): got case NOT_FOUND")
}

func TestRun_MalformedArgsAbort(t *testing.T) {
	tests := []struct {
		name    string
		args    map[string]any
		wantErr string
	}{
		{"missing name", map[string]any{"quantity": 1}, `arg "name" is required`},
		{"name not a string", map[string]any{"name": 7, "quantity": 1}, `arg "name" must be a string`},
		{"fractional quantity", map[string]any{"name": "Widget", "quantity": 1.5}, `arg "quantity" must be a whole number`},
		{"attributes not a mapping", map[string]any{"name": "Widget", "quantity": 1, "attributes": "red"}, `arg "attributes" must be a mapping`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scenario := &Scenario{
				Name:        "malformed",
				Description: "Malformed args",
				Steps:       []Step{step("add", tt.args, nil)},
			}
			_, err := Run(scenario)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRun_Prices(t *testing.T) {
	scenario := &Scenario{
		Name:        "prices",
		Description: "Total prices are stored per unit",
		Setup: []Step{
			step("add", map[string]any{"name": "Widget", "quantity": 4}, nil),
		},
		Steps: []Step{
			step("set_price", map[string]any{"name": "Widget", "price": "10", "total": true}, expectOK(nil)),
			step("get_price", map[string]any{"name": "Widget"},
				expectOK(map[string]any{"price": "2.5", "supplier": nil, "is_unit_price": true})),
			step("get_price", map[string]any{"name": "Widget", "total": true},
				expectOK(map[string]any{"price": "10", "is_unit_price": false})),
			step("delete_price", map[string]any{"name": "Widget", "supplier": nil}, expectOK(nil)),
			step("get_price", map[string]any{"name": "Widget"}, &Expect{Case: "NOT_FOUND"}),
			step("cheapest", map[string]any{"name": "Widget"}, &Expect{Case: "NOT_FOUND"}),
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_LowStockThresholdArg(t *testing.T) {
	scenario := &Scenario{
		Name:        "low_stock",
		Description: "Explicit thresholds override the configured one",
		Setup: []Step{
			step("add", map[string]any{"name": "Bolt", "quantity": 30}, nil),
			step("add", map[string]any{"name": "Nut", "quantity": 3}, nil),
		},
		Steps: []Step{
			step("low_stock", map[string]any{}, expectOK(map[string]any{"names": []any{"Nut"}})),
			step("low_stock", map[string]any{"threshold": 50}, expectOK(map[string]any{"names": []any{"Bolt", "Nut"}})),
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_WithLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	scenario := &Scenario{
		Name:        "logged",
		Description: "Steps are logged",
		Steps: []Step{
			step("add", map[string]any{"name": "Widget", "quantity": 1}, nil),
		},
	}

	_, err := Run(scenario, WithLogger(zap.New(core)))
	require.NoError(t, err)

	stepLogs := logs.FilterMessage("step completed").All()
	require.Len(t, stepLogs, 1)
	assert.Equal(t, "add", stepLogs[0].ContextMap()["op"])
}

func TestRun_ScenarioFiles(t *testing.T) {
	for _, name := range []string{"widget_add_remove", "widget_cheapest_supplier", "group_lifecycle"} {
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario("testdata/scenarios/" + name + ".yaml")
			require.NoError(t, err)

			result, err := Run(scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestValuesEqual(t *testing.T) {
	assert.True(t, valuesEqual(int64(5), 5))
	assert.True(t, valuesEqual("3", "3"))
	assert.True(t, valuesEqual(nil, nil))
	assert.True(t, valuesEqual([]any{"Nut"}, []any{"Nut"}))
	assert.True(t, valuesEqual(map[string]any{"a": int64(1)}, map[string]any{"a": 1}))

	assert.False(t, valuesEqual(int64(5), "5"))
	assert.False(t, valuesEqual(int64(1), true))
	assert.False(t, valuesEqual(nil, ""))
	assert.False(t, valuesEqual(struct{}{}, 1))
}
