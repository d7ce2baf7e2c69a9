package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/roach88/stockpile/internal/config"
	"github.com/roach88/stockpile/internal/inventory"
	"github.com/roach88/stockpile/internal/records"
	"github.com/roach88/stockpile/internal/store"
	"github.com/roach88/stockpile/internal/testutil"
)

// setupEngine opens an in-memory engine holding Widget (ADD 5, ADD 3,
// REMOVE 2) in group tools, and Gadget (ADD 1).
func setupEngine(t *testing.T) *AssertionContext {
	t.Helper()
	ctx := context.Background()

	cfg := config.Default()
	cfg.Store.Path = store.MemoryPath
	eng, err := inventory.Open(ctx, cfg, zap.NewNop(), inventory.WithClock(testutil.NewFakeClock()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	_, err = eng.Records().AddQuantity(ctx, "Widget", 5, records.WithGroup("tools"))
	require.NoError(t, err)
	_, err = eng.Records().AddQuantity(ctx, "Widget", 3)
	require.NoError(t, err)
	_, err = eng.Records().RemoveQuantity(ctx, "Widget", 2)
	require.NoError(t, err)
	_, err = eng.Records().AddQuantity(ctx, "Gadget", 1)
	require.NoError(t, err)

	return &AssertionContext{Engine: eng, Ctx: ctx}
}

func TestAssertHistoryContains(t *testing.T) {
	actx := setupEngine(t)

	tests := []struct {
		name      string
		assertion Assertion
		wantErr   bool
	}{
		{"action only", Assertion{Name: "Widget", Action: "REMOVE"}, false},
		{"matching quantity", Assertion{Name: "Widget", Action: "ADD", Expect: map[string]any{"quantity": 3}}, false},
		{"matching group", Assertion{Name: "Widget", Action: "REMOVE", Expect: map[string]any{"group": "tools", "quantity": 2}}, false},
		{"null group", Assertion{Name: "Gadget", Action: "ADD", Expect: map[string]any{"group": nil}}, false},
		{"wrong quantity", Assertion{Name: "Widget", Action: "ADD", Expect: map[string]any{"quantity": 4}}, true},
		{"missing action", Assertion{Name: "Widget", Action: "DELETE"}, true},
		{"unknown field", Assertion{Name: "Widget", Action: "ADD", Expect: map[string]any{"supplier": "A"}}, true},
		{"unknown record", Assertion{Name: "Sprocket", Action: "ADD"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.assertion.Type = AssertHistoryContains
			err := assertHistoryContains(actx, tt.assertion)
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			var aerr *AssertionError
			require.ErrorAs(t, err, &aerr)
			assert.Equal(t, AssertHistoryContains, aerr.Type)
		})
	}
}

func TestAssertHistoryOrder(t *testing.T) {
	actx := setupEngine(t)

	require.NoError(t, assertHistoryOrder(actx, Assertion{Name: "Widget", Actions: []string{"ADD", "REMOVE"}}))
	require.NoError(t, assertHistoryOrder(actx, Assertion{Name: "Widget", Actions: []string{"ADD", "ADD", "REMOVE"}}))

	err := assertHistoryOrder(actx, Assertion{Name: "Widget", Actions: []string{"REMOVE", "ADD"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ADD missing or out of order")

	err = assertHistoryOrder(actx, Assertion{Name: "Widget", Actions: []string{"ADD", "REMOVE", "REMOVE"}})
	require.Error(t, err)

	var aerr *AssertionError
	require.ErrorAs(t, err, &aerr)
	assert.Len(t, aerr.History, 3)
	assert.Contains(t, err.Error(), "[3] REMOVE Widget quantity=2 group=tools")
}

func TestAssertHistoryCount(t *testing.T) {
	actx := setupEngine(t)

	require.NoError(t, assertHistoryCount(actx, Assertion{Name: "Widget", Action: "ADD", Count: 2}))
	require.NoError(t, assertHistoryCount(actx, Assertion{Name: "Widget", Action: "DELETE", Count: 0}))
	require.NoError(t, assertHistoryCount(actx, Assertion{Action: "ADD", Count: 3}))

	err := assertHistoryCount(actx, Assertion{Name: "Gadget", Action: "ADD", Count: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Expected: 2 ADD entries")
	assert.Contains(t, err.Error(), "Actual: 1 entries")
}

func TestAssertFinalState(t *testing.T) {
	actx := setupEngine(t)

	tests := []struct {
		name      string
		assertion Assertion
		wantErr   string
	}{
		{
			name:      "matching row",
			assertion: Assertion{Table: "items", Where: map[string]any{"name": "Widget"}, Expect: map[string]any{"quantity": 6, "group_name": "tools"}},
		},
		{
			name:      "null column",
			assertion: Assertion{Table: "items", Where: map[string]any{"name": "Gadget"}, Expect: map[string]any{"group_name": nil, "attributes": "{}"}},
		},
		{
			name:      "absent row",
			assertion: Assertion{Table: "items", Where: map[string]any{"name": "Sprocket"}, Absent: true},
		},
		{
			name:      "present but expected absent",
			assertion: Assertion{Table: "items", Where: map[string]any{"name": "Widget"}, Absent: true},
			wantErr:   "1 rows matched",
		},
		{
			name:      "wrong value",
			assertion: Assertion{Table: "items", Where: map[string]any{"name": "Widget"}, Expect: map[string]any{"quantity": 8}},
			wantErr:   `field "quantity" = 8`,
		},
		{
			name:      "missing row",
			assertion: Assertion{Table: "items", Where: map[string]any{"name": "Sprocket"}, Expect: map[string]any{"quantity": 1}},
			wantErr:   "row not found",
		},
		{
			name:      "ambiguous",
			assertion: Assertion{Table: "history", Where: map[string]any{"name": "Widget", "action": "ADD"}, Expect: map[string]any{"quantity": 5}},
			wantErr:   "multiple rows matched",
		},
		{
			name:      "missing column",
			assertion: Assertion{Table: "items", Where: map[string]any{"name": "Widget"}, Expect: map[string]any{"colour": "red"}},
			wantErr:   `field "colour" not present in items`,
		},
		{
			name:      "unknown table",
			assertion: Assertion{Table: "widgets", Where: map[string]any{"name": "Widget"}, Expect: map[string]any{"quantity": 6}},
			wantErr:   "query error",
		},
		{
			name:      "invalid table name",
			assertion: Assertion{Table: "items; DROP TABLE items", Expect: map[string]any{"quantity": 6}},
			wantErr:   "invalid table name",
		},
		{
			name:      "invalid column name",
			assertion: Assertion{Table: "items", Where: map[string]any{"name = name OR 1": 1}, Expect: map[string]any{"quantity": 6}},
			wantErr:   "invalid column name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.assertion.Type = AssertFinalState
			err := assertFinalState(actx, tt.assertion)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEvaluateAssertions(t *testing.T) {
	actx := setupEngine(t)

	errs := EvaluateAssertions([]Assertion{
		{Type: AssertHistoryCount, Name: "Widget", Action: "ADD", Count: 2},
		{Type: AssertHistoryCount, Name: "Widget", Action: "ADD", Count: 7},
		{Type: "trace_contains"},
	}, actx)
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "Assertion failed: history_count")
	assert.Contains(t, errs[1], `assertion[2]: unknown assertion type "trace_contains"`)

	errs = EvaluateAssertions([]Assertion{{Type: AssertHistoryCount, Action: "ADD"}}, nil)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "requires an engine")
}

func TestFormatWhereClause(t *testing.T) {
	assert.Equal(t, "(no conditions)", formatWhereClause(nil))
	assert.Equal(t, "name=Widget AND supplier=B", formatWhereClause(map[string]any{"supplier": "B", "name": "Widget"}))
}
