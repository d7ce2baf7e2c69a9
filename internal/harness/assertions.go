package harness

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/roach88/stockpile/internal/inventory"
	"github.com/roach88/stockpile/internal/model"
	"github.com/roach88/stockpile/internal/store"
)

// validIdentifier matches valid SQL identifiers (table/column names).
// Identifiers cannot be bound as parameters, so they are checked instead.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string               // Assertion type for categorization
	Expected string               // Human-readable expected outcome
	Actual   string               // Human-readable actual outcome
	History  []model.HistoryEntry // Relevant history for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.History) > 0 {
		fmt.Fprintf(&buf, "\nHistory:\n")
		for i, h := range e.History {
			fmt.Fprintf(&buf, "  [%d] %s %s%s\n", i+1, h.Action, h.Name, describeEntry(h))
		}
	}
	return buf.String()
}

func describeEntry(h model.HistoryEntry) string {
	var parts []string
	if h.Quantity != nil {
		parts = append(parts, fmt.Sprintf("quantity=%d", *h.Quantity))
	}
	if h.Group != nil {
		parts = append(parts, "group="+*h.Group)
	}
	if len(parts) == 0 {
		return ""
	}
	return " " + strings.Join(parts, " ")
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Engine *inventory.Engine
	Ctx    context.Context
}

// EvaluateAssertions evaluates all assertions against the engine.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error
		if actx == nil || actx.Engine == nil {
			err = fmt.Errorf("assertion[%d]: %s requires an engine", i, assertion.Type)
		} else {
			switch assertion.Type {
			case AssertHistoryContains:
				err = assertHistoryContains(actx, assertion)
			case AssertHistoryOrder:
				err = assertHistoryOrder(actx, assertion)
			case AssertHistoryCount:
				err = assertHistoryCount(actx, assertion)
			case AssertFinalState:
				err = assertFinalState(actx, assertion)
			default:
				err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
			}
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

// oldestFirst returns name's history in insertion order.
func oldestFirst(actx *AssertionContext, name string) ([]model.HistoryEntry, error) {
	hist, err := actx.Engine.Audit().HistoryFor(actx.Ctx, name)
	if err != nil {
		return nil, err
	}
	sort.Slice(hist, func(i, j int) bool { return hist[i].ID < hist[j].ID })
	return hist, nil
}

// entryFields exposes the comparable fields of an entry.
func entryFields(h model.HistoryEntry) map[string]any {
	fields := map[string]any{"quantity": nil, "group": optional(h.Group)}
	if h.Quantity != nil {
		fields["quantity"] = *h.Quantity
	}
	return fields
}

// assertHistoryContains checks that name has an entry with the action
// whose fields match the expected subset.
func assertHistoryContains(actx *AssertionContext, a Assertion) error {
	hist, err := oldestFirst(actx, a.Name)
	if err != nil {
		return err
	}
	for _, h := range hist {
		if string(h.Action) == a.Action && matchFields(entryFields(h), a.Expect) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertHistoryContains,
		Expected: fmt.Sprintf("%s entry for %s with %v", a.Action, a.Name, a.Expect),
		Actual:   "not found in history",
		History:  hist,
	}
}

// assertHistoryOrder checks that actions first appear in the given order.
// Intervening entries are allowed.
func assertHistoryOrder(actx *AssertionContext, a Assertion) error {
	hist, err := oldestFirst(actx, a.Name)
	if err != nil {
		return err
	}

	// Match each expected action against the next entry with that action.
	pos := 0
	for _, want := range a.Actions {
		for pos < len(hist) && string(hist[pos].Action) != want {
			pos++
		}
		if pos == len(hist) {
			return &AssertionError{
				Type:     AssertHistoryOrder,
				Expected: fmt.Sprintf("actions in order: %v", a.Actions),
				Actual:   fmt.Sprintf("%s missing or out of order", want),
				History:  hist,
			}
		}
		pos++
	}
	return nil
}

// assertHistoryCount checks the exact number of entries with the action,
// for one name or across every name.
func assertHistoryCount(actx *AssertionContext, a Assertion) error {
	names := []string{a.Name}
	if a.Name == "" {
		var err error
		names, err = actx.Engine.Audit().Names(actx.Ctx)
		if err != nil {
			return err
		}
	}

	count := 0
	var all []model.HistoryEntry
	for _, name := range names {
		hist, err := oldestFirst(actx, name)
		if err != nil {
			return err
		}
		for _, h := range hist {
			if string(h.Action) == a.Action {
				count++
			}
		}
		all = append(all, hist...)
	}

	if count != a.Count {
		return &AssertionError{
			Type:     AssertHistoryCount,
			Expected: fmt.Sprintf("%d %s entries", a.Count, a.Action),
			Actual:   fmt.Sprintf("%d entries", count),
			History:  all,
		}
	}
	return nil
}

// assertFinalState checks that exactly one row of the table matches where
// and carries the expected values, or that none matches when Absent.
func assertFinalState(actx *AssertionContext, a Assertion) error {
	if !validIdentifier.MatchString(a.Table) {
		return fmt.Errorf("invalid table name %q: must match pattern %s", a.Table, validIdentifier.String())
	}

	where := sq.Eq{}
	for key, v := range a.Where {
		if !validIdentifier.MatchString(key) {
			return fmt.Errorf("invalid column name %q in where clause: must match pattern %s", key, validIdentifier.String())
		}
		where[key] = v
	}

	query, args, err := sq.Select("*").From(a.Table).Where(where).ToSql()
	if err != nil {
		return err
	}

	var rows []map[string]any
	err = actx.Engine.Guard().Tx(actx.Ctx, func(tx *store.Tx) error {
		rows, err = tx.Rows(actx.Ctx, query, args...)
		return err
	})
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("query table %s", a.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}

	whereDesc := formatWhereClause(a.Where)
	switch {
	case a.Absent && len(rows) == 0:
		return nil
	case a.Absent:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("no row in %s where %s", a.Table, whereDesc),
			Actual:   fmt.Sprintf("%d rows matched", len(rows)),
		}
	case len(rows) == 0:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s where %s", a.Table, whereDesc),
			Actual:   "row not found",
		}
	case len(rows) > 1:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one row in %s where %s", a.Table, whereDesc),
			Actual:   "multiple rows matched (assertion is ambiguous)",
		}
	}

	row := rows[0]
	for _, key := range sortedKeys(a.Expect) {
		actual, exists := row[key]
		if !exists {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q not present in %s", key, a.Table),
			}
		}
		if !valuesEqual(actual, a.Expect[key]) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %v (type %T)", key, a.Expect[key], a.Expect[key]),
				Actual:   fmt.Sprintf("field %q = %v (type %T)", key, actual, actual),
			}
		}
	}
	return nil
}

// matchFields checks that actual contains every expected field (subset match).
func matchFields(actual, expected map[string]any) bool {
	for key, want := range expected {
		got, exists := actual[key]
		if !exists || !valuesEqual(got, want) {
			return false
		}
	}
	return true
}

// formatWhereClause creates a human-readable description of WHERE conditions.
func formatWhereClause(where map[string]any) string {
	if len(where) == 0 {
		return "(no conditions)"
	}
	parts := make([]string, 0, len(where))
	for _, k := range sortedKeys(where) {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
