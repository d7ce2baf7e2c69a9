package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stockpile/internal/model"
	"github.com/roach88/stockpile/internal/reporting"
)

func TestAdd_CreatesAndWarnsLowStock(t *testing.T) {
	env := newCLIEnv(t)

	out := env.mustRun("add", "Widget", "5", "--group", "tools")
	assert.Contains(t, out, "Created Widget: +5, now 5")
	assert.Contains(t, out, "Warning: Widget is low on stock")

	out = env.mustRun("add", "Widget", "20")
	assert.Contains(t, out, "Added Widget: +20, now 25")
	assert.NotContains(t, out, "Warning")
}

func TestAdd_JSON(t *testing.T) {
	env := newCLIEnv(t)

	resp, data, err := env.runJSON("add", "Bolt", "100", "--attributes", `{"size":"M6"}`)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)

	var add model.Addition
	require.NoError(t, json.Unmarshal(data, &add))
	assert.Equal(t, model.Addition{Name: "Bolt", Delta: 100, Quantity: 100, Created: true}, add)

	_, data, err = env.runJSON("get", "Bolt")
	require.NoError(t, err)
	var rec model.Record
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, model.String("M6"), rec.Attributes["size"])
}

func TestAdd_InvalidArguments(t *testing.T) {
	env := newCLIEnv(t)

	tests := []struct {
		name string
		args []string
	}{
		{"not a number", []string{"add", "Widget", "five"}},
		{"zero", []string{"add", "Widget", "0"}},
		{"negative", []string{"add", "--", "Widget", "-3"}},
		{"unknown flag", []string{"add", "Widget", "1", "--colour", "red"}},
		{"bad attrs", []string{"add", "Widget", "1", "--attributes", "[1,2]"}},
		{"trailing attributes", []string{"add", "Widget", "1", "--attributes", `{"a":1} junk`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.run(tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
		})
	}
}

func TestRemove(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun("add", "Widget", "10")

	out := env.mustRun("remove", "Widget", "3")
	assert.Contains(t, out, "Removed 3 Widget, 7 remaining")

	out, err := env.run("remove", "Widget", "8")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [INSUFFICIENT_QUANTITY]")
	assert.Contains(t, out, "only 7 available")

	out = env.mustRun("remove", "Widget", "7")
	assert.Contains(t, out, "record deleted")

	out, err = env.run("get", "Widget")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [NOT_FOUND]")
}

func TestRemove_JSONFailureDetails(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun("add", "Widget", "2")

	resp, _, err := env.runJSON("remove", "Widget", "5")
	require.Error(t, err)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INSUFFICIENT_QUANTITY", resp.Error.Code)

	details, ok := resp.Error.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(2), details["available"])
}

func TestDelete(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun("add", "Widget", "50")

	out := env.mustRun("delete", "Widget")
	assert.Contains(t, out, "Deleted Widget")

	_, err := env.run("delete", "Widget")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestListAndSearch(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun("add", "Widget", "50", "--group", "tools")
	env.mustRun("add", "widget-mini", "40")
	env.mustRun("add", "Gadget", "30", "--group", "parts")

	_, data, err := env.runJSON("list")
	require.NoError(t, err)
	var recs []model.Record
	require.NoError(t, json.Unmarshal(data, &recs))
	require.Len(t, recs, 3)
	assert.Equal(t, "Gadget", recs[0].Name)

	_, data, err = env.runJSON("list", "--group", "tools")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &recs))
	require.Len(t, recs, 1)
	assert.Equal(t, "Widget", recs[0].Name)

	_, data, err = env.runJSON("list", "--limit", "1", "--offset", "1")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &recs))
	require.Len(t, recs, 1)
	assert.Equal(t, "Widget", recs[0].Name)

	_, data, err = env.runJSON("search", "Widget")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &recs))
	require.Len(t, recs, 1)
	assert.Equal(t, "Widget", recs[0].Name)

	out := env.mustRun("search", "nothing")
	assert.Contains(t, out, "No records")
}

func TestList_EmptyJSONIsArray(t *testing.T) {
	env := newCLIEnv(t)

	_, data, err := env.runJSON("list")
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(data))
}

func TestAttrs(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun("add", "Widget", "50", "--attributes", `{"color":"red","size":3}`)

	_, data, err := env.runJSON("attrs", "Widget", `{"color":"blue"}`, "--merge")
	require.NoError(t, err)
	var rec model.Record
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, model.Object{"color": model.String("blue"), "size": model.Int(3)}, rec.Attributes)

	_, data, err = env.runJSON("attrs", "Widget", `{"weight":1.5}`)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, model.Object{"weight": model.Float(1.5)}, rec.Attributes)

	_, err = env.run("attrs", "Ghost", `{}`)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestSetGroupAndGroups(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun("add", "Widget", "50")
	env.mustRun("add", "Gadget", "50", "--group", "old")

	out := env.mustRun("group", "create", "tools", "--description", "hand tools")
	assert.Contains(t, out, "Created group tools")
	out = env.mustRun("group", "create", "tools")
	assert.Contains(t, out, "already exists")

	out = env.mustRun("set-group", "Widget", "tools")
	assert.Contains(t, out, "Widget moved to tools")

	out = env.mustRun("group", "rename", "old", "tools")
	assert.Contains(t, out, "(1 records)")

	_, data, err := env.runJSON("list", "--group", "tools")
	require.NoError(t, err)
	var recs []model.Record
	require.NoError(t, json.Unmarshal(data, &recs))
	assert.Len(t, recs, 2)

	_, data, err = env.runJSON("group", "list")
	require.NoError(t, err)
	var groups []model.Group
	require.NoError(t, json.Unmarshal(data, &groups))
	require.Len(t, groups, 1)
	assert.Equal(t, "hand tools", groups[0].Description)

	out = env.mustRun("group", "delete", "tools")
	assert.Contains(t, out, "(2 records cleared)")

	_, err = env.run("group", "delete", "tools")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	out = env.mustRun("set-group", "Widget")
	assert.Contains(t, out, "Widget has no group")

	_, err = env.run("set-group", "Ghost", "tools")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestHistory(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun("add", "Widget", "10")
	env.mustRun("remove", "Widget", "10")

	_, data, err := env.runJSON("history", "Widget")
	require.NoError(t, err)
	var entries []model.HistoryEntry
	require.NoError(t, json.Unmarshal(data, &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, model.ActionRemove, entries[0].Action)
	assert.Equal(t, model.ActionAdd, entries[1].Action)

	out := env.mustRun("history", "Ghost")
	assert.Contains(t, out, "No history for Ghost")
}

func TestPrices(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun("add", "Widget", "10")

	out := env.mustRun("price", "set", "Widget", "2.50")
	assert.Contains(t, out, "Price of Widget from default supplier: 2.5 per unit")

	out = env.mustRun("price", "set", "Widget", "15", "--total", "--supplier", "acme")
	assert.Contains(t, out, "Price of Widget from acme: 1.5 per unit")

	out = env.mustRun("price", "cheapest", "Widget")
	assert.Contains(t, out, "Cheapest Widget: acme at 1.5 per unit")

	_, data, err := env.runJSON("price", "get", "Widget", "--supplier", "", "--total")
	require.NoError(t, err)
	var entry model.PriceEntry
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Nil(t, entry.Supplier)
	assert.False(t, entry.IsUnitPrice)
	assert.True(t, decimal.NewFromInt(25).Equal(entry.Price), "got %s", entry.Price)

	_, data, err = env.runJSON("price", "history", "Widget")
	require.NoError(t, err)
	var hist []model.PriceHistoryEntry
	require.NoError(t, json.Unmarshal(data, &hist))
	require.Len(t, hist, 2)
	assert.Equal(t, "acme", model.Deref(hist[0].Supplier))

	out = env.mustRun("price", "delete", "Widget", "--supplier", "acme")
	assert.Contains(t, out, "Deleted price for Widget")

	out = env.mustRun("price", "cheapest", "Widget")
	assert.Contains(t, out, "default supplier at 2.5")

	_, err = env.run("price", "set", "Ghost", "1")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	_, err = env.run("price", "set", "--", "Widget", "-1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = env.run("price", "set", "Widget", "abc")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestReports(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun("add", "Widget", "10")
	env.mustRun("add", "Gadget", "3")
	env.mustRun("price", "set", "Widget", "2")

	_, data, err := env.runJSON("report", "low-stock")
	require.NoError(t, err)
	var recs []model.Record
	require.NoError(t, json.Unmarshal(data, &recs))
	require.Len(t, recs, 1)
	assert.Equal(t, "Gadget", recs[0].Name)

	_, data, err = env.runJSON("report", "low-stock", "--threshold", "11")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &recs))
	assert.Len(t, recs, 2)

	_, data, err = env.runJSON("report", "valuation")
	require.NoError(t, err)
	var val reporting.Valuation
	require.NoError(t, json.Unmarshal(data, &val))
	assert.True(t, decimal.NewFromInt(20).Equal(val.Total), "got %s", val.Total)
	assert.Equal(t, []string{"Gadget"}, val.Unpriced())

	out := env.mustRun("report", "valuation")
	assert.Contains(t, out, "Total: 20")
	assert.Contains(t, out, "Unpriced: Gadget")

	_, data, err = env.runJSON("report", "activity", "--since", "2023-12-31T00:00:00Z")
	require.NoError(t, err)
	var act reporting.Activity
	require.NoError(t, json.Unmarshal(data, &act))
	assert.Equal(t, 2, act.Added)
	assert.Equal(t, []string{"Gadget", "Widget"}, act.AddedNames)

	_, err = env.run("report", "activity", "--since", "yesterday")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestBackupAndHealth(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun("add", "Widget", "10")

	dst := filepath.Join(t.TempDir(), "nested", "copy.db")
	out := env.mustRun("backup", dst)
	assert.Contains(t, out, "Backup written to "+dst)
	_, err := os.Stat(dst)
	require.NoError(t, err)

	out = env.mustRun("health")
	assert.Contains(t, out, "Store is healthy")
}

func TestBackupSchedule_InvalidCron(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run("backup", "schedule", "--cron", "not a schedule")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid schedule")
}

func TestBackupSchedule_RequiresSpec(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run("backup", "schedule")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no schedule")
}

func TestCredential(t *testing.T) {
	env := newCLIEnv(t)

	// sha256("secret")
	legacy := "2bb80d537b1da3e38bd30361aa855686bde0eacd7162fef6a25fe97bf527a25b"
	out := env.mustRun("credential", "verify", "secret", legacy)
	assert.Contains(t, out, "Password matches (sha256)")
	assert.Contains(t, out, "Hash should be replaced")

	_, err := env.run("credential", "verify", "wrong", legacy)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	_, data, err := env.runJSON("credential", "hash", "secret")
	require.NoError(t, err)
	var hashed map[string]string
	require.NoError(t, json.Unmarshal(data, &hashed))
	assert.Equal(t, "bcrypt", hashed["format"])

	out = env.mustRun("credential", "verify", "secret", hashed["hash"])
	assert.Contains(t, out, "Password matches (bcrypt)")
	assert.NotContains(t, out, "replaced")
}
