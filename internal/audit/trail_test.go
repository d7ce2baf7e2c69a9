package audit

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stockpile/internal/model"
	"github.com/roach88/stockpile/internal/store"
	"github.com/roach88/stockpile/internal/testutil"
)

func setupTrail(t *testing.T) (*Trail, *testutil.FakeClock) {
	t.Helper()
	g, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { g.Close() })

	clock := testutil.NewFakeClock()
	return New(g, WithClock(clock)), clock
}

func TestLog_AppendsEntry(t *testing.T) {
	ctx := context.Background()
	trail, _ := setupTrail(t)

	require.NoError(t, trail.Log(ctx, model.ActionAdd, "Widget", WithQuantity(10), WithGroup(model.StringPtr("tools"))))

	entries, err := trail.HistoryFor(ctx, "Widget")
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	assert.Equal(t, model.ActionAdd, e.Action)
	assert.Equal(t, "Widget", e.Name)
	require.NotNil(t, e.Quantity)
	assert.Equal(t, int64(10), *e.Quantity)
	require.NotNil(t, e.Group)
	assert.Equal(t, "tools", *e.Group)
	assert.Equal(t, testutil.Epoch, e.Timestamp)
}

func TestLog_OptionalFieldsStayNil(t *testing.T) {
	ctx := context.Background()
	trail, _ := setupTrail(t)

	require.NoError(t, trail.Log(ctx, model.ActionUpdateFields, "Widget", WithGroup(model.StringPtr(""))))

	entries, err := trail.HistoryFor(ctx, "Widget")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Nil(t, entries[0].Quantity)
	assert.Nil(t, entries[0].Group)
}

func TestLog_RejectsUnknownAction(t *testing.T) {
	trail, _ := setupTrail(t)

	err := trail.Log(context.Background(), model.Action("RENAME"), "Widget")
	assert.True(t, model.IsInvalidArgument(err), "got %v", err)
}

func TestHistoryFor_NewestFirst(t *testing.T) {
	ctx := context.Background()
	trail, _ := setupTrail(t)

	require.NoError(t, trail.Log(ctx, model.ActionAdd, "Widget", WithQuantity(10)))
	require.NoError(t, trail.Log(ctx, model.ActionRemove, "Widget", WithQuantity(4)))
	require.NoError(t, trail.Log(ctx, model.ActionDelete, "Widget", WithQuantity(6)))
	require.NoError(t, trail.Log(ctx, model.ActionAdd, "Gadget", WithQuantity(1)))

	entries, err := trail.HistoryFor(ctx, "Widget")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, model.ActionDelete, entries[0].Action)
	assert.Equal(t, model.ActionRemove, entries[1].Action)
	assert.Equal(t, model.ActionAdd, entries[2].Action)
}

func TestHistoryFor_SameTimestampUsesInsertionOrder(t *testing.T) {
	ctx := context.Background()
	g, err := store.Open(ctx, filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	defer g.Close()

	frozen := testutil.NewFakeClockAt(testutil.Epoch, 0)
	trail := New(g, WithClock(frozen))

	require.NoError(t, trail.Log(ctx, model.ActionAdd, "Widget", WithQuantity(1)))
	require.NoError(t, trail.Log(ctx, model.ActionRemove, "Widget", WithQuantity(1)))

	entries, err := trail.HistoryFor(ctx, "Widget")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, model.ActionRemove, entries[0].Action)
}

func TestHistoryFor_Unknown(t *testing.T) {
	trail, _ := setupTrail(t)

	entries, err := trail.HistoryFor(context.Background(), "Nope")
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestAppend_RolledBackWithTransaction(t *testing.T) {
	ctx := context.Background()
	trail, _ := setupTrail(t)
	boom := errors.New("boom")

	err := trail.guard.Tx(ctx, func(tx *store.Tx) error {
		if err := trail.Append(ctx, tx, model.ActionAdd, "Widget", WithQuantity(3)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	entries, err := trail.HistoryFor(ctx, "Widget")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestEntriesSince_StrictlyAfterCutoff(t *testing.T) {
	ctx := context.Background()
	trail, clock := setupTrail(t)

	require.NoError(t, trail.Log(ctx, model.ActionAdd, "Old", WithQuantity(1)))
	cutoff := clock.Peek()
	require.NoError(t, trail.Log(ctx, model.ActionAdd, "AtCutoff", WithQuantity(1)))
	require.NoError(t, trail.Log(ctx, model.ActionRemove, "After", WithQuantity(1)))

	var entries []model.HistoryEntry
	require.NoError(t, trail.guard.Tx(ctx, func(tx *store.Tx) error {
		var err error
		entries, err = trail.EntriesSince(ctx, tx, cutoff)
		return err
	}))

	require.Len(t, entries, 1)
	assert.Equal(t, "After", entries[0].Name)
}

func TestEntriesSince_CutoffBeforeEverything(t *testing.T) {
	ctx := context.Background()
	trail, _ := setupTrail(t)

	require.NoError(t, trail.Log(ctx, model.ActionAdd, "A", WithQuantity(1)))
	require.NoError(t, trail.Log(ctx, model.ActionAdd, "B", WithQuantity(1)))

	var entries []model.HistoryEntry
	require.NoError(t, trail.guard.Tx(ctx, func(tx *store.Tx) error {
		var err error
		entries, err = trail.EntriesSince(ctx, tx, testutil.Epoch.Add(-time.Hour))
		return err
	}))

	require.Len(t, entries, 2)
	assert.Equal(t, "A", entries[0].Name)
	assert.Equal(t, "B", entries[1].Name)
}

func TestNames_Distinct(t *testing.T) {
	ctx := context.Background()
	trail, _ := setupTrail(t)

	require.NoError(t, trail.Log(ctx, model.ActionAdd, "Widget", WithQuantity(1)))
	require.NoError(t, trail.Log(ctx, model.ActionDelete, "Widget", WithQuantity(1)))
	require.NoError(t, trail.Log(ctx, model.ActionAdd, "Bolt", WithQuantity(1)))

	names, err := trail.Names(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Bolt", "Widget"}, names)
}
