package records

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stockpile/internal/model"
)

func names(records []model.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Name)
	}
	return out
}

func seed(t *testing.T, s *Store) {
	t.Helper()
	mustAdd(t, s, "Bolt", 100, WithGroup("hardware"))
	mustAdd(t, s, "Nut", 50, WithGroup("hardware"))
	mustAdd(t, s, "Hammer", 2, WithGroup("tools"))
	mustAdd(t, s, "Widget", 10)
	mustAdd(t, s, "widget-mini", 1)
}

func TestList_All(t *testing.T) {
	f := setup(t)
	seed(t, f.store)

	records, err := f.store.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Bolt", "Hammer", "Nut", "Widget", "widget-mini"}, names(records))
}

func TestList_Empty(t *testing.T) {
	f := setup(t)

	records, err := f.store.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestList_ByGroups(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	seed(t, f.store)

	records, err := f.store.List(ctx, ByGroups("hardware"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Bolt", "Nut"}, names(records))

	records, err = f.store.List(ctx, ByGroups("hardware", "tools"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Bolt", "Hammer", "Nut"}, names(records))

	// Ungrouped records never match a non-empty filter.
	records, err = f.store.List(ctx, ByGroups(""))
	require.NoError(t, err)
	assert.Empty(t, records)

	// An empty filter is no filter.
	records, err = f.store.List(ctx, ByGroups())
	require.NoError(t, err)
	assert.Len(t, records, 5)
}

func TestList_Paging(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	seed(t, f.store)

	records, err := f.store.List(ctx, WithLimit(2))
	require.NoError(t, err)
	assert.Equal(t, []string{"Bolt", "Hammer"}, names(records))

	records, err = f.store.List(ctx, WithLimit(2), WithOffset(2))
	require.NoError(t, err)
	assert.Equal(t, []string{"Nut", "Widget"}, names(records))

	records, err = f.store.List(ctx, WithOffset(4))
	require.NoError(t, err)
	assert.Equal(t, []string{"widget-mini"}, names(records))
}

func TestSearch_CaseSensitive(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	seed(t, f.store)

	records, err := f.store.Search(ctx, "idget")
	require.NoError(t, err)
	assert.Equal(t, []string{"Widget", "widget-mini"}, names(records))

	records, err = f.store.Search(ctx, "Widget")
	require.NoError(t, err)
	assert.Equal(t, []string{"Widget"}, names(records))

	records, err = f.store.Search(ctx, "WIDGET")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestSearch_LikeMetacharactersAreLiteral(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	mustAdd(t, f.store, "100%_cotton", 1)
	mustAdd(t, f.store, "100 wool", 1)

	records, err := f.store.Search(ctx, "%_")
	require.NoError(t, err)
	assert.Equal(t, []string{"100%_cotton"}, names(records))
}

func TestCount(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	seed(t, f.store)

	n, err := f.store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	n, err = f.store.Count(ctx, ByGroups("hardware"), WithLimit(1), WithOffset(1))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = f.store.Count(ctx, BelowQuantity(10))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestGet_Missing(t *testing.T) {
	f := setup(t)

	rec, found, err := f.store.Get(context.Background(), "Ghost")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, model.Record{}, rec)
}
