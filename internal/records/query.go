package records

import (
	"context"
	"math"

	sq "github.com/Masterminds/squirrel"

	"github.com/roach88/stockpile/internal/model"
	"github.com/roach88/stockpile/internal/store"
)

// ListOption narrows or pages a record listing.
type ListOption func(sq.SelectBuilder) sq.SelectBuilder

// ByGroups keeps records whose group exactly matches one of groups.
// Records without a group never match a non-empty filter.
func ByGroups(groups ...string) ListOption {
	return func(b sq.SelectBuilder) sq.SelectBuilder {
		if len(groups) == 0 {
			return b
		}
		return b.Where(sq.Eq{"group_name": groups})
	}
}

// ByNameContains keeps records whose name contains term. The match is
// case-sensitive.
func ByNameContains(term string) ListOption {
	return func(b sq.SelectBuilder) sq.SelectBuilder {
		return b.Where(sq.Expr("instr(name, ?) > 0", term))
	}
}

// BelowQuantity keeps records holding fewer than threshold units.
func BelowQuantity(threshold int64) ListOption {
	return func(b sq.SelectBuilder) sq.SelectBuilder {
		return b.Where(sq.Lt{"quantity": threshold})
	}
}

// WithLimit caps the number of records returned.
func WithLimit(limit uint64) ListOption {
	return func(b sq.SelectBuilder) sq.SelectBuilder {
		return b.Limit(limit)
	}
}

// WithOffset skips the first offset records of the ordered listing.
func WithOffset(offset uint64) ListOption {
	return func(b sq.SelectBuilder) sq.SelectBuilder {
		return b.Offset(offset)
	}
}

// Get returns the record named name, and false when it does not exist.
func (s *Store) Get(ctx context.Context, name string) (rec model.Record, found bool, err error) {
	err = s.guard.Tx(ctx, func(tx *store.Tx) error {
		rec, found, err = getTx(ctx, tx, name)
		return err
	})
	return rec, found, err
}

// List returns records ordered by name.
func (s *Store) List(ctx context.Context, opts ...ListOption) ([]model.Record, error) {
	var records []model.Record
	err := s.guard.Tx(ctx, func(tx *store.Tx) error {
		var err error
		records, err = ListTx(ctx, tx, opts...)
		return err
	})
	return records, err
}

// ListTx is List inside an existing transaction.
func ListTx(ctx context.Context, tx *store.Tx, opts ...ListOption) ([]model.Record, error) {
	// SQLite only accepts OFFSET after a LIMIT; the explicit maximum is
	// replaced by WithLimit when given.
	builder := selectItems().OrderBy("name").Limit(math.MaxInt64)
	for _, opt := range opts {
		builder = opt(builder)
	}
	return scanItems(ctx, tx, builder)
}

// Search returns records whose name contains term, case-sensitively.
func (s *Store) Search(ctx context.Context, term string) ([]model.Record, error) {
	return s.List(ctx, ByNameContains(term))
}

// Count returns how many records match opts. Paging options are ignored.
func (s *Store) Count(ctx context.Context, opts ...ListOption) (int64, error) {
	builder := sq.Select("COUNT(*)").From("items")
	for _, opt := range opts {
		builder = opt(builder)
	}
	query, args, err := builder.RemoveLimit().RemoveOffset().ToSql()
	if err != nil {
		return 0, err
	}

	var count int64
	err = s.guard.Tx(ctx, func(tx *store.Tx) error {
		return tx.Get(ctx, &count, query, args...)
	})
	return count, err
}
