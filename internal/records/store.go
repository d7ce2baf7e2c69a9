package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"go.uber.org/zap"

	"github.com/roach88/stockpile/internal/audit"
	"github.com/roach88/stockpile/internal/model"
	"github.com/roach88/stockpile/internal/store"
)

// DefaultLowStockThreshold is the quantity below which a record is low on stock.
const DefaultLowStockThreshold int64 = 10

// Store reads and mutates inventory records.
type Store struct {
	guard     *store.Guard
	audit     *audit.Trail
	clock     model.Clock
	log       *zap.Logger
	threshold int64
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used to stamp group creation.
func WithClock(c model.Clock) Option {
	return func(s *Store) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithLowStockThreshold sets the advisory low-stock threshold.
func WithLowStockThreshold(n int64) Option {
	return func(s *Store) {
		if n > 0 {
			s.threshold = n
		}
	}
}

// New creates a Store. Mutations are audited through trail.
func New(guard *store.Guard, trail *audit.Trail, opts ...Option) *Store {
	s := &Store{
		guard:     guard,
		audit:     trail,
		clock:     model.SystemClock{},
		log:       zap.NewNop(),
		threshold: DefaultLowStockThreshold,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.Named("records")
	return s
}

// LowStockThreshold returns the configured advisory threshold.
func (s *Store) LowStockThreshold() int64 {
	return s.threshold
}

// IsLowStock reports whether name is held below threshold. An absent
// record is not low on stock. A non-positive threshold uses the
// configured one.
func (s *Store) IsLowStock(ctx context.Context, name string, threshold int64) (bool, error) {
	if threshold <= 0 {
		threshold = s.threshold
	}
	rec, found, err := s.Get(ctx, name)
	if err != nil || !found {
		return false, err
	}
	return rec.Quantity < threshold, nil
}

// advise logs a low-stock warning. Never fails the mutation.
func (s *Store) advise(name string, quantity int64) bool {
	if quantity >= s.threshold {
		return false
	}
	s.log.Warn("low stock",
		zap.String("name", name),
		zap.Int64("quantity", quantity),
		zap.Int64("threshold", s.threshold),
	)
	return true
}

func validateName(name string) error {
	if name == "" {
		return model.InvalidArgument(name, "record name is required")
	}
	return nil
}

type itemRow struct {
	Name       string         `db:"name"`
	Quantity   int64          `db:"quantity"`
	Group      sql.NullString `db:"group_name"`
	Attributes string         `db:"attributes"`
}

func (r itemRow) toRecord() (model.Record, error) {
	attrs, err := model.DecodeAttributes(r.Attributes)
	if err != nil {
		return model.Record{}, fmt.Errorf("record %q: %w", r.Name, err)
	}
	rec := model.Record{
		Name:       r.Name,
		Quantity:   r.Quantity,
		Attributes: attrs,
	}
	if r.Group.Valid {
		g := r.Group.String
		rec.Group = &g
	}
	return rec, nil
}

func selectItems() sq.SelectBuilder {
	return sq.Select("name", "quantity", "group_name", "attributes").From("items")
}

// getTx loads one record inside tx.
func getTx(ctx context.Context, tx *store.Tx, name string) (model.Record, bool, error) {
	query, args, err := selectItems().Where(sq.Eq{"name": name}).ToSql()
	if err != nil {
		return model.Record{}, false, err
	}

	var row itemRow
	err = tx.Get(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Record{}, false, nil
	}
	if err != nil {
		return model.Record{}, false, fmt.Errorf("get record %q: %w", name, err)
	}

	rec, err := row.toRecord()
	if err != nil {
		return model.Record{}, false, err
	}
	return rec, true, nil
}

// scanItems runs b and converts every row.
func scanItems(ctx context.Context, tx *store.Tx, b sq.SelectBuilder) ([]model.Record, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}

	var rows []itemRow
	if err := tx.Select(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}

	// Return empty slice, not nil
	records := make([]model.Record, 0, len(rows))
	for _, r := range rows {
		rec, err := r.toRecord()
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}
