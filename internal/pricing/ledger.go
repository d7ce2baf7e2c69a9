// Package pricing tracks current and historical per-supplier prices.
//
// Prices are keyed by (record, supplier). A missing supplier is the default
// supplier, stored as the empty string. Every SetPrice stores the derived
// unit price in both the current entry and an immutable history snapshot
// that also captures the record's quantity at that moment.
package pricing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/roach88/stockpile/internal/model"
	"github.com/roach88/stockpile/internal/store"
)

// Ledger reads and writes prices.
type Ledger struct {
	guard *store.Guard
	clock model.Clock
	log   *zap.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock sets the clock used to stamp prices.
func WithClock(c model.Clock) Option {
	return func(l *Ledger) {
		if c != nil {
			l.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(l *Ledger) {
		if log != nil {
			l.log = log
		}
	}
}

// New creates a Ledger over guard.
func New(guard *store.Guard, opts ...Option) *Ledger {
	l := &Ledger{
		guard: guard,
		clock: model.SystemClock{},
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.log = l.log.Named("pricing")
	return l
}

type priceOptions struct {
	supplier *string
	total    bool
}

// PriceOption adjusts a single ledger call.
type PriceOption func(*priceOptions)

// WithSupplier targets one supplier. The empty string is the default
// supplier. Without it, SetPrice writes the default supplier while reads
// and deletes span every supplier.
func WithSupplier(supplier string) PriceOption {
	return func(o *priceOptions) { o.supplier = &supplier }
}

// AsTotalPrice marks a SetPrice magnitude as the total for the record's
// current quantity instead of a per-unit price.
func AsTotalPrice() PriceOption {
	return func(o *priceOptions) { o.total = true }
}

// AsTotal re-expresses a GetPrice result as unit price times the record's
// current quantity.
func AsTotal() PriceOption {
	return AsTotalPrice()
}

func applyOptions(opts []PriceOption) priceOptions {
	var o priceOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Quote is a supplier's unit price.
type Quote struct {
	Supplier  *string         `json:"supplier"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// SetPrice records a price for name. Returns false, writing nothing, when
// the record does not exist. magnitude must be positive.
func (l *Ledger) SetPrice(ctx context.Context, name string, magnitude decimal.Decimal, opts ...PriceOption) (bool, error) {
	if name == "" {
		return false, model.InvalidArgument(name, "record name is required")
	}
	if !magnitude.IsPositive() {
		return false, model.InvalidArgument(name, "price must be positive, got %s", magnitude)
	}
	o := applyOptions(opts)
	supplier := model.Deref(o.supplier)

	set := false
	var unit decimal.Decimal
	err := l.guard.Tx(ctx, func(tx *store.Tx) error {
		qty, found, err := quantityTx(ctx, tx, name)
		if err != nil || !found {
			return err
		}

		unit = model.UnitPrice(magnitude, !o.total, qty)
		now := model.FormatTime(l.clock.Now())

		query, args, err := sq.Insert("price_history").
			Columns("name", "price", "supplier", "timestamp", "is_unit_price", "quantity_at_time").
			Values(name, unit, supplier, now, true, qty).
			ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("append price history for %q: %w", name, err)
		}

		query, args, err = sq.Insert("prices").
			Columns("name", "supplier", "price", "updated_at", "is_unit_price").
			Values(name, supplier, unit, now, true).
			Suffix("ON CONFLICT (name, supplier) DO UPDATE SET " +
				"price = excluded.price, updated_at = excluded.updated_at, is_unit_price = excluded.is_unit_price").
			ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert price for %q: %w", name, err)
		}
		set = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if set {
		l.log.Debug("price set",
			zap.String("name", name),
			zap.String("supplier", supplier),
			zap.Stringer("unit_price", unit),
		)
	}
	return set, nil
}

// GetPrice returns the current price for name. With WithSupplier it is an
// exact match; otherwise the most recently updated entry across suppliers.
func (l *Ledger) GetPrice(ctx context.Context, name string, opts ...PriceOption) (model.PriceEntry, bool, error) {
	o := applyOptions(opts)

	var entry model.PriceEntry
	found := false
	err := l.guard.Tx(ctx, func(tx *store.Tx) error {
		b := selectPrices().Where(sq.Eq{"name": name})
		if o.supplier != nil {
			b = b.Where(sq.Eq{"supplier": *o.supplier})
		} else {
			b = b.OrderBy("updated_at DESC", "rowid DESC").Limit(1)
		}
		query, args, err := b.ToSql()
		if err != nil {
			return err
		}

		var row priceRow
		err = tx.Get(ctx, &row, query, args...)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get price for %q: %w", name, err)
		}
		if entry, err = row.toEntry(); err != nil {
			return err
		}
		found = true

		if o.total {
			qty, _, err := quantityTx(ctx, tx, name)
			if err != nil {
				return err
			}
			entry.Price = entry.TotalPrice(qty)
			entry.IsUnitPrice = false
		}
		return nil
	})
	return entry, found, err
}

// Entries returns every current price for name in storage order.
func (l *Ledger) Entries(ctx context.Context, name string) ([]model.PriceEntry, error) {
	var entries []model.PriceEntry
	err := l.guard.Tx(ctx, func(tx *store.Tx) error {
		var err error
		entries, err = entriesTx(ctx, tx, name)
		return err
	})
	return entries, err
}

// GetHistory returns price snapshots for name, newest first, optionally
// for one supplier. Snapshots written without a quantity report the
// record's live quantity.
func (l *Ledger) GetHistory(ctx context.Context, name string, opts ...PriceOption) ([]model.PriceHistoryEntry, error) {
	o := applyOptions(opts)

	var entries []model.PriceHistoryEntry
	err := l.guard.Tx(ctx, func(tx *store.Tx) error {
		b := sq.Select("id", "name", "price", "supplier", "timestamp", "is_unit_price", "quantity_at_time").
			From("price_history").
			Where(sq.Eq{"name": name}).
			OrderBy("timestamp DESC", "id DESC")
		if o.supplier != nil {
			b = b.Where(sq.Eq{"supplier": *o.supplier})
		}
		query, args, err := b.ToSql()
		if err != nil {
			return err
		}

		var rows []historyRow
		if err := tx.Select(ctx, &rows, query, args...); err != nil {
			return fmt.Errorf("get price history for %q: %w", name, err)
		}

		live, liveFound, err := quantityTx(ctx, tx, name)
		if err != nil {
			return err
		}

		entries = make([]model.PriceHistoryEntry, 0, len(rows))
		for _, r := range rows {
			e, err := r.toEntry()
			if err != nil {
				return err
			}
			if e.QuantityAtTime == nil && liveFound {
				q := live
				e.QuantityAtTime = &q
			}
			entries = append(entries, e)
		}
		return nil
	})
	return entries, err
}

// CheapestSupplier returns the lowest unit price among name's current
// entries. Ties go to the entry stored first. found is false when name
// has no prices.
func (l *Ledger) CheapestSupplier(ctx context.Context, name string) (Quote, bool, error) {
	var best Quote
	found := false
	err := l.guard.Tx(ctx, func(tx *store.Tx) error {
		entries, err := entriesTx(ctx, tx, name)
		if err != nil || len(entries) == 0 {
			return err
		}
		qty, _, err := quantityTx(ctx, tx, name)
		if err != nil {
			return err
		}

		for _, e := range entries {
			unit := e.UnitPrice(qty)
			if !found || unit.LessThan(best.UnitPrice) {
				best = Quote{Supplier: e.Supplier, UnitPrice: unit}
				found = true
			}
		}
		return nil
	})
	return best, found, err
}

// DeletePrice removes the current price for one supplier, or for every
// supplier when WithSupplier is not given. History is kept. Returns
// whether anything was removed.
func (l *Ledger) DeletePrice(ctx context.Context, name string, opts ...PriceOption) (bool, error) {
	o := applyOptions(opts)

	b := sq.Delete("prices").Where(sq.Eq{"name": name})
	if o.supplier != nil {
		b = b.Where(sq.Eq{"supplier": *o.supplier})
	}
	query, args, err := b.ToSql()
	if err != nil {
		return false, err
	}

	var removed int64
	err = l.guard.Tx(ctx, func(tx *store.Tx) error {
		res, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("delete price for %q: %w", name, err)
		}
		removed, err = res.RowsAffected()
		return err
	})
	return removed > 0, err
}

// LatestPrices returns, for every priced record name, the unit price of
// its most recently updated entry.
func (l *Ledger) LatestPrices(ctx context.Context, tx *store.Tx) (map[string]decimal.Decimal, error) {
	query, args, err := sq.Select(
		"p.name AS name",
		"p.supplier AS supplier",
		"p.price AS price",
		"p.updated_at AS updated_at",
		"p.is_unit_price AS is_unit_price",
		"COALESCE(i.quantity, 0) AS quantity",
	).
		From("prices p").
		LeftJoin("items i ON i.name = p.name").
		OrderBy("p.name", "p.updated_at DESC", "p.rowid DESC").
		ToSql()
	if err != nil {
		return nil, err
	}

	var rows []struct {
		priceRow
		Quantity int64 `db:"quantity"`
	}
	if err := tx.Select(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("latest prices: %w", err)
	}

	latest := make(map[string]decimal.Decimal, len(rows))
	for _, r := range rows {
		if _, seen := latest[r.Name]; seen {
			continue
		}
		latest[r.Name] = model.UnitPrice(r.Price, r.IsUnitPrice, r.Quantity)
	}
	return latest, nil
}

type priceRow struct {
	Name        string          `db:"name"`
	Supplier    string          `db:"supplier"`
	Price       decimal.Decimal `db:"price"`
	UpdatedAt   string          `db:"updated_at"`
	IsUnitPrice bool            `db:"is_unit_price"`
}

func (r priceRow) toEntry() (model.PriceEntry, error) {
	ts, err := model.ParseTime(r.UpdatedAt)
	if err != nil {
		return model.PriceEntry{}, fmt.Errorf("price %q: parse updated_at: %w", r.Name, err)
	}
	return model.PriceEntry{
		Name:        r.Name,
		Supplier:    model.StringPtr(r.Supplier),
		Price:       r.Price,
		IsUnitPrice: r.IsUnitPrice,
		UpdatedAt:   ts,
	}, nil
}

type historyRow struct {
	ID             int64           `db:"id"`
	Name           string          `db:"name"`
	Price          decimal.Decimal `db:"price"`
	Supplier       string          `db:"supplier"`
	Timestamp      string          `db:"timestamp"`
	IsUnitPrice    bool            `db:"is_unit_price"`
	QuantityAtTime sql.NullInt64   `db:"quantity_at_time"`
}

func (r historyRow) toEntry() (model.PriceHistoryEntry, error) {
	ts, err := model.ParseTime(r.Timestamp)
	if err != nil {
		return model.PriceHistoryEntry{}, fmt.Errorf("price history %d: parse timestamp: %w", r.ID, err)
	}
	e := model.PriceHistoryEntry{
		ID:          r.ID,
		Name:        r.Name,
		Supplier:    model.StringPtr(r.Supplier),
		Price:       r.Price,
		IsUnitPrice: r.IsUnitPrice,
		Timestamp:   ts,
	}
	if r.QuantityAtTime.Valid {
		q := r.QuantityAtTime.Int64
		e.QuantityAtTime = &q
	}
	return e, nil
}

func selectPrices() sq.SelectBuilder {
	return sq.Select("name", "supplier", "price", "updated_at", "is_unit_price").From("prices")
}

func entriesTx(ctx context.Context, tx *store.Tx, name string) ([]model.PriceEntry, error) {
	query, args, err := selectPrices().Where(sq.Eq{"name": name}).OrderBy("rowid").ToSql()
	if err != nil {
		return nil, err
	}

	var rows []priceRow
	if err := tx.Select(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list prices for %q: %w", name, err)
	}

	entries := make([]model.PriceEntry, 0, len(rows))
	for _, r := range rows {
		e, err := r.toEntry()
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// quantityTx reads the live quantity of name.
func quantityTx(ctx context.Context, tx *store.Tx, name string) (int64, bool, error) {
	var qty int64
	err := tx.Get(ctx, &qty, "SELECT quantity FROM items WHERE name = ?", name)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read quantity of %q: %w", name, err)
	}
	return qty, true, nil
}
