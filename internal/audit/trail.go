// Package audit is the append-only log of every inventory mutation.
//
// Entries are written inside the caller's transaction so a mutation and
// its audit row commit or roll back together. Entries are never updated or
// deleted, and they outlive the record they describe.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"go.uber.org/zap"

	"github.com/roach88/stockpile/internal/model"
	"github.com/roach88/stockpile/internal/store"
)

// Trail appends and reads history entries.
type Trail struct {
	guard *store.Guard
	clock model.Clock
	log   *zap.Logger
}

// Option configures a Trail.
type Option func(*Trail)

// WithClock sets the clock used to stamp entries.
func WithClock(c model.Clock) Option {
	return func(t *Trail) {
		if c != nil {
			t.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(t *Trail) {
		if l != nil {
			t.log = l
		}
	}
}

// New creates a Trail over guard.
func New(guard *store.Guard, opts ...Option) *Trail {
	t := &Trail{
		guard: guard,
		clock: model.SystemClock{},
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.log = t.log.Named("audit")
	return t
}

type entry struct {
	quantity *int64
	group    *string
}

// EntryOption sets an optional field on an appended entry.
type EntryOption func(*entry)

// WithQuantity records a quantity on the entry.
func WithQuantity(q int64) EntryOption {
	return func(e *entry) { e.quantity = &q }
}

// WithGroup records a group on the entry. Nil or empty means none.
func WithGroup(g *string) EntryOption {
	return func(e *entry) {
		if g != nil && *g != "" {
			v := *g
			e.group = &v
		}
	}
}

// Append writes one entry inside tx, stamped with the current time.
func (t *Trail) Append(ctx context.Context, tx *store.Tx, action model.Action, name string, opts ...EntryOption) error {
	if !model.ValidActions[action] {
		return model.InvalidArgument(name, "unknown history action %q", action)
	}
	var e entry
	for _, opt := range opts {
		opt(&e)
	}

	query, args, err := sq.Insert("history").
		Columns("action", "name", "quantity", "group_name", "timestamp").
		Values(string(action), name, e.quantity, e.group, model.FormatTime(t.clock.Now())).
		ToSql()
	if err != nil {
		return fmt.Errorf("build history insert: %w", err)
	}
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("append history: %w", err)
	}

	t.log.Debug("history appended",
		zap.String("tx", tx.ID()),
		zap.String("action", string(action)),
		zap.String("name", name),
	)
	return nil
}

// Log appends one entry in its own transaction.
func (t *Trail) Log(ctx context.Context, action model.Action, name string, opts ...EntryOption) error {
	return t.guard.Tx(ctx, func(tx *store.Tx) error {
		return t.Append(ctx, tx, action, name, opts...)
	})
}

// HistoryFor returns every entry for name, newest first. Entries remain
// after the record itself is deleted.
func (t *Trail) HistoryFor(ctx context.Context, name string) ([]model.HistoryEntry, error) {
	var entries []model.HistoryEntry
	err := t.guard.Tx(ctx, func(tx *store.Tx) error {
		var err error
		entries, err = t.HistoryForTx(ctx, tx, name)
		return err
	})
	return entries, err
}

// HistoryForTx is HistoryFor inside an existing transaction.
func (t *Trail) HistoryForTx(ctx context.Context, tx *store.Tx, name string) ([]model.HistoryEntry, error) {
	return t.query(ctx, tx, selectHistory().
		Where(sq.Eq{"name": name}).
		OrderBy("timestamp DESC", "id DESC"))
}

// EntriesSince returns entries stamped strictly after cutoff, oldest first,
// across every name including deleted records.
func (t *Trail) EntriesSince(ctx context.Context, tx *store.Tx, cutoff time.Time) ([]model.HistoryEntry, error) {
	return t.query(ctx, tx, selectHistory().
		Where(sq.Gt{"timestamp": model.FormatTime(cutoff)}).
		OrderBy("timestamp ASC", "id ASC"))
}

// Names returns every record name that has history, sorted.
func (t *Trail) Names(ctx context.Context) ([]string, error) {
	names := []string{}
	err := t.guard.Tx(ctx, func(tx *store.Tx) error {
		query, args, err := sq.Select("DISTINCT name").From("history").OrderBy("name").ToSql()
		if err != nil {
			return err
		}
		return tx.Select(ctx, &names, query, args...)
	})
	if err != nil {
		return nil, fmt.Errorf("list history names: %w", err)
	}
	return names, nil
}

type historyRow struct {
	ID        int64          `db:"id"`
	Action    string         `db:"action"`
	Name      string         `db:"name"`
	Quantity  sql.NullInt64  `db:"quantity"`
	Group     sql.NullString `db:"group_name"`
	Timestamp string         `db:"timestamp"`
}

func selectHistory() sq.SelectBuilder {
	return sq.Select("id", "action", "name", "quantity", "group_name", "timestamp").From("history")
}

func (t *Trail) query(ctx context.Context, tx *store.Tx, b sq.SelectBuilder) ([]model.HistoryEntry, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build history query: %w", err)
	}

	var rows []historyRow
	if err := tx.Select(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}

	// Return empty slice, not nil
	entries := make([]model.HistoryEntry, 0, len(rows))
	for _, r := range rows {
		e, err := r.toEntry()
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (r historyRow) toEntry() (model.HistoryEntry, error) {
	ts, err := model.ParseTime(r.Timestamp)
	if err != nil {
		return model.HistoryEntry{}, fmt.Errorf("history %d: parse timestamp: %w", r.ID, err)
	}
	e := model.HistoryEntry{
		ID:        r.ID,
		Action:    model.Action(r.Action),
		Name:      r.Name,
		Timestamp: ts,
	}
	if r.Quantity.Valid {
		q := r.Quantity.Int64
		e.Quantity = &q
	}
	if r.Group.Valid {
		g := r.Group.String
		e.Group = &g
	}
	return e, nil
}
