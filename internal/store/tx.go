package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Tx is a transaction handed to a Guard.Tx body. It must not be used after
// the body returns.
type Tx struct {
	tx  *sqlx.Tx
	id  string
	log *zap.Logger
}

// ID identifies the transaction in log lines.
func (t *Tx) ID() string {
	return t.id
}

// Exec runs a statement that returns no rows.
func (t *Tx) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	start := time.Now()
	res, err := t.tx.ExecContext(ctx, query, args...)
	t.trace("exec", query, args, start, err)
	return res, classify(err)
}

// Get scans a single row into dest. Returns sql.ErrNoRows when the query
// matches nothing.
func (t *Tx) Get(ctx context.Context, dest any, query string, args ...any) error {
	start := time.Now()
	err := t.tx.GetContext(ctx, dest, query, args...)
	t.trace("get", query, args, start, err)
	return classify(err)
}

// Select scans all rows into dest, which must be a pointer to a slice.
func (t *Tx) Select(ctx context.Context, dest any, query string, args ...any) error {
	start := time.Now()
	err := t.tx.SelectContext(ctx, dest, query, args...)
	t.trace("select", query, args, start, err)
	return classify(err)
}

// Rows runs a query and returns every row as a column to value map.
// Column values keep the driver's types (int64, float64, string, nil).
func (t *Tx) Rows(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	start := time.Now()
	rows, err := t.tx.QueryxContext(ctx, query, args...)
	t.trace("rows", query, args, start, err)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		row := make(map[string]any)
		if err := rows.MapScan(row); err != nil {
			return nil, classify(err)
		}
		for k, v := range row {
			if b, ok := v.([]byte); ok {
				row[k] = string(b)
			}
		}
		out = append(out, row)
	}
	return out, classify(rows.Err())
}

func (t *Tx) trace(kind, query string, args []any, start time.Time, err error) {
	if ce := t.log.Check(zap.DebugLevel, "query"); ce != nil {
		ce.Write(
			zap.String("tx", t.id),
			zap.String("kind", kind),
			zap.String("sql", query),
			zap.Any("args", args),
			zap.Duration("took", time.Since(start)),
			zap.Error(err),
		)
	}
}
