package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/roach88/stockpile/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Empty file
// 1 - Initial schema
// 2 - price_history.quantity_at_time for stores created before it existed
const currentSchemaVersion = 2

// MemoryPath opens a private in-memory store. Backups are not supported.
const MemoryPath = ":memory:"

// ErrClosed is returned by Guard methods after Close.
var ErrClosed = errors.New("store: guard is closed")

const (
	defaultBusyTimeout     = 5 * time.Second
	defaultConnectAttempts = 3
	defaultRetryBackoff    = time.Second
)

type options struct {
	busyTimeout     time.Duration
	connectAttempts uint
	retryBackoff    time.Duration
	logger          *zap.Logger
}

// Option configures a Guard.
type Option func(*options)

// WithBusyTimeout bounds how long SQLite waits for a file lock before
// failing with SQLITE_BUSY.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *options) { o.busyTimeout = d }
}

// WithConnectAttempts sets how many times opening the connection (and
// beginning a transaction on a busy file) is attempted.
func WithConnectAttempts(n uint) Option {
	return func(o *options) {
		if n > 0 {
			o.connectAttempts = n
		}
	}
}

// WithRetryBackoff sets the constant delay between attempts.
func WithRetryBackoff(d time.Duration) Option {
	return func(o *options) { o.retryBackoff = d }
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Guard owns the one physical store handle and serializes all access to it.
type Guard struct {
	mu     sync.Mutex
	path   string
	opts   options
	db     *sqlx.DB
	closed bool
	log    *zap.Logger
}

// New creates a Guard for the store at path without connecting.
// The connection is opened on the first transaction.
func New(path string, opts ...Option) *Guard {
	o := options{
		busyTimeout:     defaultBusyTimeout,
		connectAttempts: defaultConnectAttempts,
		retryBackoff:    defaultRetryBackoff,
		logger:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Guard{
		path: path,
		opts: o,
		log:  o.logger.Named("store"),
	}
}

// Open creates a Guard and connects immediately, creating the store file
// and schema if they do not exist. Safe to call repeatedly on one path.
func Open(ctx context.Context, path string, opts ...Option) (*Guard, error) {
	g := New(path, opts...)

	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.connectLocked(ctx); err != nil {
		return nil, err
	}
	return g, nil
}

// Path returns the store file path.
func (g *Guard) Path() string {
	return g.path
}

// Tx runs fn inside a transaction. Only one body runs at a time across the
// process. The transaction commits when fn returns nil; otherwise it rolls
// back and fn's error is returned unchanged (a rollback failure is logged,
// never returned in its place). A panic in fn rolls back and re-panics.
func (g *Guard) Tx(ctx context.Context, fn func(tx *Tx) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return ErrClosed
	}
	if err := g.ensureLocked(ctx); err != nil {
		return err
	}

	sqlTx, err := g.beginLocked(ctx)
	if err != nil {
		return err
	}
	tx := &Tx{tx: sqlTx, id: uuid.NewString(), log: g.log}
	tx.log.Debug("transaction begin", zap.String("tx", tx.id))

	defer func() {
		if p := recover(); p != nil {
			g.rollback(tx, fmt.Errorf("panic: %v", p))
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		g.rollback(tx, err)
		return classify(err)
	}

	if err := sqlTx.Commit(); err != nil {
		g.log.Error("commit failed", zap.String("tx", tx.id), zap.Error(err))
		return fmt.Errorf("commit: %w", classify(err))
	}
	tx.log.Debug("transaction commit", zap.String("tx", tx.id))
	return nil
}

// rollback undoes tx after cause. A failed rollback is logged only.
func (g *Guard) rollback(tx *Tx, cause error) {
	if err := tx.tx.Rollback(); err != nil {
		g.log.Error("rollback failed",
			zap.String("tx", tx.id),
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
		return
	}
	g.log.Debug("transaction rollback", zap.String("tx", tx.id), zap.NamedError("cause", cause))
}

// CheckHealth runs a trivial read inside a transaction and reports whether
// it succeeded. It never returns an error.
func (g *Guard) CheckHealth(ctx context.Context) bool {
	err := g.Tx(ctx, func(tx *Tx) error {
		var one int
		return tx.Get(ctx, &one, "SELECT 1")
	})
	if err != nil {
		g.log.Warn("health check failed", zap.Error(err))
		return false
	}
	return true
}

// ForceReconnect closes the current connection and opens a new one.
// Used after detected corruption or a failed health check.
func (g *Guard) ForceReconnect(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return ErrClosed
	}
	if g.db != nil {
		if err := g.db.Close(); err != nil {
			g.log.Warn("close before reconnect failed", zap.Error(err))
		}
		g.db = nil
	}
	g.log.Info("reconnecting", zap.String("path", g.path))
	return g.connectLocked(ctx)
}

// Close checkpoints the WAL and closes the connection. Safe to call
// multiple times.
func (g *Guard) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return nil
	}
	g.closed = true
	if g.db == nil {
		return nil
	}

	if g.path != MemoryPath {
		if err := g.checkpointLocked(context.Background()); err != nil {
			g.log.Warn("checkpoint on close incomplete", zap.Error(err))
		}
	}
	err := g.db.Close()
	g.db = nil
	return err
}

func (g *Guard) ensureLocked(ctx context.Context) error {
	if g.db != nil {
		return nil
	}
	return g.connectLocked(ctx)
}

// connectLocked opens the database, retrying with a constant backoff.
// Exhausted attempts surface as STORE_UNAVAILABLE.
func (g *Guard) connectLocked(ctx context.Context) error {
	attempt := 0
	db, err := backoff.Retry(ctx, func() (*sqlx.DB, error) {
		attempt++
		return g.dial(ctx)
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(g.opts.retryBackoff)),
		backoff.WithMaxTries(g.opts.connectAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			g.log.Warn("connect failed, retrying",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", next),
				zap.Error(err),
			)
		}),
	)
	if err != nil {
		g.log.Error("store unavailable", zap.String("path", g.path), zap.Int("attempts", attempt), zap.Error(err))
		return model.NewStoreUnavailable(err)
	}

	g.db = db
	g.log.Debug("connected", zap.String("path", g.path))
	return nil
}

// dial opens and prepares one connection.
func (g *Guard) dial(ctx context.Context) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite3", g.dsn())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite supports one writer at a time; a single pooled connection also
	// keeps an in-memory database alive across transactions.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := applySchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return db, nil
}

// dsn builds the go-sqlite3 connection string. Pragmas are set per
// connection through the DSN so a reopened pooled connection keeps them.
func (g *Guard) dsn() string {
	params := url.Values{}
	params.Set("_busy_timeout", strconv.FormatInt(g.opts.busyTimeout.Milliseconds(), 10))
	params.Set("_txlock", "immediate")
	params.Set("_foreign_keys", "on")
	params.Set("_synchronous", "NORMAL")
	params.Set("_journal_mode", "WAL")

	if g.path == MemoryPath {
		return "file::memory:?" + params.Encode()
	}
	return "file:" + g.path + "?" + params.Encode()
}

// beginLocked starts an immediate transaction. A busy file is retried
// with the same policy as connecting; exhaustion surfaces as STORE_BUSY.
func (g *Guard) beginLocked(ctx context.Context) (*sqlx.Tx, error) {
	attempt := 0
	tx, err := backoff.Retry(ctx, func() (*sqlx.Tx, error) {
		attempt++
		tx, err := g.db.BeginTxx(ctx, nil)
		if err == nil {
			return tx, nil
		}
		if isBusy(err) {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(g.opts.retryBackoff)),
		backoff.WithMaxTries(g.opts.connectAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			g.log.Warn("store busy, retrying begin",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", next),
				zap.Error(err),
			)
		}),
	)
	if err != nil {
		if isBusy(err) {
			return nil, model.NewStoreBusy(err)
		}
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return tx, nil
}

// applySchema creates tables if they don't exist and runs migrations.
func applySchema(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return runMigrations(ctx, db)
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(ctx context.Context, db *sqlx.DB) error {
	var version int
	if err := db.GetContext(ctx, &version, "PRAGMA user_version"); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 2 {
		if err := migrateToV2(ctx, db); err != nil {
			return err
		}
	}

	if version != currentSchemaVersion {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}
	return nil
}

// migrateToV2 adds price_history.quantity_at_time to stores created before
// snapshots captured quantity. Older rows keep NULL and fall back to the
// live quantity when read.
func migrateToV2(ctx context.Context, db *sqlx.DB) error {
	var count int
	err := db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM pragma_table_info('price_history') WHERE name = 'quantity_at_time'`)
	if err != nil {
		return fmt.Errorf("migrate to v2: inspect price_history: %w", err)
	}
	if count > 0 {
		return nil
	}
	if _, err := db.ExecContext(ctx, `ALTER TABLE price_history ADD COLUMN quantity_at_time INTEGER`); err != nil {
		return fmt.Errorf("migrate to v2: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (g *Guard) verifyPragma(name, expected string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var value string
	if err := g.db.Get(&value, fmt.Sprintf("PRAGMA %s", name)); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
