// Package inventory wires the store guard and the inventory components
// into one Engine, the handle an API layer or the CLI holds.
package inventory

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/roach88/stockpile/internal/audit"
	"github.com/roach88/stockpile/internal/config"
	"github.com/roach88/stockpile/internal/model"
	"github.com/roach88/stockpile/internal/pricing"
	"github.com/roach88/stockpile/internal/records"
	"github.com/roach88/stockpile/internal/reporting"
	"github.com/roach88/stockpile/internal/store"
)

// Engine owns one Guard and the components sharing it.
type Engine struct {
	cfg     config.Config
	clock   model.Clock
	log     *zap.Logger
	guard   *store.Guard
	trail   *audit.Trail
	records *records.Store
	ledger  *pricing.Ledger
	reports *reporting.View
}

type options struct {
	clock model.Clock
}

// Option configures an Engine.
type Option func(*options)

// WithClock replaces the wall clock, for deterministic tests.
func WithClock(c model.Clock) Option {
	return func(o *options) { o.clock = c }
}

// Open connects to the configured store and wires every component.
func Open(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{clock: model.SystemClock{}}
	for _, opt := range opts {
		opt(&o)
	}

	guard, err := store.Open(ctx, cfg.Store.Path,
		store.WithBusyTimeout(cfg.Store.BusyTimeout),
		store.WithConnectAttempts(cfg.Store.ConnectAttempts),
		store.WithRetryBackoff(cfg.Store.RetryBackoff),
		store.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	trail := audit.New(guard, audit.WithClock(o.clock), audit.WithLogger(logger))
	ledger := pricing.New(guard, pricing.WithClock(o.clock), pricing.WithLogger(logger))
	e := &Engine{
		cfg:   cfg,
		clock: o.clock,
		log:   logger.Named("inventory"),
		guard: guard,
		trail: trail,
		records: records.New(guard, trail,
			records.WithClock(o.clock),
			records.WithLogger(logger),
			records.WithLowStockThreshold(cfg.Inventory.LowStockThreshold),
		),
		ledger:  ledger,
		reports: reporting.NewView(guard, trail, ledger, logger),
	}
	e.log.Info("engine ready", zap.String("store", cfg.Store.Path))
	return e, nil
}

// Records returns the record store.
func (e *Engine) Records() *records.Store { return e.records }

// Prices returns the price ledger.
func (e *Engine) Prices() *pricing.Ledger { return e.ledger }

// Audit returns the audit trail shared by every component.
func (e *Engine) Audit() *audit.Trail { return e.trail }

// Reports returns the read-only reporting view.
func (e *Engine) Reports() *reporting.View { return e.reports }

// Config returns the configuration the engine was opened with.
func (e *Engine) Config() config.Config { return e.cfg }

// Guard exposes the shared store handle for read-only tooling.
func (e *Engine) Guard() *store.Guard { return e.guard }

// Health checks the store and, when the check fails, reconnects once and
// checks again.
func (e *Engine) Health(ctx context.Context) bool {
	if e.guard.CheckHealth(ctx) {
		return true
	}
	e.log.Warn("store unhealthy, reconnecting")
	if err := e.guard.ForceReconnect(ctx); err != nil {
		e.log.Error("reconnect failed", zap.Error(err))
		return false
	}
	return e.guard.CheckHealth(ctx)
}

// Backup copies the store to dst, or to a timestamped file under the
// configured backup directory when dst is empty. Returns the path written.
func (e *Engine) Backup(ctx context.Context, dst string) (string, error) {
	if dst == "" {
		dst = filepath.Join(e.cfg.Backup.Dir, store.BackupName(e.clock.Now()))
	}
	if err := e.guard.Backup(ctx, dst); err != nil {
		return "", fmt.Errorf("backup: %w", err)
	}
	return dst, nil
}

// Close flushes and closes the store.
func (e *Engine) Close() error {
	return e.guard.Close()
}
