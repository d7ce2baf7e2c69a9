// Package reporting composes read-only summaries over records, the audit
// trail, and the price ledger. Each report reads inside one transaction so
// it sees a single consistent state.
package reporting

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/roach88/stockpile/internal/audit"
	"github.com/roach88/stockpile/internal/model"
	"github.com/roach88/stockpile/internal/pricing"
	"github.com/roach88/stockpile/internal/records"
	"github.com/roach88/stockpile/internal/store"
)

// View builds reports.
type View struct {
	guard  *store.Guard
	audit  *audit.Trail
	ledger *pricing.Ledger
	logger *zap.Logger
}

// NewView wires a reporting view. A nil logger is replaced with a no-op.
func NewView(guard *store.Guard, trail *audit.Trail, ledger *pricing.Ledger, logger *zap.Logger) *View {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &View{guard: guard, audit: trail, ledger: ledger, logger: logger.Named("reporting")}
}

// Activity summarizes audited mutations after a cutoff.
type Activity struct {
	Since        time.Time `json:"since"`
	Added        int       `json:"added"`
	Removed      int       `json:"removed"`
	Deleted      int       `json:"deleted"`
	AddedNames   []string  `json:"added_names"`
	RemovedNames []string  `json:"removed_names"`
	DeletedNames []string  `json:"deleted_names"`
}

// ValuationLine is one record's contribution to a valuation.
// Priced is false when no price was known and the line counts as zero.
type ValuationLine struct {
	Name      string          `json:"name"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Value     decimal.Decimal `json:"value"`
	Priced    bool            `json:"priced"`
}

// Valuation is the total value of current stock with its breakdown.
type Valuation struct {
	Lines []ValuationLine `json:"lines"`
	Total decimal.Decimal `json:"total"`
}

// Unpriced returns the names of records valued at zero for lack of a price.
func (v Valuation) Unpriced() []string {
	var out []string
	for _, l := range v.Lines {
		if !l.Priced {
			out = append(out, l.Name)
		}
	}
	return out
}

// LowStock returns current records holding fewer than threshold units.
func (v *View) LowStock(ctx context.Context, threshold int64) ([]model.Record, error) {
	var recs []model.Record
	err := v.guard.Tx(ctx, func(tx *store.Tx) error {
		var err error
		recs, err = records.ListTx(ctx, tx, records.BelowQuantity(threshold))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("low stock report: %w", err)
	}
	return recs, nil
}

// ActivitySince counts ADD, REMOVE, and DELETE entries stamped after
// cutoff, including entries for records that no longer exist.
func (v *View) ActivitySince(ctx context.Context, cutoff time.Time) (Activity, error) {
	var entries []model.HistoryEntry
	err := v.guard.Tx(ctx, func(tx *store.Tx) error {
		var err error
		entries, err = v.audit.EntriesSince(ctx, tx, cutoff)
		return err
	})
	if err != nil {
		return Activity{}, fmt.Errorf("activity report: %w", err)
	}

	act := Activity{Since: cutoff.UTC()}
	added := map[string]bool{}
	removed := map[string]bool{}
	deleted := map[string]bool{}
	for _, e := range entries {
		switch e.Action {
		case model.ActionAdd:
			act.Added++
			added[e.Name] = true
		case model.ActionRemove:
			act.Removed++
			removed[e.Name] = true
		case model.ActionDelete:
			act.Deleted++
			deleted[e.Name] = true
		}
	}
	act.AddedNames = sortedKeys(added)
	act.RemovedNames = sortedKeys(removed)
	act.DeletedNames = sortedKeys(deleted)

	v.logger.Debug("activity computed",
		zap.Time("since", cutoff),
		zap.Int("entries", len(entries)),
	)
	return act, nil
}

// Valuation values every current record at prices[name] per unit.
// Records without a price appear as zero-valued lines with Priced false.
func (v *View) Valuation(ctx context.Context, prices map[string]decimal.Decimal) (Valuation, error) {
	var recs []model.Record
	err := v.guard.Tx(ctx, func(tx *store.Tx) error {
		var err error
		recs, err = records.ListTx(ctx, tx)
		return err
	})
	if err != nil {
		return Valuation{}, fmt.Errorf("valuation: %w", err)
	}
	return value(recs, prices), nil
}

// ValuationFromLedger values current stock at each record's most recently
// updated unit price.
func (v *View) ValuationFromLedger(ctx context.Context) (Valuation, error) {
	var recs []model.Record
	var prices map[string]decimal.Decimal
	err := v.guard.Tx(ctx, func(tx *store.Tx) error {
		var err error
		if recs, err = records.ListTx(ctx, tx); err != nil {
			return err
		}
		prices, err = v.ledger.LatestPrices(ctx, tx)
		return err
	})
	if err != nil {
		return Valuation{}, fmt.Errorf("valuation: %w", err)
	}

	val := value(recs, prices)
	if missing := val.Unpriced(); len(missing) > 0 {
		v.logger.Info("records valued at zero", zap.Strings("names", missing))
	}
	return val, nil
}

func value(recs []model.Record, prices map[string]decimal.Decimal) Valuation {
	val := Valuation{Lines: make([]ValuationLine, 0, len(recs)), Total: decimal.Zero}
	for _, r := range recs {
		line := ValuationLine{Name: r.Name, Quantity: r.Quantity, UnitPrice: decimal.Zero, Value: decimal.Zero}
		if p, ok := prices[r.Name]; ok {
			line.UnitPrice = p
			line.Value = p.Mul(decimal.NewFromInt(r.Quantity))
			line.Priced = true
		}
		val.Total = val.Total.Add(line.Value)
		val.Lines = append(val.Lines, line)
	}
	return val
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
