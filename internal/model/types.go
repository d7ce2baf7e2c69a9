package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Record is an inventory item keyed by a unique, case-sensitive name.
type Record struct {
	Name       string  `json:"name"`
	Quantity   int64   `json:"quantity"`
	Group      *string `json:"group,omitempty"`
	Attributes Object  `json:"attributes"`
}

// InGroup reports whether the record belongs to group.
func (r Record) InGroup(group string) bool {
	return r.Group != nil && *r.Group == group
}

// Group is a named bucket of records. Records reference groups by name
// without an enforced foreign key.
type Group struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// PriceEntry is the current price for a (record, supplier) pair.
// A nil Supplier is the default supplier.
type PriceEntry struct {
	Name        string          `json:"name"`
	Supplier    *string         `json:"supplier,omitempty"`
	Price       decimal.Decimal `json:"price"`
	IsUnitPrice bool            `json:"is_unit_price"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// UnitPrice derives the per-unit price. A total price is divided by
// quantity; a non-positive quantity falls back to the raw magnitude.
func (p PriceEntry) UnitPrice(quantity int64) decimal.Decimal {
	return UnitPrice(p.Price, p.IsUnitPrice, quantity)
}

// TotalPrice re-expresses the entry as a total for quantity units.
func (p PriceEntry) TotalPrice(quantity int64) decimal.Decimal {
	return p.UnitPrice(quantity).Mul(decimal.NewFromInt(quantity))
}

// UnitPrice converts a price magnitude to a unit price.
func UnitPrice(magnitude decimal.Decimal, isUnitPrice bool, quantity int64) decimal.Decimal {
	if isUnitPrice || quantity <= 0 {
		return magnitude
	}
	return magnitude.Div(decimal.NewFromInt(quantity))
}

// PriceHistoryEntry is an immutable snapshot of a price-setting event.
// QuantityAtTime is nil only for snapshots written without one.
type PriceHistoryEntry struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	Supplier       *string         `json:"supplier,omitempty"`
	Price          decimal.Decimal `json:"price"`
	IsUnitPrice    bool            `json:"is_unit_price"`
	QuantityAtTime *int64          `json:"quantity_at_time,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
}

// Action identifies the kind of mutation a HistoryEntry records.
type Action string

const (
	ActionAdd          Action = "ADD"
	ActionRemove       Action = "REMOVE"
	ActionDelete       Action = "DELETE"
	ActionUpdateGroup  Action = "UPDATE_GROUP"
	ActionUpdateFields Action = "UPDATE_FIELDS"
)

// ValidActions lists every action kind the audit trail accepts.
var ValidActions = map[Action]bool{
	ActionAdd:          true,
	ActionRemove:       true,
	ActionDelete:       true,
	ActionUpdateGroup:  true,
	ActionUpdateFields: true,
}

// HistoryEntry is an immutable audit row for one mutation.
type HistoryEntry struct {
	ID        int64     `json:"id"`
	Action    Action    `json:"action"`
	Name      string    `json:"name"`
	Quantity  *int64    `json:"quantity,omitempty"`
	Group     *string   `json:"group,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Addition is the outcome of adding quantity to a record.
type Addition struct {
	Name     string `json:"name"`
	Delta    int64  `json:"delta"`
	Quantity int64  `json:"quantity"`
	Created  bool   `json:"created"`
	LowStock bool   `json:"low_stock"`
}

// Removal is the outcome of removing quantity from a record.
// Failure is empty on success, otherwise CodeNotFound or
// CodeInsufficientQuantity; the store is unchanged on failure.
type Removal struct {
	Name      string `json:"name"`
	Amount    int64  `json:"amount"`
	Remaining int64  `json:"remaining"`
	Deleted   bool   `json:"deleted"`
	LowStock  bool   `json:"low_stock"`
	Failure   Code   `json:"failure,omitempty"`
	Available int64  `json:"available,omitempty"`
}

// OK reports whether the removal was applied.
func (r Removal) OK() bool {
	return r.Failure == ""
}

// StringPtr returns a pointer to s, or nil when s is empty.
// Empty supplier and group names mean "none" throughout the engine.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns *s, or "" when s is nil.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
