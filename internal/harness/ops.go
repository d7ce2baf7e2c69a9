package harness

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/roach88/stockpile/internal/inventory"
	"github.com/roach88/stockpile/internal/model"
	"github.com/roach88/stockpile/internal/pricing"
	"github.com/roach88/stockpile/internal/records"
)

// CaseOK is the case of a step the engine applied.
const CaseOK = "ok"

// Outcome is what an operation returned, in scenario terms.
type Outcome struct {
	Case   string
	Result map[string]any
}

func ok(result map[string]any) Outcome {
	return Outcome{Case: CaseOK, Result: result}
}

func failed(code model.Code, result map[string]any) Outcome {
	return Outcome{Case: string(code), Result: result}
}

type opFunc func(ctx context.Context, e *inventory.Engine, a argMap) (Outcome, error)

// operations maps scenario op names to engine calls.
var operations = map[string]opFunc{
	"add":               opAdd,
	"remove":            opRemove,
	"delete":            opDelete,
	"get":               opGet,
	"set_group":         opSetGroup,
	"update_attributes": opUpdateAttributes,
	"create_group":      opCreateGroup,
	"rename_group":      opRenameGroup,
	"delete_group":      opDeleteGroup,
	"set_price":         opSetPrice,
	"get_price":         opGetPrice,
	"delete_price":      opDeletePrice,
	"cheapest":          opCheapest,
	"low_stock":         opLowStock,
}

// execute runs step against e. Invalid arguments the engine rejects become
// an INVALID_ARGUMENT outcome; malformed scenario args are errors.
func execute(ctx context.Context, e *inventory.Engine, step Step) (Outcome, error) {
	op, found := operations[step.Op]
	if !found {
		return Outcome{}, fmt.Errorf("unknown op %q", step.Op)
	}
	out, err := op(ctx, e, argMap(step.Args))
	if errors.Is(err, model.ErrInvalidArgument) {
		return failed(model.CodeInvalidArgument, nil), nil
	}
	return out, err
}

func opAdd(ctx context.Context, e *inventory.Engine, a argMap) (Outcome, error) {
	name, qty, err := a.nameAndQuantity()
	if err != nil {
		return Outcome{}, err
	}
	group, err := a.optString("group")
	if err != nil {
		return Outcome{}, err
	}
	attrs, err := a.object("attributes")
	if err != nil {
		return Outcome{}, err
	}

	add, err := e.Records().AddQuantity(ctx, name, qty, records.WithGroup(group), records.WithAttributes(attrs))
	if err != nil {
		return Outcome{}, err
	}
	return ok(map[string]any{
		"quantity":  add.Quantity,
		"created":   add.Created,
		"low_stock": add.LowStock,
	}), nil
}

func opRemove(ctx context.Context, e *inventory.Engine, a argMap) (Outcome, error) {
	name, qty, err := a.nameAndQuantity()
	if err != nil {
		return Outcome{}, err
	}

	rm, err := e.Records().RemoveQuantity(ctx, name, qty)
	if err != nil {
		return Outcome{}, err
	}
	switch rm.Failure {
	case "":
		return ok(map[string]any{
			"remaining": rm.Remaining,
			"deleted":   rm.Deleted,
			"low_stock": rm.LowStock,
		}), nil
	case model.CodeInsufficientQuantity:
		return failed(rm.Failure, map[string]any{"available": rm.Available}), nil
	default:
		return failed(rm.Failure, nil), nil
	}
}

func opDelete(ctx context.Context, e *inventory.Engine, a argMap) (Outcome, error) {
	name, err := a.str("name")
	if err != nil {
		return Outcome{}, err
	}
	deleted, err := e.Records().Delete(ctx, name)
	if err != nil {
		return Outcome{}, err
	}
	return found(deleted, nil), nil
}

func opGet(ctx context.Context, e *inventory.Engine, a argMap) (Outcome, error) {
	name, err := a.str("name")
	if err != nil {
		return Outcome{}, err
	}
	rec, exists, err := e.Records().Get(ctx, name)
	if err != nil || !exists {
		return found(false, nil), err
	}
	return ok(map[string]any{
		"quantity":   rec.Quantity,
		"group":      optional(rec.Group),
		"attributes": rec.Attributes,
	}), nil
}

func opSetGroup(ctx context.Context, e *inventory.Engine, a argMap) (Outcome, error) {
	name, err := a.str("name")
	if err != nil {
		return Outcome{}, err
	}
	group, err := a.optString("group")
	if err != nil {
		return Outcome{}, err
	}
	updated, err := e.Records().SetGroup(ctx, name, group)
	if err != nil {
		return Outcome{}, err
	}
	return found(updated, nil), nil
}

func opUpdateAttributes(ctx context.Context, e *inventory.Engine, a argMap) (Outcome, error) {
	name, err := a.str("name")
	if err != nil {
		return Outcome{}, err
	}
	attrs, err := a.object("attributes")
	if err != nil {
		return Outcome{}, err
	}
	merge, err := a.optBool("merge")
	if err != nil {
		return Outcome{}, err
	}
	updated, err := e.Records().UpdateAttributes(ctx, name, attrs, merge)
	if err != nil {
		return Outcome{}, err
	}
	return found(updated, nil), nil
}

func opCreateGroup(ctx context.Context, e *inventory.Engine, a argMap) (Outcome, error) {
	name, err := a.str("name")
	if err != nil {
		return Outcome{}, err
	}
	description, err := a.optString("description")
	if err != nil {
		return Outcome{}, err
	}
	_, created, err := e.Records().CreateGroup(ctx, name, description)
	if err != nil {
		return Outcome{}, err
	}
	return ok(map[string]any{"created": created}), nil
}

func opRenameGroup(ctx context.Context, e *inventory.Engine, a argMap) (Outcome, error) {
	from, err := a.str("from")
	if err != nil {
		return Outcome{}, err
	}
	to, err := a.str("to")
	if err != nil {
		return Outcome{}, err
	}
	n, err := e.Records().RenameGroup(ctx, from, to)
	if err != nil {
		return Outcome{}, err
	}
	return ok(map[string]any{"records": n}), nil
}

func opDeleteGroup(ctx context.Context, e *inventory.Engine, a argMap) (Outcome, error) {
	name, err := a.str("name")
	if err != nil {
		return Outcome{}, err
	}
	cleared, existed, err := e.Records().DeleteGroup(ctx, name)
	if err != nil {
		return Outcome{}, err
	}
	return ok(map[string]any{"cleared": cleared, "existed": existed}), nil
}

func opSetPrice(ctx context.Context, e *inventory.Engine, a argMap) (Outcome, error) {
	name, err := a.str("name")
	if err != nil {
		return Outcome{}, err
	}
	price, err := a.decimal("price")
	if err != nil {
		return Outcome{}, err
	}
	supplier, err := a.optString("supplier")
	if err != nil {
		return Outcome{}, err
	}
	total, err := a.optBool("total")
	if err != nil {
		return Outcome{}, err
	}

	opts := []pricing.PriceOption{pricing.WithSupplier(supplier)}
	if total {
		opts = append(opts, pricing.AsTotalPrice())
	}
	set, err := e.Prices().SetPrice(ctx, name, price, opts...)
	if err != nil {
		return Outcome{}, err
	}
	return found(set, nil), nil
}

func opGetPrice(ctx context.Context, e *inventory.Engine, a argMap) (Outcome, error) {
	name, err := a.str("name")
	if err != nil {
		return Outcome{}, err
	}
	opts, err := a.supplierOptions()
	if err != nil {
		return Outcome{}, err
	}
	total, err := a.optBool("total")
	if err != nil {
		return Outcome{}, err
	}
	if total {
		opts = append(opts, pricing.AsTotal())
	}

	entry, exists, err := e.Prices().GetPrice(ctx, name, opts...)
	if err != nil || !exists {
		return found(false, nil), err
	}
	return ok(map[string]any{
		"price":         entry.Price.String(),
		"supplier":      optional(entry.Supplier),
		"is_unit_price": entry.IsUnitPrice,
	}), nil
}

func opDeletePrice(ctx context.Context, e *inventory.Engine, a argMap) (Outcome, error) {
	name, err := a.str("name")
	if err != nil {
		return Outcome{}, err
	}
	opts, err := a.supplierOptions()
	if err != nil {
		return Outcome{}, err
	}
	removed, err := e.Prices().DeletePrice(ctx, name, opts...)
	if err != nil {
		return Outcome{}, err
	}
	return found(removed, nil), nil
}

func opCheapest(ctx context.Context, e *inventory.Engine, a argMap) (Outcome, error) {
	name, err := a.str("name")
	if err != nil {
		return Outcome{}, err
	}
	quote, exists, err := e.Prices().CheapestSupplier(ctx, name)
	if err != nil || !exists {
		return found(false, nil), err
	}
	return ok(map[string]any{
		"supplier":   optional(quote.Supplier),
		"unit_price": quote.UnitPrice.String(),
	}), nil
}

func opLowStock(ctx context.Context, e *inventory.Engine, a argMap) (Outcome, error) {
	threshold := e.Records().LowStockThreshold()
	if _, present := a["threshold"]; present {
		t, err := a.int("threshold")
		if err != nil {
			return Outcome{}, err
		}
		threshold = t
	}
	recs, err := e.Reports().LowStock(ctx, threshold)
	if err != nil {
		return Outcome{}, err
	}
	names := make([]any, len(recs))
	for i, r := range recs {
		names[i] = r.Name
	}
	return ok(map[string]any{"names": names}), nil
}

// found maps a found/applied flag to ok or NOT_FOUND.
func found(applied bool, result map[string]any) Outcome {
	if !applied {
		return failed(model.CodeNotFound, nil)
	}
	return ok(result)
}

// optional renders a nullable string for results.
func optional(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// argMap reads typed values out of YAML-decoded step args.
type argMap map[string]any

func (a argMap) str(key string) (string, error) {
	v, present := a[key]
	if !present {
		return "", fmt.Errorf("arg %q is required", key)
	}
	s, isString := v.(string)
	if !isString {
		return "", fmt.Errorf("arg %q must be a string, got %T", key, v)
	}
	return s, nil
}

func (a argMap) optString(key string) (string, error) {
	if v, present := a[key]; !present || v == nil {
		return "", nil
	}
	return a.str(key)
}

func (a argMap) optBool(key string) (bool, error) {
	v, present := a[key]
	if !present || v == nil {
		return false, nil
	}
	b, isBool := v.(bool)
	if !isBool {
		return false, fmt.Errorf("arg %q must be a bool, got %T", key, v)
	}
	return b, nil
}

func (a argMap) int(key string) (int64, error) {
	switch v := a[key].(type) {
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("arg %q must be a whole number, got %v", key, v)
		}
		return int64(v), nil
	case nil:
		return 0, fmt.Errorf("arg %q is required", key)
	default:
		return 0, fmt.Errorf("arg %q must be an integer, got %T", key, v)
	}
}

func (a argMap) nameAndQuantity() (string, int64, error) {
	name, err := a.str("name")
	if err != nil {
		return "", 0, err
	}
	qty, err := a.int("quantity")
	return name, qty, err
}

func (a argMap) object(key string) (model.Object, error) {
	v, present := a[key]
	if !present || v == nil {
		return model.Object{}, nil
	}
	m, isMap := v.(map[string]any)
	if !isMap {
		return nil, fmt.Errorf("arg %q must be a mapping, got %T", key, v)
	}
	val, err := model.FromAny(m)
	if err != nil {
		return nil, fmt.Errorf("arg %q: %w", key, err)
	}
	return val.(model.Object), nil
}

func (a argMap) decimal(key string) (decimal.Decimal, error) {
	switch v := a[key].(type) {
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("arg %q: %w", key, err)
		}
		return d, nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case float64:
		return decimal.NewFromFloat(v), nil
	case nil:
		return decimal.Decimal{}, fmt.Errorf("arg %q is required", key)
	default:
		return decimal.Decimal{}, fmt.Errorf("arg %q must be a number or decimal string, got %T", key, v)
	}
}

// supplierOptions targets one supplier only when the supplier arg is given.
func (a argMap) supplierOptions() ([]pricing.PriceOption, error) {
	if _, present := a["supplier"]; !present {
		return nil, nil
	}
	s, err := a.optString("supplier")
	if err != nil {
		return nil, err
	}
	return []pricing.PriceOption{pricing.WithSupplier(s)}, nil
}
