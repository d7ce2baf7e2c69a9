package records

import (
	"context"
	"fmt"
	"math"

	sq "github.com/Masterminds/squirrel"
	"go.uber.org/zap"

	"github.com/roach88/stockpile/internal/audit"
	"github.com/roach88/stockpile/internal/model"
	"github.com/roach88/stockpile/internal/store"
)

type addOptions struct {
	group      string
	attributes model.Object
}

// AddOption sets fields used only when AddQuantity creates the record.
type AddOption func(*addOptions)

// WithGroup places a newly created record in group.
func WithGroup(group string) AddOption {
	return func(o *addOptions) { o.group = group }
}

// WithAttributes sets a newly created record's attributes.
func WithAttributes(attrs model.Object) AddOption {
	return func(o *addOptions) { o.attributes = attrs }
}

// AddQuantity increases name's quantity by delta, creating the record if
// it does not exist. Group and attributes apply only on creation; an
// existing record keeps its own. delta must be positive.
func (s *Store) AddQuantity(ctx context.Context, name string, delta int64, opts ...AddOption) (model.Addition, error) {
	if err := validateName(name); err != nil {
		return model.Addition{}, err
	}
	if delta <= 0 {
		return model.Addition{}, model.InvalidArgument(name, "quantity to add must be positive, got %d", delta)
	}

	var o addOptions
	for _, opt := range opts {
		opt(&o)
	}
	attrs, err := model.EncodeAttributes(o.attributes)
	if err != nil {
		return model.Addition{}, model.InvalidArgument(name, "%v", err)
	}

	result := model.Addition{Name: name, Delta: delta}
	err = s.guard.Tx(ctx, func(tx *store.Tx) error {
		rec, found, err := getTx(ctx, tx, name)
		if err != nil {
			return err
		}

		var group *string
		if found {
			if delta > math.MaxInt64-rec.Quantity {
				return model.InvalidArgument(name, "quantity would overflow")
			}
			result.Quantity = rec.Quantity + delta
			group = rec.Group
			if err := setQuantity(ctx, tx, name, result.Quantity); err != nil {
				return err
			}
		} else {
			result.Quantity = delta
			result.Created = true
			group = model.StringPtr(o.group)
			query, args, err := sq.Insert("items").
				Columns("name", "quantity", "group_name", "attributes").
				Values(name, delta, group, attrs).
				ToSql()
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, query, args...); err != nil {
				return fmt.Errorf("insert record %q: %w", name, err)
			}
		}

		return s.audit.Append(ctx, tx, model.ActionAdd, name,
			audit.WithQuantity(delta), audit.WithGroup(group))
	})
	if err != nil {
		return model.Addition{}, err
	}

	s.log.Debug("quantity added",
		zap.String("name", name),
		zap.Int64("delta", delta),
		zap.Int64("quantity", result.Quantity),
		zap.Bool("created", result.Created),
	)
	result.LowStock = s.advise(name, result.Quantity)
	return result, nil
}

// RemoveQuantity decreases name's quantity by amount. Removing everything
// deletes the record. An absent record or insufficient stock leaves the
// store unchanged and is reported through Removal.Failure.
func (s *Store) RemoveQuantity(ctx context.Context, name string, amount int64) (model.Removal, error) {
	if err := validateName(name); err != nil {
		return model.Removal{}, err
	}
	if amount <= 0 {
		return model.Removal{}, model.InvalidArgument(name, "quantity to remove must be positive, got %d", amount)
	}

	result := model.Removal{Name: name, Amount: amount}
	err := s.guard.Tx(ctx, func(tx *store.Tx) error {
		rec, found, err := getTx(ctx, tx, name)
		if err != nil {
			return err
		}
		if !found {
			result.Failure = model.CodeNotFound
			return nil
		}
		if amount > rec.Quantity {
			result.Failure = model.CodeInsufficientQuantity
			result.Available = rec.Quantity
			return nil
		}

		result.Remaining = rec.Quantity - amount
		if result.Remaining == 0 {
			result.Deleted = true
			if err := deleteItem(ctx, tx, name); err != nil {
				return err
			}
		} else if err := setQuantity(ctx, tx, name, result.Remaining); err != nil {
			return err
		}

		return s.audit.Append(ctx, tx, model.ActionRemove, name,
			audit.WithQuantity(amount), audit.WithGroup(rec.Group))
	})
	if err != nil {
		return model.Removal{}, err
	}

	if !result.OK() {
		s.log.Debug("removal refused",
			zap.String("name", name),
			zap.Int64("amount", amount),
			zap.String("reason", string(result.Failure)),
		)
		return result, nil
	}
	if !result.Deleted {
		result.LowStock = s.advise(name, result.Remaining)
	}
	return result, nil
}

// Delete removes name regardless of quantity. Returns false when the
// record does not exist. The DELETE entry records the quantity held.
func (s *Store) Delete(ctx context.Context, name string) (bool, error) {
	if err := validateName(name); err != nil {
		return false, err
	}

	deleted := false
	err := s.guard.Tx(ctx, func(tx *store.Tx) error {
		rec, found, err := getTx(ctx, tx, name)
		if err != nil || !found {
			return err
		}
		if err := deleteItem(ctx, tx, name); err != nil {
			return err
		}
		if err := s.audit.Append(ctx, tx, model.ActionDelete, name,
			audit.WithQuantity(rec.Quantity), audit.WithGroup(rec.Group)); err != nil {
			return err
		}
		deleted = true
		return nil
	})
	return deleted, err
}

func setQuantity(ctx context.Context, tx *store.Tx, name string, quantity int64) error {
	query, args, err := sq.Update("items").
		Set("quantity", quantity).
		Where(sq.Eq{"name": name}).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("update quantity of %q: %w", name, err)
	}
	return nil
}

func deleteItem(ctx context.Context, tx *store.Tx, name string) error {
	query, args, err := sq.Delete("items").Where(sq.Eq{"name": name}).ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("delete record %q: %w", name, err)
	}
	return nil
}
