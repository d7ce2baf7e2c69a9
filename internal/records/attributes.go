package records

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/roach88/stockpile/internal/audit"
	"github.com/roach88/stockpile/internal/model"
	"github.com/roach88/stockpile/internal/store"
)

// UpdateAttributes replaces a record's attributes with attrs, or when
// merge is set, overlays attrs onto the existing ones (new keys win).
// Returns false when the record does not exist.
func (s *Store) UpdateAttributes(ctx context.Context, name string, attrs model.Object, merge bool) (bool, error) {
	if err := validateName(name); err != nil {
		return false, err
	}
	// Validate encodability before opening a transaction.
	if _, err := model.EncodeAttributes(attrs); err != nil {
		return false, model.InvalidArgument(name, "%v", err)
	}

	updated := false
	err := s.guard.Tx(ctx, func(tx *store.Tx) error {
		rec, found, err := getTx(ctx, tx, name)
		if err != nil || !found {
			return err
		}

		next := attrs
		if merge {
			next = rec.Attributes.Merge(attrs)
		}
		text, err := model.EncodeAttributes(next)
		if err != nil {
			return model.InvalidArgument(name, "%v", err)
		}

		query, args, err := sq.Update("items").Set("attributes", text).Where(sq.Eq{"name": name}).ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("update attributes of %q: %w", name, err)
		}
		updated = true
		return s.audit.Append(ctx, tx, model.ActionUpdateFields, name, audit.WithGroup(rec.Group))
	})
	return updated, err
}
