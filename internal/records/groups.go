package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"go.uber.org/zap"

	"github.com/roach88/stockpile/internal/audit"
	"github.com/roach88/stockpile/internal/model"
	"github.com/roach88/stockpile/internal/store"
)

type groupRow struct {
	Name        string `db:"name"`
	Description string `db:"description"`
	CreatedAt   string `db:"created_at"`
}

func (r groupRow) toGroup() (model.Group, error) {
	ts, err := model.ParseTime(r.CreatedAt)
	if err != nil {
		return model.Group{}, fmt.Errorf("group %q: parse created_at: %w", r.Name, err)
	}
	return model.Group{Name: r.Name, Description: r.Description, CreatedAt: ts}, nil
}

func selectGroups() sq.SelectBuilder {
	return sq.Select("name", "description", "created_at").From("item_groups")
}

// CreateGroup registers a group. If it already exists the stored group is
// returned unchanged with created=false.
func (s *Store) CreateGroup(ctx context.Context, name, description string) (group model.Group, created bool, err error) {
	if name == "" {
		return model.Group{}, false, model.InvalidArgument(name, "group name is required")
	}

	err = s.guard.Tx(ctx, func(tx *store.Tx) error {
		existing, found, err := getGroupTx(ctx, tx, name)
		if err != nil {
			return err
		}
		if found {
			group = existing
			return nil
		}

		now := s.clock.Now()
		query, args, err := sq.Insert("item_groups").
			Columns("name", "description", "created_at").
			Values(name, description, model.FormatTime(now)).
			ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("insert group %q: %w", name, err)
		}
		group = model.Group{Name: name, Description: description, CreatedAt: now.UTC()}
		created = true
		return nil
	})
	return group, created, err
}

// GetGroup returns the named group, and false when it does not exist.
func (s *Store) GetGroup(ctx context.Context, name string) (group model.Group, found bool, err error) {
	err = s.guard.Tx(ctx, func(tx *store.Tx) error {
		group, found, err = getGroupTx(ctx, tx, name)
		return err
	})
	return group, found, err
}

// ListGroups returns registered groups ordered by name.
func (s *Store) ListGroups(ctx context.Context) ([]model.Group, error) {
	query, args, err := selectGroups().OrderBy("name").ToSql()
	if err != nil {
		return nil, err
	}

	var rows []groupRow
	err = s.guard.Tx(ctx, func(tx *store.Tx) error {
		return tx.Select(ctx, &rows, query, args...)
	})
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}

	groups := make([]model.Group, 0, len(rows))
	for _, r := range rows {
		g, err := r.toGroup()
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, nil
}

// RenameGroup moves every record in oldName to newName and renames the
// group row, returning how many records changed. No per-record history
// is written. When newName is already registered the old row is dropped.
func (s *Store) RenameGroup(ctx context.Context, oldName, newName string) (int64, error) {
	if oldName == "" || newName == "" {
		return 0, model.InvalidArgument(oldName, "group names are required")
	}

	var affected int64
	err := s.guard.Tx(ctx, func(tx *store.Tx) error {
		n, err := updateGroupName(ctx, tx, oldName, &newName)
		if err != nil {
			return err
		}
		affected = n

		if oldName == newName {
			return nil
		}
		_, oldExists, err := getGroupTx(ctx, tx, oldName)
		if err != nil || !oldExists {
			return err
		}
		_, newExists, err := getGroupTx(ctx, tx, newName)
		if err != nil {
			return err
		}

		var b sq.Sqlizer
		if newExists {
			b = sq.Delete("item_groups").Where(sq.Eq{"name": oldName})
		} else {
			b = sq.Update("item_groups").Set("name", newName).Where(sq.Eq{"name": oldName})
		}
		query, args, err := b.ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("rename group %q: %w", oldName, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.log.Info("group renamed",
		zap.String("from", oldName),
		zap.String("to", newName),
		zap.Int64("records", affected),
	)
	return affected, nil
}

// DeleteGroup removes the group row and clears the group on its records,
// which are kept. Returns how many records were cleared and whether the
// group row existed.
func (s *Store) DeleteGroup(ctx context.Context, name string) (cleared int64, existed bool, err error) {
	if name == "" {
		return 0, false, model.InvalidArgument(name, "group name is required")
	}

	err = s.guard.Tx(ctx, func(tx *store.Tx) error {
		cleared, err = updateGroupName(ctx, tx, name, nil)
		if err != nil {
			return err
		}

		query, args, err := sq.Delete("item_groups").Where(sq.Eq{"name": name}).ToSql()
		if err != nil {
			return err
		}
		res, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("delete group %q: %w", name, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		existed = n > 0
		return nil
	})
	return cleared, existed, err
}

// SetGroup moves a single record into group, or out of any group when
// group is empty. Returns false when the record does not exist.
func (s *Store) SetGroup(ctx context.Context, name, group string) (bool, error) {
	if err := validateName(name); err != nil {
		return false, err
	}

	updated := false
	err := s.guard.Tx(ctx, func(tx *store.Tx) error {
		_, found, err := getTx(ctx, tx, name)
		if err != nil || !found {
			return err
		}

		g := model.StringPtr(group)
		query, args, err := sq.Update("items").Set("group_name", g).Where(sq.Eq{"name": name}).ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("set group of %q: %w", name, err)
		}
		updated = true
		return s.audit.Append(ctx, tx, model.ActionUpdateGroup, name, audit.WithGroup(g))
	})
	return updated, err
}

func getGroupTx(ctx context.Context, tx *store.Tx, name string) (model.Group, bool, error) {
	query, args, err := selectGroups().Where(sq.Eq{"name": name}).ToSql()
	if err != nil {
		return model.Group{}, false, err
	}

	var row groupRow
	err = tx.Get(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Group{}, false, nil
	}
	if err != nil {
		return model.Group{}, false, fmt.Errorf("get group %q: %w", name, err)
	}

	g, err := row.toGroup()
	if err != nil {
		return model.Group{}, false, err
	}
	return g, true, nil
}

// updateGroupName rewrites group_name on every record in from. A nil to
// clears the group.
func updateGroupName(ctx context.Context, tx *store.Tx, from string, to *string) (int64, error) {
	query, args, err := sq.Update("items").
		Set("group_name", to).
		Where(sq.Eq{"group_name": from}).
		ToSql()
	if err != nil {
		return 0, err
	}
	res, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("update records in group %q: %w", from, err)
	}
	return res.RowsAffected()
}
