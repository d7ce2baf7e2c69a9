package store

import (
	"errors"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/stockpile/internal/model"
)

// isBusy reports whether err is SQLite lock contention.
func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

// classify maps lock contention to STORE_BUSY and leaves every other
// error untouched, including ones that are already model errors.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var modelErr *model.Error
	if errors.As(err, &modelErr) {
		return err
	}
	if isBusy(err) {
		return model.NewStoreBusy(err)
	}
	return err
}
