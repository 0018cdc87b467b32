package store

import (
	"errors"
	"strings"

	"github.com/mattn/go-sqlite3"
)

// containsConstraintText reports whether err is a sqlite3.Error carrying a
// UNIQUE or PRIMARY KEY constraint violation, which the Store surfaces as
// StorageError::Conflict rather than a generic execute failure.
func containsConstraintText(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		if sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
			return true
		}
	}
	return strings.Contains(err.Error(), "UNIQUE constraint") || strings.Contains(err.Error(), "PRIMARY KEY constraint")
}
