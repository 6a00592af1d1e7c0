// Package shared provides common utilities used across the codebase.
//
//nolint:revive // "shared" is an intentional package name for cross-cutting helpers.
package shared

import (
	"errors"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// sqliteCode returns the primary result code of a driver error, or 0.
// Extended codes (e.g. SQLITE_BUSY_SNAPSHOT) keep the primary code in the low byte.
func sqliteCode(err error) int {
	var serr *sqlite.Error
	if !errors.As(err, &serr) {
		return 0
	}
	return serr.Code() & 0xff
}

// IsSQLiteConflictError reports whether a snapshot write lost a lock race
// (SQLITE_BUSY or SQLITE_LOCKED) and should be retried.
func IsSQLiteConflictError(err error) bool {
	switch sqliteCode(err) {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}
