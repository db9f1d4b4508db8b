package database

import (
	"context"
	"database/sql"
	stderrors "errors"
	"strings"

	"github.com/itsatony/w4b_v3/server/sensorlog/internal/errors"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Classify maps a store error onto the error taxonomy. Errors that are
// already classified pass through unchanged.
func Classify(err error, msg string) error {
	if err == nil {
		return nil
	}
	var typed *errors.Error
	if errors.As(err, &typed) {
		return err
	}
	switch {
	case stderrors.Is(err, sql.ErrNoRows):
		return errors.NewNotFoundError(msg, err)
	case stderrors.Is(err, context.DeadlineExceeded):
		return errors.NewResourceExhaustedError(msg, err)
	case stderrors.Is(err, sql.ErrConnDone), strings.Contains(err.Error(), "database is closed"):
		return errors.NewUnavailableError(msg, err)
	}

	var se *sqlite.Error
	if !stderrors.As(err, &se) {
		return errors.NewDatabaseError(msg, err)
	}
	code := se.Code()
	switch code {
	case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY, sqlite3.SQLITE_CONSTRAINT_NOTNULL, sqlite3.SQLITE_CONSTRAINT_CHECK:
		return errors.NewValidationError(msg, err)
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return errors.NewIntegrityViolationError(msg, err)
	}
	switch code & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return errors.NewResourceExhaustedError(msg, err)
	case sqlite3.SQLITE_CONSTRAINT:
		if strings.Contains(se.Error(), "FOREIGN KEY") {
			return errors.NewValidationError(msg, err)
		}
		return errors.NewIntegrityViolationError(msg, err)
	case sqlite3.SQLITE_CORRUPT, sqlite3.SQLITE_NOTADB, sqlite3.SQLITE_CANTOPEN,
		sqlite3.SQLITE_IOERR, sqlite3.SQLITE_FULL, sqlite3.SQLITE_READONLY:
		return errors.NewUnavailableError(msg, err)
	}
	return errors.NewDatabaseError(msg, err)
}
