package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/koustreak/tablesmith/internal/errs"
)

// MySQL error numbers
// Full list: https://dev.mysql.com/doc/mysql-errors/8.0/en/server-error-reference.html
const (
	errDBCreateExists      = 1007
	errDBAccessDenied      = 1044
	errAccessDenied        = 1045
	errUnknownDatabase     = 1049
	errBadFieldError       = 1054
	errDuplicateEntry      = 1062
	errTableAccessDenied   = 1142
	errLockWaitTimeout     = 1205
	errDeadlock            = 1213
	errNoReferencedRow     = 1452
	errRowIsReferenced     = 1451
	errConnRefused         = 2003
	errServerGone          = 2006
	errQueryInterrupted    = 1317
	errStatementTimeExceed = 3024
)

// mapError translates a MySQL driver error into a *errs.Error.
func mapError(err error, msg string) *errs.Error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	if errors.Is(err, sql.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	}

	var mysqlErr *gomysql.MySQLError
	if errors.As(err, &mysqlErr) {
		full := fmt.Sprintf("%s: %s", msg, mysqlErr.Message)
		switch mysqlErr.Number {
		case errDBCreateExists:
			return errs.Wrap(errs.ErrKindAlreadyExists, full, err)
		case errDuplicateEntry, errNoReferencedRow, errRowIsReferenced, errDeadlock:
			return errs.Wrap(errs.ErrKindConflict, full, err)
		case errAccessDenied, errDBAccessDenied, errTableAccessDenied:
			return errs.Wrap(errs.ErrKindPermissionDenied, full, err)
		case errUnknownDatabase:
			return errs.Wrap(errs.ErrKindNotFound, full, err)
		case errConnRefused, errServerGone:
			return errs.Wrap(errs.ErrKindConnectionFailed, full, err)
		case errLockWaitTimeout, errQueryInterrupted, errStatementTimeExceed:
			return errs.Wrap(errs.ErrKindTimeout, full, err)
		case errBadFieldError:
			return errs.Wrap(errs.ErrKindQueryFailed, full, err)
		}
		return errs.Wrap(errs.ErrKindQueryFailed, full, err)
	}

	if errors.Is(err, gomysql.ErrInvalidConn) {
		return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
	}

	return errs.Wrap(errs.ErrKindQueryFailed, msg, err)
}

// mapErr is mapError for call sites that return a plain error.
func mapErr(err error, msg string) error {
	if err == nil {
		return nil
	}
	return mapError(err, msg)
}
