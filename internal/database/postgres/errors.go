package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/koustreak/tablesmith/internal/errs"
)

// PostgreSQL SQLSTATE codes with a dedicated mapping.
// Full list: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	pgErrUniqueViolation       = "23505"
	pgErrDuplicateDatabase     = "42P04"
	pgErrInsufficientPrivilege = "42501"
	pgErrInvalidCatalogName    = "3D000"
)

// mapError translates pgx / pgconn native errors into *errs.Error.
func mapError(err error, msg string) *errs.Error {
	if err == nil {
		return nil
	}

	// Context cancellation / deadline exceeded
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	// No rows
	if errors.Is(err, pgx.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	}

	// Postgres server-side error (SQLSTATE codes)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		full := fmt.Sprintf("%s: %s", msg, pgErr.Message)
		switch pgErr.Code {
		case pgErrUniqueViolation:
			return errs.Wrap(errs.ErrKindConflict, full, err)
		case pgErrDuplicateDatabase:
			return errs.Wrap(errs.ErrKindAlreadyExists, full, err)
		case pgErrInsufficientPrivilege:
			return errs.Wrap(errs.ErrKindPermissionDenied, full, err)
		case pgErrInvalidCatalogName:
			return errs.Wrap(errs.ErrKindNotFound, full, err)
		}
		if len(pgErr.Code) >= 2 {
			switch pgErr.Code[:2] {
			case "08": // connection exception
				return errs.Wrap(errs.ErrKindConnectionFailed, full, err)
			case "28": // invalid authorization
				return errs.Wrap(errs.ErrKindPermissionDenied, full, err)
			case "57": // operator intervention, includes query_canceled
				return errs.Wrap(errs.ErrKindTimeout, full, err)
			}
		}
		return errs.Wrap(errs.ErrKindQueryFailed, full, err)
	}

	// Fallthrough: connection-level errors (TLS, network, auth)
	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}

// mapErr is mapError for call sites that return a plain error, so that a
// nil result stays a nil interface.
func mapErr(err error, msg string) error {
	if err == nil {
		return nil
	}
	return mapError(err, msg)
}
