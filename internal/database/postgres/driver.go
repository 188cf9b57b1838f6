// Package postgres implements database.DB and database.Admin on pgx.
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/koustreak/tablesmith/internal/database"
	"github.com/koustreak/tablesmith/internal/errs"
)

// Driver is a PostgreSQL implementation of database.DB backed by pgxpool.
// It is safe for concurrent use by multiple goroutines.
type Driver struct {
	pool *pgxpool.Pool
}

var (
	_ database.DB     = (*Driver)(nil)
	_ database.Admin  = (*Driver)(nil)
	_ database.Opener = Open
)

// New connects to dbName on the server described by cfg and returns a Driver.
// It calls Ping to validate the connection before returning.
func New(ctx context.Context, cfg *database.Config, dbName string) (*Driver, error) {
	pool, err := buildPool(ctx, cfg, dbName)
	if err != nil {
		return nil, err
	}

	d := &Driver{pool: pool}

	if err := d.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return d, nil
}

// Open is New typed as a database.Opener.
func Open(ctx context.Context, cfg *database.Config, dbName string) (database.DB, error) {
	return New(ctx, cfg, dbName)
}

// --- database.DB implementation ---

// Ping verifies the database is reachable by acquiring and releasing a connection.
func (d *Driver) Ping(ctx context.Context) error {
	return mapErr(d.pool.Ping(ctx), "ping failed")
}

// Close drains the connection pool. Call when the application shuts down.
func (d *Driver) Close() {
	d.pool.Close()
}

// Dialect implements database.DB.
func (d *Driver) Dialect() database.Dialect {
	return database.DialectPostgres
}

// Exec executes a statement returning the number of rows affected.
func (d *Driver) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := d.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, mapError(err, "exec failed")
	}
	return tag.RowsAffected(), nil
}

// Query executes a SQL statement that returns multiple rows.
func (d *Driver) Query(ctx context.Context, sql string, args ...any) (database.Rows, error) {
	rows, err := d.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError(err, "query failed")
	}
	return &pgxRows{rows: rows}, nil
}

// QueryRow executes a SQL statement expected to return at most one row.
func (d *Driver) QueryRow(ctx context.Context, sql string, args ...any) database.Row {
	return &pgxRow{row: d.pool.QueryRow(ctx, sql, args...)}
}

// Begin starts a transaction.
func (d *Driver) Begin(ctx context.Context) (database.Tx, error) {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return nil, mapError(err, "begin failed")
	}
	return &pgxTx{tx: tx}, nil
}

// TableExists reports whether a relation with the given name exists in the
// current schema.
func (d *Driver) TableExists(ctx context.Context, table string) (bool, error) {
	const q = `
		SELECT EXISTS (
			SELECT 1
			FROM information_schema.tables
			WHERE table_schema = current_schema()
			  AND table_name   = $1
		)`

	var exists bool
	if err := d.pool.QueryRow(ctx, q, table).Scan(&exists); err != nil {
		return false, mapError(err, "failed to check table existence")
	}
	return exists, nil
}

// --- database.Admin implementation ---

// DatabaseExists reports whether the named database exists on the server.
func (d *Driver) DatabaseExists(ctx context.Context, name string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)`

	var exists bool
	if err := d.pool.QueryRow(ctx, q, name).Scan(&exists); err != nil {
		return false, mapError(err, "failed to check database existence")
	}
	return exists, nil
}

// CreateDatabase creates the named database. Two concurrent creates of the
// same name can fail with either duplicate_database or a unique violation
// on pg_database; both are reported as already_exists.
func (d *Driver) CreateDatabase(ctx context.Context, name string) error {
	if name == "" {
		return errs.New(errs.ErrKindInvalidInput, "database name is required")
	}

	_, err := d.pool.Exec(ctx, "CREATE DATABASE "+pgx.Identifier{name}.Sanitize())
	if err == nil {
		return nil
	}

	mapped := mapError(err, "failed to create database "+name)
	if mapped.Kind == errs.ErrKindConflict {
		mapped.Kind = errs.ErrKindAlreadyExists
	}
	return mapped
}

// --- pgx type wrappers ---

// pgxRows wraps pgx.Rows to satisfy database.Rows.
type pgxRows struct {
	rows pgx.Rows
}

func (r *pgxRows) Next() bool             { return r.rows.Next() }
func (r *pgxRows) Scan(dest ...any) error { return mapErr(r.rows.Scan(dest...), "scan failed") }
func (r *pgxRows) Close()                 { r.rows.Close() }
func (r *pgxRows) Err() error             { return mapErr(r.rows.Err(), "row iteration failed") }

// pgxRow wraps pgx.Row to satisfy database.Row.
type pgxRow struct {
	row pgx.Row
}

func (r *pgxRow) Scan(dest ...any) error { return mapErr(r.row.Scan(dest...), "scan failed") }

// pgxTx wraps pgx.Tx to satisfy database.Tx.
type pgxTx struct {
	tx pgx.Tx
}

func (t *pgxTx) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := t.tx.Exec(ctx, sql, args...)
	if err != nil {
		return 0, mapError(err, "exec failed")
	}
	return tag.RowsAffected(), nil
}

func (t *pgxTx) Query(ctx context.Context, sql string, args ...any) (database.Rows, error) {
	rows, err := t.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError(err, "query failed")
	}
	return &pgxRows{rows: rows}, nil
}

func (t *pgxTx) QueryRow(ctx context.Context, sql string, args ...any) database.Row {
	return &pgxRow{row: t.tx.QueryRow(ctx, sql, args...)}
}

func (t *pgxTx) Commit(ctx context.Context) error {
	return mapErr(t.tx.Commit(ctx), "commit failed")
}

func (t *pgxTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return mapErr(err, "rollback failed")
}
