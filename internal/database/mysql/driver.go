// Package mysql implements database.DB and database.Admin on database/sql
// with the go-sql-driver/mysql driver.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/koustreak/tablesmith/internal/database"
	"github.com/koustreak/tablesmith/internal/errs"

	_ "github.com/go-sql-driver/mysql" // register "mysql" driver
)

// Driver is a MySQL implementation of database.DB backed by database/sql.
// It is safe for concurrent use by multiple goroutines.
type Driver struct {
	db *sql.DB
}

var (
	_ database.DB     = (*Driver)(nil)
	_ database.Admin  = (*Driver)(nil)
	_ database.Opener = Open
)

// New opens a MySQL connection pool for dbName and returns a Driver.
// It calls Ping to validate the connection before returning.
func New(ctx context.Context, cfg *database.Config, dbName string) (*Driver, error) {
	db, err := buildPool(cfg, dbName)
	if err != nil {
		return nil, err
	}

	d := &Driver{db: db}

	pingCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	if err := d.Ping(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return d, nil
}

// Open is New typed as a database.Opener.
func Open(ctx context.Context, cfg *database.Config, dbName string) (database.DB, error) {
	return New(ctx, cfg, dbName)
}

// NewFromDB wraps an existing pool.
func NewFromDB(db *sql.DB) *Driver {
	return &Driver{db: db}
}

// --- database.DB implementation ---

func (d *Driver) Ping(ctx context.Context) error {
	return mapErr(d.db.PingContext(ctx), "ping failed")
}

func (d *Driver) Close() {
	_ = d.db.Close()
}

func (d *Driver) Dialect() database.Dialect {
	return database.DialectMySQL
}

func (d *Driver) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, mapError(err, "exec failed")
	}
	return rowsAffected(res), nil
}

func (d *Driver) Query(ctx context.Context, query string, args ...any) (database.Rows, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "query failed")
	}
	return &mysqlRows{rows: rows}, nil
}

func (d *Driver) QueryRow(ctx context.Context, query string, args ...any) database.Row {
	return &mysqlRow{row: d.db.QueryRowContext(ctx, query, args...)}
}

func (d *Driver) Begin(ctx context.Context) (database.Tx, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, mapError(err, "begin failed")
	}
	return &mysqlTx{tx: tx}, nil
}

// TableExists reports whether a relation with the given name exists in the
// connection's selected database.
func (d *Driver) TableExists(ctx context.Context, table string) (bool, error) {
	const q = `
		SELECT COUNT(*)
		FROM information_schema.tables
		WHERE table_schema = DATABASE()
		  AND table_name   = ?`

	var n int
	if err := d.db.QueryRowContext(ctx, q, table).Scan(&n); err != nil {
		return false, mapError(err, "failed to check table existence")
	}
	return n > 0, nil
}

// --- database.Admin implementation ---

func (d *Driver) DatabaseExists(ctx context.Context, name string) (bool, error) {
	const q = `SELECT COUNT(*) FROM information_schema.schemata WHERE schema_name = ?`

	var n int
	if err := d.db.QueryRowContext(ctx, q, name).Scan(&n); err != nil {
		return false, mapError(err, "failed to check database existence")
	}
	return n > 0, nil
}

func (d *Driver) CreateDatabase(ctx context.Context, name string) error {
	if name == "" {
		return errs.New(errs.ErrKindInvalidInput, "database name is required")
	}
	_, err := d.db.ExecContext(ctx, "CREATE DATABASE "+quoteIdent(name))
	return mapErr(err, "failed to create database "+name)
}

// quoteIdent wraps a MySQL identifier in backticks.
func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func rowsAffected(res sql.Result) int64 {
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}

// --- database/sql type wrappers ---

type mysqlRows struct {
	rows *sql.Rows
}

func (r *mysqlRows) Next() bool             { return r.rows.Next() }
func (r *mysqlRows) Scan(dest ...any) error { return mapErr(r.rows.Scan(dest...), "scan failed") }
func (r *mysqlRows) Close()                 { _ = r.rows.Close() }
func (r *mysqlRows) Err() error             { return mapErr(r.rows.Err(), "row iteration failed") }

type mysqlRow struct {
	row *sql.Row
}

func (r *mysqlRow) Scan(dest ...any) error { return mapErr(r.row.Scan(dest...), "scan failed") }

type mysqlTx struct {
	tx *sql.Tx
}

func (t *mysqlTx) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, mapError(err, "exec failed")
	}
	return rowsAffected(res), nil
}

func (t *mysqlTx) Query(ctx context.Context, query string, args ...any) (database.Rows, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "query failed")
	}
	return &mysqlRows{rows: rows}, nil
}

func (t *mysqlTx) QueryRow(ctx context.Context, query string, args ...any) database.Row {
	return &mysqlRow{row: t.tx.QueryRowContext(ctx, query, args...)}
}

func (t *mysqlTx) Commit(context.Context) error {
	return mapErr(t.tx.Commit(), "commit failed")
}

func (t *mysqlTx) Rollback(context.Context) error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return mapErr(err, "rollback failed")
}
