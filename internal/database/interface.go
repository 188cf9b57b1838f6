package database

import "context"

// DB is the central contract for all database operations.
// All layers above this package talk only to this interface and
// never import the postgres or mysql packages directly.
type DB interface {
	// Ping verifies the database is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the connection pool.
	Close()

	// Dialect reports which placeholder style statements must use.
	Dialect() Dialect

	// Exec runs a statement and returns the number of affected rows.
	Exec(ctx context.Context, sql string, args ...any) (int64, error)

	// Query executes a SQL statement that returns multiple rows.
	Query(ctx context.Context, sql string, args ...any) (Rows, error)

	// QueryRow executes a SQL statement that returns at most one row.
	// A missing row surfaces from Scan as an errs not_found error.
	QueryRow(ctx context.Context, sql string, args ...any) Row

	// Begin starts a transaction.
	Begin(ctx context.Context) (Tx, error)

	// TableExists reports whether a relation with the given name exists in
	// the connection's current schema.
	TableExists(ctx context.Context, table string) (bool, error)
}

// Admin covers server-level operations run on the administrative
// connection, outside of any tenant database.
type Admin interface {
	// DatabaseExists reports whether a database with the given name exists.
	DatabaseExists(ctx context.Context, name string) (bool, error)

	// CreateDatabase creates the named database. A database that already
	// exists, including one created concurrently by another caller, is
	// reported as an errs already_exists error.
	CreateDatabase(ctx context.Context, name string) error
}

// Tx is a database transaction. Exactly one of Commit or Rollback must be
// called; Rollback after Commit is a no-op.
type Tx interface {
	Exec(ctx context.Context, sql string, args ...any) (int64, error)
	Query(ctx context.Context, sql string, args ...any) (Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) Row
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Rows is an abstraction over a database result set.
// Callers must always call Close() when done, even on error.
type Rows interface {
	// Next advances to the next row.
	// Returns false when no more rows exist or on error.
	Next() bool

	// Scan copies the current row's columns into the provided destinations.
	Scan(dest ...any) error

	// Close releases resources held by the result set.
	Close()

	// Err returns any error encountered during iteration.
	Err() error
}

// Row is an abstraction over a single database row.
type Row interface {
	Scan(dest ...any) error
}

// Opener connects to the named database on the server described by a Config.
// Each driver package provides one.
type Opener func(ctx context.Context, cfg *Config, dbName string) (DB, error)
