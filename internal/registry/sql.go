package registry

import (
	"context"
	"time"

	"github.com/koustreak/tablesmith/internal/database"
	"github.com/koustreak/tablesmith/internal/errs"
	"github.com/koustreak/tablesmith/internal/tenant"
)

var postgresDDL = []string{
	`CREATE TABLE IF NOT EXISTS tenants (
		token         VARCHAR(255) PRIMARY KEY,
		database_name VARCHAR(255) NOT NULL UNIQUE,
		created_at    TIMESTAMPTZ  NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS table_schemas (
		database_name VARCHAR(255) NOT NULL,
		name          VARCHAR(63)  NOT NULL,
		data          TEXT         NOT NULL,
		created_at    TIMESTAMPTZ  NOT NULL,
		updated_at    TIMESTAMPTZ  NOT NULL,
		PRIMARY KEY (database_name, name)
	)`,
}

// Keys compare byte for byte on MySQL, as they do on Postgres.
var mysqlDDL = []string{
	`CREATE TABLE IF NOT EXISTS tenants (
		token         VARCHAR(255) COLLATE utf8mb4_bin NOT NULL PRIMARY KEY,
		database_name VARCHAR(255) COLLATE utf8mb4_bin NOT NULL UNIQUE,
		created_at    DATETIME(6)  NOT NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS table_schemas (
		database_name VARCHAR(255) COLLATE utf8mb4_bin NOT NULL,
		name          VARCHAR(63)  COLLATE utf8mb4_bin NOT NULL,
		data          MEDIUMTEXT   NOT NULL,
		created_at    DATETIME(6)  NOT NULL,
		updated_at    DATETIME(6)  NOT NULL,
		PRIMARY KEY (database_name, name)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

const (
	qInsertTenant = `INSERT INTO tenants (token, database_name, created_at) VALUES (?, ?, ?)`
	qTenantByTok  = `SELECT token, database_name, created_at FROM tenants WHERE token = ?`
	qListSchemas  = `SELECT database_name, name, data, created_at, updated_at FROM table_schemas WHERE database_name = ? ORDER BY name`
	qGetSchema    = `SELECT database_name, name, data, created_at, updated_at FROM table_schemas WHERE database_name = ? AND name = ?`
	qLockSchema   = qGetSchema + ` FOR UPDATE`
	qInsertSchema = `INSERT INTO table_schemas (database_name, name, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`
	qUpdateSchema = `UPDATE table_schemas SET data = ?, updated_at = ? WHERE database_name = ? AND name = ?`
)

// SQLStore keeps the registry in a relational database reached through
// database.DB. Statements are written with ? placeholders and rebound to the
// connection's dialect.
type SQLStore struct {
	db database.DB
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore returns a Store over db.
func NewSQLStore(db database.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) q(query string) string {
	return database.Rebind(s.db.Dialect(), query)
}

func (s *SQLStore) Migrate(ctx context.Context) error {
	ddl := postgresDDL
	if s.db.Dialect() == database.DialectMySQL {
		ddl = mysqlDDL
	}
	for _, stmt := range ddl {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLStore) CreateTenant(ctx context.Context, t tenant.Tenant) error {
	_, err := s.db.Exec(ctx, s.q(qInsertTenant), t.Token, t.Database, t.CreatedAt.UTC())
	return err
}

func (s *SQLStore) TenantByToken(ctx context.Context, token string) (tenant.Tenant, error) {
	var t tenant.Tenant
	err := s.db.QueryRow(ctx, s.q(qTenantByTok), token).Scan(&t.Token, &t.Database, &t.CreatedAt)
	if err != nil {
		return tenant.Tenant{}, err
	}
	return t, nil
}

func (s *SQLStore) ListSchemas(ctx context.Context, db string) ([]SchemaRecord, error) {
	rows, err := s.db.Query(ctx, s.q(qListSchemas), db)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SchemaRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLStore) GetSchema(ctx context.Context, db, name string) (SchemaRecord, error) {
	return scanRecord(s.db.QueryRow(ctx, s.q(qGetSchema), db, name))
}

func (s *SQLStore) WithinTx(ctx context.Context, fn func(SchemaTx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&sqlTx{tx: tx, dialect: s.db.Dialect()}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// sqlTx implements SchemaTx on a database.Tx.
type sqlTx struct {
	tx      database.Tx
	dialect database.Dialect
}

func (t *sqlTx) q(query string) string {
	return database.Rebind(t.dialect, query)
}

func (t *sqlTx) LockSchema(ctx context.Context, db, name string) (SchemaRecord, bool, error) {
	rec, err := scanRecord(t.tx.QueryRow(ctx, t.q(qLockSchema), db, name))
	if errs.IsNotFound(err) {
		return SchemaRecord{}, false, nil
	}
	if err != nil {
		return SchemaRecord{}, false, err
	}
	return rec, true, nil
}

func (t *sqlTx) InsertSchema(ctx context.Context, rec SchemaRecord) error {
	_, err := t.tx.Exec(ctx, t.q(qInsertSchema),
		rec.Database, rec.Name, string(rec.Data), rec.CreatedAt.UTC(), rec.UpdatedAt.UTC())
	return err
}

func (t *sqlTx) UpdateSchema(ctx context.Context, rec SchemaRecord) error {
	n, err := t.tx.Exec(ctx, t.q(qUpdateSchema),
		string(rec.Data), rec.UpdatedAt.UTC(), rec.Database, rec.Name)
	if err != nil {
		return err
	}
	if n == 0 {
		return errs.Newf(errs.ErrKindNotFound, "schema %s.%s not found", rec.Database, rec.Name)
	}
	return nil
}

func scanRecord(row database.Row) (SchemaRecord, error) {
	var (
		rec  SchemaRecord
		data string
		c, u time.Time
	)
	if err := row.Scan(&rec.Database, &rec.Name, &data, &c, &u); err != nil {
		return SchemaRecord{}, err
	}
	rec.Data = []byte(data)
	rec.CreatedAt, rec.UpdatedAt = c, u
	return rec, nil
}
