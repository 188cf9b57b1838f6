// Package registry persists tenants and the schema records reconciled for
// them. Records are keyed by (database, name), written once and then only
// updated in place.
package registry

import (
	"context"
	"time"

	"github.com/koustreak/tablesmith/internal/tenant"
)

// SchemaRecord is the stored canonical definition of one tenant table.
type SchemaRecord struct {
	Database  string
	Name      string
	Data      []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store is implemented by SQLStore and MemoryStore.
type Store interface {
	// Migrate creates the registry tables when missing.
	Migrate(ctx context.Context) error

	// CreateTenant stores a new tenant. A duplicate token or database is
	// reported as an errs conflict error.
	CreateTenant(ctx context.Context, t tenant.Tenant) error

	// TenantByToken returns the tenant owning token or an errs not_found
	// error.
	TenantByToken(ctx context.Context, token string) (tenant.Tenant, error)

	// ListSchemas returns the committed records of database ordered by name.
	ListSchemas(ctx context.Context, database string) ([]SchemaRecord, error)

	// GetSchema returns one committed record or an errs not_found error.
	GetSchema(ctx context.Context, database, name string) (SchemaRecord, error)

	// WithinTx runs fn in a transaction, committing when fn returns nil and
	// rolling back otherwise.
	WithinTx(ctx context.Context, fn func(tx SchemaTx) error) error
}

// SchemaTx is the read-modify-write surface available inside WithinTx.
type SchemaTx interface {
	// LockSchema reads the record for (database, name) and holds it until
	// the transaction ends. found is false when no record exists yet.
	LockSchema(ctx context.Context, database, name string) (rec SchemaRecord, found bool, err error)

	// InsertSchema adds a new record. An existing record for the same key is
	// reported as an errs conflict error.
	InsertSchema(ctx context.Context, rec SchemaRecord) error

	// UpdateSchema replaces Data and UpdatedAt of an existing record.
	UpdateSchema(ctx context.Context, rec SchemaRecord) error
}
