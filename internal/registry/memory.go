package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/koustreak/tablesmith/internal/errs"
	"github.com/koustreak/tablesmith/internal/tenant"
)

// MemoryStore is an in-process Store. Transactions are serialized and their
// writes become visible only on commit.
type MemoryStore struct {
	txMu sync.Mutex

	mu        sync.RWMutex
	tenants   map[string]tenant.Tenant
	databases map[string]struct{}
	schemas   map[schemaKey]SchemaRecord
}

type schemaKey struct{ database, name string }

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tenants:   make(map[string]tenant.Tenant),
		databases: make(map[string]struct{}),
		schemas:   make(map[schemaKey]SchemaRecord),
	}
}

func (m *MemoryStore) Migrate(context.Context) error { return nil }

func (m *MemoryStore) CreateTenant(_ context.Context, t tenant.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tenants[t.Token]; ok {
		return errs.New(errs.ErrKindConflict, "tenant token already registered")
	}
	if _, ok := m.databases[t.Database]; ok {
		return errs.Newf(errs.ErrKindConflict, "database %q already registered", t.Database)
	}
	m.tenants[t.Token] = t
	m.databases[t.Database] = struct{}{}
	return nil
}

func (m *MemoryStore) TenantByToken(_ context.Context, token string) (tenant.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tenants[token]
	if !ok {
		return tenant.Tenant{}, errs.New(errs.ErrKindNotFound, "tenant not found")
	}
	return t, nil
}

func (m *MemoryStore) ListSchemas(_ context.Context, db string) ([]SchemaRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []SchemaRecord
	for k, rec := range m.schemas {
		if k.database == db {
			out = append(out, copyRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) GetSchema(_ context.Context, db, name string) (SchemaRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.schemas[schemaKey{db, name}]
	if !ok {
		return SchemaRecord{}, errs.Newf(errs.ErrKindNotFound, "schema %s.%s not found", db, name)
	}
	return copyRecord(rec), nil
}

func (m *MemoryStore) WithinTx(ctx context.Context, fn func(SchemaTx) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return errs.Wrap(errs.ErrKindTimeout, "transaction aborted", err)
	}

	tx := &memoryTx{store: m, pending: make(map[schemaKey]SchemaRecord)}
	if err := fn(tx); err != nil {
		return err
	}

	m.mu.Lock()
	for k, rec := range tx.pending {
		m.schemas[k] = rec
	}
	m.mu.Unlock()
	return nil
}

type memoryTx struct {
	store   *MemoryStore
	pending map[schemaKey]SchemaRecord
}

func (t *memoryTx) lookup(k schemaKey) (SchemaRecord, bool) {
	if rec, ok := t.pending[k]; ok {
		return rec, true
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	rec, ok := t.store.schemas[k]
	return rec, ok
}

func (t *memoryTx) LockSchema(_ context.Context, db, name string) (SchemaRecord, bool, error) {
	rec, ok := t.lookup(schemaKey{db, name})
	if !ok {
		return SchemaRecord{}, false, nil
	}
	return copyRecord(rec), true, nil
}

func (t *memoryTx) InsertSchema(_ context.Context, rec SchemaRecord) error {
	k := schemaKey{rec.Database, rec.Name}
	if _, ok := t.lookup(k); ok {
		return errs.Newf(errs.ErrKindConflict, "schema %s.%s already exists", rec.Database, rec.Name)
	}
	t.pending[k] = copyRecord(rec)
	return nil
}

func (t *memoryTx) UpdateSchema(_ context.Context, rec SchemaRecord) error {
	k := schemaKey{rec.Database, rec.Name}
	cur, ok := t.lookup(k)
	if !ok {
		return errs.Newf(errs.ErrKindNotFound, "schema %s.%s not found", rec.Database, rec.Name)
	}
	cur.Data = append([]byte(nil), rec.Data...)
	cur.UpdatedAt = rec.UpdatedAt
	t.pending[k] = cur
	return nil
}

func copyRecord(rec SchemaRecord) SchemaRecord {
	rec.Data = append([]byte(nil), rec.Data...)
	return rec
}
