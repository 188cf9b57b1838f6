package reconcile

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/tablesmith/internal/codegen"
	"github.com/koustreak/tablesmith/internal/errs"
	"github.com/koustreak/tablesmith/internal/field"
	"github.com/koustreak/tablesmith/internal/registry"
	"github.com/koustreak/tablesmith/internal/schema"
	"github.com/koustreak/tablesmith/internal/workspace"
	"github.com/koustreak/tablesmith/internal/workspace/local"
)

const db = "tablesmith_abc"

func usersTable(t *testing.T, length int) *schema.Table {
	t.Helper()
	tbl, err := schema.New("users", map[string]field.Spec{
		"id":       {Type: field.TypePrimaryKey},
		"username": {Type: field.TypeChar, Params: field.Params{"length": length, "nullable": false}},
	})
	require.NoError(t, err)
	return tbl
}

// countingRegen wraps a Regenerator and counts Publish calls.
type countingRegen struct {
	next  Regenerator
	calls atomic.Int32
	err   error
}

func (c *countingRegen) Publish(ctx context.Context, database string) error {
	c.calls.Add(1)
	if c.err != nil {
		return c.err
	}
	if c.next == nil {
		return nil
	}
	return c.next.Publish(ctx, database)
}

func newHarness(t *testing.T, opts ...Option) (*Reconciler, *registry.MemoryStore, *countingRegen, *local.Driver) {
	t.Helper()
	store := registry.NewMemoryStore()
	files, err := local.New(&workspace.Config{Backend: workspace.BackendLocal, Root: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, files.CreateWorkspace(context.Background(), db))

	regen := &countingRegen{next: codegen.NewPublisher(store, files, nil)}
	return New(store, regen, opts...), store, regen, files
}

func TestReconcile_CreateUnchangedUpdate(t *testing.T) {
	ctx := context.Background()
	r, store, regen, files := newHarness(t)

	out, err := r.Reconcile(ctx, db, usersTable(t, 50))
	require.NoError(t, err)
	assert.Equal(t, Created, out)
	assert.Equal(t, int32(1), regen.calls.Load())

	first, err := files.ReadFile(ctx, db, workspace.ModelsFile)
	require.NoError(t, err)
	assert.Contains(t, string(first), "class Users(models.Model):")
	assert.Contains(t, string(first), "max_length=50")

	out, err = r.Reconcile(ctx, db, usersTable(t, 50))
	require.NoError(t, err)
	assert.Equal(t, Unchanged, out)
	assert.Equal(t, int32(1), regen.calls.Load(), "unchanged must not regenerate")

	out, err = r.Reconcile(ctx, db, usersTable(t, 100))
	require.NoError(t, err)
	assert.Equal(t, Updated, out)
	assert.Equal(t, int32(2), regen.calls.Load())

	second, err := files.ReadFile(ctx, db, workspace.ModelsFile)
	require.NoError(t, err)
	assert.Contains(t, string(second), "max_length=100")
	assert.NotContains(t, string(second), "max_length=50")

	rec, err := store.GetSchema(ctx, db, "users")
	require.NoError(t, err)
	assert.Equal(t, usersTable(t, 100).CanonicalJSON(), rec.Data)
	assert.True(t, !rec.UpdatedAt.Before(rec.CreatedAt))
}

func TestReconcile_FieldOrderDoesNotMatter(t *testing.T) {
	ctx := context.Background()
	r, _, _, _ := newHarness(t)

	a, err := schema.Decode([]byte(`{"name":"users","fields":{"id":{"type":"PrimaryKeyField","params":{}},"flag":{"type":"BooleanField","params":{}}}}`))
	require.NoError(t, err)
	b, err := schema.Decode([]byte(`{"fields":{"flag":{"params":{},"type":"BooleanField"},"id":{"type":"PrimaryKeyField"}},"name":"users"}`))
	require.NoError(t, err)

	out, err := r.Reconcile(ctx, db, a)
	require.NoError(t, err)
	assert.Equal(t, Created, out)

	out, err = r.Reconcile(ctx, db, b)
	require.NoError(t, err)
	assert.Equal(t, Unchanged, out)
}

func TestReconcile_RejectPolicy(t *testing.T) {
	ctx := context.Background()
	r, store, regen, _ := newHarness(t, WithPolicy(PolicyReject))

	_, err := r.Reconcile(ctx, db, usersTable(t, 50))
	require.NoError(t, err)

	_, err = r.Reconcile(ctx, db, usersTable(t, 100))
	require.Error(t, err)
	assert.True(t, errs.IsConflict(err))
	assert.ErrorIs(t, err, ErrSchemaConflict)
	assert.Equal(t, int32(1), regen.calls.Load())

	rec, err := store.GetSchema(ctx, db, "users")
	require.NoError(t, err)
	assert.Equal(t, usersTable(t, 50).CanonicalJSON(), rec.Data)

	out, err := r.Reconcile(ctx, db, usersTable(t, 50))
	require.NoError(t, err)
	assert.Equal(t, Unchanged, out)
}

func TestReconcile_ConcurrentCreate(t *testing.T) {
	ctx := context.Background()
	r, _, regen, _ := newHarness(t)
	tbl := usersTable(t, 50)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes = map[Outcome]int{}
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := r.Reconcile(ctx, db, tbl)
			assert.NoError(t, err)
			mu.Lock()
			outcomes[out]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, outcomes[Created])
	assert.Equal(t, 7, outcomes[Unchanged])
	assert.Equal(t, int32(1), regen.calls.Load())
}

// failingStore injects failures into a MemoryStore.
type failingStore struct {
	*registry.MemoryStore
	writeErr  error
	lockErr   error
	commitErr error
	staleOnce atomic.Bool
}

func (f *failingStore) WithinTx(ctx context.Context, fn func(registry.SchemaTx) error) error {
	err := f.MemoryStore.WithinTx(ctx, func(tx registry.SchemaTx) error {
		if err := fn(&failingTx{SchemaTx: tx, store: f}); err != nil {
			return err
		}
		// Simulate the commit failing after every statement succeeded.
		return f.commitErr
	})
	return err
}

type failingTx struct {
	registry.SchemaTx
	store *failingStore
}

func (t *failingTx) LockSchema(ctx context.Context, database, name string) (registry.SchemaRecord, bool, error) {
	if t.store.lockErr != nil {
		return registry.SchemaRecord{}, false, t.store.lockErr
	}
	if t.store.staleOnce.CompareAndSwap(true, false) {
		// Another process has inserted the row but this read predates it.
		return registry.SchemaRecord{}, false, nil
	}
	return t.SchemaTx.LockSchema(ctx, database, name)
}

func (t *failingTx) InsertSchema(ctx context.Context, rec registry.SchemaRecord) error {
	if t.store.writeErr != nil {
		return t.store.writeErr
	}
	return t.SchemaTx.InsertSchema(ctx, rec)
}

func (t *failingTx) UpdateSchema(ctx context.Context, rec registry.SchemaRecord) error {
	if t.store.writeErr != nil {
		return t.store.writeErr
	}
	return t.SchemaTx.UpdateSchema(ctx, rec)
}

func TestReconcile_PersistenceFailure(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{
		MemoryStore: registry.NewMemoryStore(),
		writeErr:    errs.Wrap(errs.ErrKindConnectionFailed, "write failed", errors.New("broken pipe")),
	}
	regen := &countingRegen{}
	r := New(store, regen)

	_, err := r.Reconcile(ctx, db, usersTable(t, 50))
	require.Error(t, err)
	assert.True(t, errs.IsPersistence(err))
	assert.Equal(t, int32(0), regen.calls.Load())

	_, err = store.GetSchema(ctx, db, "users")
	assert.True(t, errs.IsNotFound(err))
}

func TestReconcile_CommitFailure(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{
		MemoryStore: registry.NewMemoryStore(),
		commitErr:   errs.Wrap(errs.ErrKindQueryFailed, "commit failed", errors.New("serialization failure")),
	}
	regen := &countingRegen{}
	r := New(store, regen)

	_, err := r.Reconcile(ctx, db, usersTable(t, 50))
	assert.True(t, errs.IsPersistence(err))
	assert.Equal(t, int32(0), regen.calls.Load())
}

func TestReconcile_ReadFailurePropagates(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{
		MemoryStore: registry.NewMemoryStore(),
		lockErr:     errs.New(errs.ErrKindConnectionFailed, "connection refused"),
	}
	r := New(store, &countingRegen{})

	_, err := r.Reconcile(ctx, db, usersTable(t, 50))
	assert.True(t, errs.IsConnectionFailed(err))
	assert.False(t, errs.IsPersistence(err))
}

func TestReconcile_RetriesLostCreateRace(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{MemoryStore: registry.NewMemoryStore()}
	regen := &countingRegen{}
	r := New(store, regen)

	// The winning process already committed the same definition.
	require.NoError(t, store.MemoryStore.WithinTx(ctx, func(tx registry.SchemaTx) error {
		return tx.InsertSchema(ctx, registry.SchemaRecord{Database: db, Name: "users", Data: usersTable(t, 50).CanonicalJSON()})
	}))
	store.staleOnce.Store(true)

	out, err := r.Reconcile(ctx, db, usersTable(t, 50))
	require.NoError(t, err)
	assert.Equal(t, Unchanged, out)
	assert.Equal(t, int32(0), regen.calls.Load())
}

func TestReconcile_RejectsCaseOnlyNameCollision(t *testing.T) {
	ctx := context.Background()
	r, store, regen, files := newHarness(t)
	require.NoError(t, files.CreateWorkspace(ctx, "tablesmith_other"))

	_, err := r.Reconcile(ctx, db, usersTable(t, 50))
	require.NoError(t, err)

	upper, err := schema.New("USERS", map[string]field.Spec{"id": {Type: field.TypePrimaryKey}})
	require.NoError(t, err)

	_, err = r.Reconcile(ctx, db, upper)
	require.Error(t, err)
	assert.True(t, errs.IsConflict(err))
	assert.ErrorIs(t, err, ErrNameCollision)
	assert.Equal(t, int32(1), regen.calls.Load())

	recs, err := store.ListSchemas(ctx, db)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "users", recs[0].Name)

	// The same name in another tenant is unaffected.
	out, err := r.Reconcile(ctx, "tablesmith_other", upper)
	require.NoError(t, err)
	assert.Equal(t, Created, out)
}

func TestReconcile_RegenerationFailureKeepsRecord(t *testing.T) {
	ctx := context.Background()
	store := registry.NewMemoryStore()
	regen := &countingRegen{err: errs.New(errs.ErrKindPermissionDenied, "read-only workspace")}
	r := New(store, regen)

	out, err := r.Reconcile(ctx, db, usersTable(t, 50))
	assert.Equal(t, Created, out)
	assert.True(t, errs.IsPermissionDenied(err))

	_, err = store.GetSchema(ctx, db, "users")
	assert.NoError(t, err)
}

func TestReconcile_InvalidArguments(t *testing.T) {
	r := New(registry.NewMemoryStore(), &countingRegen{})

	_, err := r.Reconcile(context.Background(), "", usersTable(t, 50))
	assert.True(t, errs.IsInvalidInput(err))

	_, err = r.Reconcile(context.Background(), db, nil)
	assert.True(t, errs.IsInvalidInput(err))
}

func TestParsePolicy(t *testing.T) {
	for in, want := range map[string]Policy{"": PolicyUpdate, "update": PolicyUpdate, " Reject ": PolicyReject} {
		got, err := ParsePolicy(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParsePolicy("merge")
	assert.True(t, errs.IsInvalidInput(err))
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "created", Created.String())
	assert.Equal(t, "unchanged", Unchanged.String())
	assert.Equal(t, "updated", Updated.String())
	assert.Equal(t, "Outcome(0)", Outcome(0).String())
}
