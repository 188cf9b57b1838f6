package codegen

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/tablesmith/internal/errs"
	"github.com/koustreak/tablesmith/internal/field"
	"github.com/koustreak/tablesmith/internal/registry"
	"github.com/koustreak/tablesmith/internal/schema"
	"github.com/koustreak/tablesmith/internal/workspace"
	"github.com/koustreak/tablesmith/internal/workspace/local"
)

func usersTable(t *testing.T, length int) *schema.Table {
	t.Helper()
	tbl, err := schema.New("users", map[string]field.Spec{
		"username": {Type: field.TypeChar, Params: field.Params{"length": length, "nullable": false}},
		"id":       {Type: field.TypePrimaryKey},
	})
	require.NoError(t, err)
	return tbl
}

func accountsTable(t *testing.T) *schema.Table {
	t.Helper()
	tbl, err := schema.New("accounts", map[string]field.Spec{
		"note":   {Type: field.TypeBoolean},
		"id":     {Type: field.TypePrimaryKey},
		"active": {Type: field.TypeBoolean, Params: field.Params{"nullable": false, "default_value": "true"}},
	})
	require.NoError(t, err)
	return tbl
}

func TestRender_Golden(t *testing.T) {
	want, err := os.ReadFile(filepath.Join("testdata", "users.golden"))
	require.NoError(t, err)

	got := Render([]*schema.Table{usersTable(t, 50), accountsTable(t)})
	assert.Equal(t, string(want), string(got))
}

func TestRender_Empty(t *testing.T) {
	assert.Equal(t, Header, string(Render(nil)))
}

func TestRender_Deterministic(t *testing.T) {
	a := Render([]*schema.Table{usersTable(t, 50), accountsTable(t)})
	b := Render([]*schema.Table{accountsTable(t), usersTable(t, 50)})
	assert.Equal(t, a, b)
}

func TestRender_EscapesDefaults(t *testing.T) {
	tbl, err := schema.New("notes", map[string]field.Spec{
		"title": {Type: field.TypeChar, Params: field.Params{"default_value": `say "hi"\n`}},
	})
	require.NoError(t, err)

	out := string(Render([]*schema.Table{tbl}))
	assert.Contains(t, out, `default="say \"hi\"\\n"`)
}

func TestClassName(t *testing.T) {
	assert.Equal(t, "Users", ClassName("users"))
	assert.Equal(t, "Users", ClassName("USERS"))
	assert.Equal(t, "User_accounts", ClassName("user_Accounts"))
	assert.Equal(t, "_private", ClassName("_private"))
	assert.Equal(t, "", ClassName(""))
}

func seed(t *testing.T, store *registry.MemoryStore, db string, tables ...*schema.Table) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.WithinTx(ctx, func(tx registry.SchemaTx) error {
		for _, tbl := range tables {
			if err := tx.InsertSchema(ctx, registry.SchemaRecord{
				Database: db, Name: tbl.Name(), Data: tbl.CanonicalJSON(),
			}); err != nil {
				return err
			}
		}
		return nil
	}))
}

func TestPublisher_Publish(t *testing.T) {
	ctx := context.Background()
	store := registry.NewMemoryStore()
	files, err := local.New(&workspace.Config{Backend: workspace.BackendLocal, Root: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, files.CreateWorkspace(ctx, "db"))

	seed(t, store, "db", usersTable(t, 50), accountsTable(t))
	seed(t, store, "other", usersTable(t, 10))

	p := NewPublisher(store, files, nil)
	require.NoError(t, p.Publish(ctx, "db"))

	got, err := files.ReadFile(ctx, "db", workspace.ModelsFile)
	require.NoError(t, err)
	want, err := os.ReadFile(filepath.Join("testdata", "users.golden"))
	require.NoError(t, err)
	assert.Equal(t, string(want), string(got))
}

func TestPublisher_UnreadableRecord(t *testing.T) {
	ctx := context.Background()
	store := registry.NewMemoryStore()
	require.NoError(t, store.WithinTx(ctx, func(tx registry.SchemaTx) error {
		return tx.InsertSchema(ctx, registry.SchemaRecord{Database: "db", Name: "bad", Data: []byte("{")})
	}))

	_, err := NewPublisher(store, nil, nil).Generate(ctx, "db")
	assert.True(t, errs.IsPersistence(err))
}

// stallingFiles holds the first models write until release is closed.
type stallingFiles struct {
	*local.Driver
	entered chan struct{}
	release chan struct{}
	first   bool
}

func (s *stallingFiles) WriteFile(ctx context.Context, ws, name string, content []byte) error {
	if !s.first {
		s.first = true
		close(s.entered)
		<-s.release
	}
	return s.Driver.WriteFile(ctx, ws, name, content)
}

func TestPublisher_SerializesPerDatabase(t *testing.T) {
	ctx := context.Background()
	store := registry.NewMemoryStore()
	driver, err := local.New(&workspace.Config{Backend: workspace.BackendLocal, Root: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, driver.CreateWorkspace(ctx, "db"))

	files := &stallingFiles{Driver: driver, entered: make(chan struct{}), release: make(chan struct{})}
	p := NewPublisher(store, files, nil)

	seed(t, store, "db", accountsTable(t))
	firstDone := make(chan error, 1)
	go func() { firstDone <- p.Publish(ctx, "db") }()
	<-files.entered

	// A second table commits while the first snapshot is still being written.
	seed(t, store, "db", usersTable(t, 50))
	secondDone := make(chan error, 1)
	go func() { secondDone <- p.Publish(ctx, "db") }()

	var secondErr error
	secondFinished := false
	select {
	case secondErr = <-secondDone:
		secondFinished = true
		t.Errorf("second publish finished while the first held the workspace")
	case <-time.After(50 * time.Millisecond):
	}
	close(files.release)

	require.NoError(t, <-firstDone)
	if !secondFinished {
		secondErr = <-secondDone
	}
	require.NoError(t, secondErr)

	got, err := driver.ReadFile(ctx, "db", workspace.ModelsFile)
	require.NoError(t, err)
	assert.Contains(t, string(got), "class Accounts")
	assert.Contains(t, string(got), "class Users")
}
