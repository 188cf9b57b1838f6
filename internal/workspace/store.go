// Package workspace defines where a tenant's generated artifacts live.
//
// Each tenant owns one workspace, named after its database. A workspace
// holds a small, fixed set of files that are always rewritten whole.
// Callers depend only on this package, never on a specific backend.
//
// Usage:
//
//	store, err := local.New(cfg)
//	if err != nil { ... }
//	defer store.Close()
//
//	err = store.WriteFile(ctx, "tablesmith_x", workspace.ModelsFile, src)
package workspace

import "context"

// Files that make up a workspace.
const (
	ModelsFile     = "models.py"
	InitFile       = "__init__.py"
	MigrationsInit = "migrations/__init__.py"
)

// Store is the single interface all workspace backends implement.
type Store interface {
	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases any held resources.
	Close() error

	// WorkspaceExists reports whether the workspace has been created.
	WorkspaceExists(ctx context.Context, workspace string) (bool, error)

	// CreateWorkspace creates an empty workspace. A workspace that already
	// exists is reported as an errs already_exists error.
	CreateWorkspace(ctx context.Context, workspace string) error

	// WriteFile replaces the named file with content in full. Readers never
	// observe a partially written file.
	WriteFile(ctx context.Context, workspace, name string, content []byte) error

	// ReadFile returns the content of the named file, or an errs not_found
	// error when it does not exist.
	ReadFile(ctx context.Context, workspace, name string) ([]byte, error)

	// FileExists reports whether the named file exists.
	FileExists(ctx context.Context, workspace, name string) (bool, error)
}
