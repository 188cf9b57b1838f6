// Package local provides a filesystem implementation of workspace.Store.
//
// Layout under the configured root:
//
//	<root>/<workspace>/__init__.py
//	<root>/<workspace>/migrations/__init__.py
//	<root>/<workspace>/models.py
package local

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/koustreak/tablesmith/internal/errs"
	"github.com/koustreak/tablesmith/internal/workspace"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// Driver stores each workspace as a directory under root.
// It is safe for concurrent use by multiple goroutines.
type Driver struct {
	root string
}

var _ workspace.Store = (*Driver)(nil)

// New creates the root directory when missing and returns a Driver.
func New(cfg *workspace.Config) (*Driver, error) {
	if cfg.Root == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "workspace root is required")
	}
	if err := os.MkdirAll(cfg.Root, dirPerm); err != nil {
		return nil, mapError(err, "failed to create workspace root")
	}
	return &Driver{root: cfg.Root}, nil
}

// Ping checks that root is still a directory.
func (d *Driver) Ping(context.Context) error {
	info, err := os.Stat(d.root)
	if err != nil {
		return mapError(err, "workspace root unavailable")
	}
	if !info.IsDir() {
		return errs.Newf(errs.ErrKindConnectionFailed, "workspace root %q is not a directory", d.root)
	}
	return nil
}

func (d *Driver) Close() error { return nil }

func (d *Driver) WorkspaceExists(_ context.Context, ws string) (bool, error) {
	dir, err := d.dir(ws)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, mapError(err, "failed to stat workspace")
	}
	return info.IsDir(), nil
}

func (d *Driver) CreateWorkspace(_ context.Context, ws string) error {
	dir, err := d.dir(ws)
	if err != nil {
		return err
	}
	if err := os.Mkdir(dir, dirPerm); err != nil {
		return mapError(err, "failed to create workspace "+ws)
	}
	return nil
}

// WriteFile writes into a temp file in the target directory and renames it
// over the destination.
func (d *Driver) WriteFile(_ context.Context, ws, name string, content []byte) error {
	target, err := d.file(ws, name)
	if err != nil {
		return err
	}

	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return mapError(err, "failed to create directory for "+name)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".*")
	if err != nil {
		return mapError(err, "failed to create temp file for "+name)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return mapError(err, "failed to write "+name)
	}
	if err := tmp.Chmod(filePerm); err != nil {
		_ = tmp.Close()
		return mapError(err, "failed to chmod "+name)
	}
	if err := tmp.Close(); err != nil {
		return mapError(err, "failed to close "+name)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return mapError(err, "failed to replace "+name)
	}
	return nil
}

func (d *Driver) ReadFile(_ context.Context, ws, name string) ([]byte, error) {
	target, err := d.file(ws, name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(target)
	if err != nil {
		return nil, mapError(err, "failed to read "+name)
	}
	return data, nil
}

func (d *Driver) FileExists(_ context.Context, ws, name string) (bool, error) {
	target, err := d.file(ws, name)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(target)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, mapError(err, "failed to stat "+name)
	}
	return true, nil
}

// --- helpers ---

func (d *Driver) dir(ws string) (string, error) {
	clean, err := workspace.CleanName(ws)
	if err != nil {
		return "", errs.Wrap(errs.ErrKindInvalidInput, "invalid workspace", err)
	}
	return filepath.Join(d.root, filepath.FromSlash(clean)), nil
}

func (d *Driver) file(ws, name string) (string, error) {
	dir, err := d.dir(ws)
	if err != nil {
		return "", err
	}
	clean, err := workspace.CleanName(name)
	if err != nil {
		return "", errs.Wrap(errs.ErrKindInvalidInput, "invalid file name", err)
	}
	return filepath.Join(dir, filepath.FromSlash(clean)), nil
}

// mapError translates filesystem errors into a *errs.Error.
func mapError(err error, msg string) *errs.Error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	case errors.Is(err, fs.ErrExist):
		return errs.Wrap(errs.ErrKindAlreadyExists, msg, err)
	case errors.Is(err, fs.ErrPermission):
		return errs.Wrap(errs.ErrKindPermissionDenied, msg, err)
	}
	return errs.Wrap(errs.ErrKindUnknown, msg, err)
}
