// Package provision creates a tenant's physical database and workspace the
// first time the tenant is seen.
//
// Ensure is idempotent and safe to call on every request: once a database has
// been provisioned by this process it is remembered and later calls return
// immediately. Concurrent first calls for the same database share one run,
// and a database or workspace created by another process in the meantime is
// treated as success.
package provision

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/koustreak/tablesmith/internal/codegen"
	"github.com/koustreak/tablesmith/internal/database"
	"github.com/koustreak/tablesmith/internal/errs"
	"github.com/koustreak/tablesmith/internal/logger"
	"github.com/koustreak/tablesmith/internal/metrics"
	"github.com/koustreak/tablesmith/internal/tenant"
	"github.com/koustreak/tablesmith/internal/workspace"
)

// DefaultTimeout bounds one shared provisioning run.
const DefaultTimeout = time.Minute

// Provisioner ensures tenant databases and workspaces exist.
type Provisioner struct {
	admin   database.Admin
	files   workspace.Store
	log     *logger.Logger
	metrics *metrics.Metrics

	group   singleflight.Group
	timeout time.Duration

	mu    sync.RWMutex
	ready map[string]struct{}
}

// New returns a Provisioner. log and m may be nil.
func New(admin database.Admin, files workspace.Store, log *logger.Logger, m *metrics.Metrics) *Provisioner {
	if log == nil {
		log = logger.Nop()
	}
	return &Provisioner{
		admin:   admin,
		files:   files,
		log:     log,
		metrics: m,
		timeout: DefaultTimeout,
		ready:   make(map[string]struct{}),
	}
}

// Ensure makes sure the database and workspace of tc exist.
func (p *Provisioner) Ensure(ctx context.Context, tc tenant.Context) error {
	if tc.Database == "" {
		return errs.New(errs.ErrKindInvalidInput, "tenant has no database")
	}
	if p.isReady(tc.Database) {
		return nil
	}

	// The run is shared by every caller waiting on it, so it must not end
	// with whichever request started it.
	ch := p.group.DoChan(tc.Database, func() (any, error) {
		if p.isReady(tc.Database) {
			return nil, nil
		}
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
		defer cancel()

		if err := p.provision(runCtx, tc.Database); err != nil {
			p.metrics.Provisioned("error")
			return nil, err
		}
		p.markReady(tc.Database)
		return nil, nil
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return errs.Wrap(errs.ErrKindTimeout, "gave up waiting for tenant provisioning", ctx.Err())
	}
}

// Forget drops db from the provisioned set so the next Ensure checks again.
func (p *Provisioner) Forget(db string) {
	p.mu.Lock()
	delete(p.ready, db)
	p.mu.Unlock()
}

func (p *Provisioner) provision(ctx context.Context, db string) error {
	log := p.log.ForTenant(db)

	created, err := p.ensureDatabase(ctx, db)
	if err != nil {
		return err
	}
	if err := p.ensureWorkspace(ctx, db); err != nil {
		return err
	}
	if err := p.scaffold(ctx, db); err != nil {
		return err
	}

	if created {
		p.metrics.Provisioned("created")
		log.Info("tenant database provisioned")
	} else {
		p.metrics.Provisioned("existing")
		log.Debug("tenant database already provisioned")
	}
	return nil
}

func (p *Provisioner) ensureDatabase(ctx context.Context, db string) (bool, error) {
	exists, err := p.admin.DatabaseExists(ctx, db)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	err = p.admin.CreateDatabase(ctx, db)
	if errs.IsAlreadyExists(err) {
		p.log.ForTenant(db).Debug("database created concurrently")
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (p *Provisioner) ensureWorkspace(ctx context.Context, db string) error {
	exists, err := p.files.WorkspaceExists(ctx, db)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	err = p.files.CreateWorkspace(ctx, db)
	if errs.IsAlreadyExists(err) {
		return nil
	}
	return err
}

// scaffold writes the package files a fresh workspace needs, leaving any
// existing file untouched.
func (p *Provisioner) scaffold(ctx context.Context, db string) error {
	files := []struct {
		name    string
		content []byte
	}{
		{workspace.InitFile, nil},
		{workspace.MigrationsInit, nil},
		{workspace.ModelsFile, codegen.Render(nil)},
	}

	for _, f := range files {
		exists, err := p.files.FileExists(ctx, db, f.name)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if err := p.files.WriteFile(ctx, db, f.name, f.content); err != nil {
			return err
		}
	}
	return nil
}

func (p *Provisioner) isReady(db string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.ready[db]
	return ok
}

func (p *Provisioner) markReady(db string) {
	p.mu.Lock()
	p.ready[db] = struct{}{}
	p.mu.Unlock()
}
