// Package service is the entry point for every tenant-facing operation.
// Transports resolve the caller, bind it with tenant.WithContext and call in
// here; nothing below this package knows about HTTP or the CLI.
package service

import (
	"context"
	"time"

	"github.com/koustreak/tablesmith/internal/database"
	"github.com/koustreak/tablesmith/internal/errs"
	"github.com/koustreak/tablesmith/internal/field"
	"github.com/koustreak/tablesmith/internal/logger"
	"github.com/koustreak/tablesmith/internal/reconcile"
	"github.com/koustreak/tablesmith/internal/schema"
	"github.com/koustreak/tablesmith/internal/tenant"
)

// Provisioner makes sure a tenant's database and workspace exist.
type Provisioner interface {
	Ensure(ctx context.Context, tc tenant.Context) error
}

// Reconciler applies a table definition to a tenant's registry.
type Reconciler interface {
	Reconcile(ctx context.Context, database string, table *schema.Table) (reconcile.Outcome, error)
}

// Generator renders a tenant's model module from committed records.
type Generator interface {
	Generate(ctx context.Context, database string) ([]byte, error)
}

// Pools hands out connections to tenant databases.
type Pools interface {
	Get(ctx context.Context, database string) (database.DB, error)
}

// TenantStore stores onboarded tenants.
type TenantStore interface {
	CreateTenant(ctx context.Context, t tenant.Tenant) error
}

// Deps are the collaborators a Service needs.
type Deps struct {
	Tenants     TenantStore
	Provisioner Provisioner
	Reconciler  Reconciler
	Generator   Generator
	Pools       Pools
	Logger      *logger.Logger

	// DatabasePrefix starts generated tenant database names.
	DatabasePrefix string

	// OpTimeout bounds each operation when positive.
	OpTimeout time.Duration
}

// Service implements the tenant operations.
type Service struct {
	deps Deps
	log  *logger.Logger
}

// New returns a Service over deps.
func New(deps Deps) *Service {
	log := deps.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Service{deps: deps, log: log}
}

// DefineTable declares or redeclares a table for the tenant bound to ctx.
func (s *Service) DefineTable(ctx context.Context, name string, fields map[string]field.Spec) (reconcile.Outcome, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tc, err := s.tenantFrom(ctx)
	if err != nil {
		return 0, err
	}

	table, err := schema.New(name, fields)
	if err != nil {
		return 0, err
	}

	if err := s.deps.Provisioner.Ensure(ctx, tc); err != nil {
		return 0, err
	}
	return s.deps.Reconciler.Reconcile(ctx, tc.Database, table)
}

// TableExists reports whether the tenant's database holds a relation called
// name. Only the physical database is consulted; a stored definition alone
// does not make a table exist.
func (s *Service) TableExists(ctx context.Context, name string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tc, err := s.tenantFrom(ctx)
	if err != nil {
		return false, err
	}
	if name == "" {
		return false, errs.New(errs.ErrKindInvalidInput, "please provide table name")
	}

	if err := s.deps.Provisioner.Ensure(ctx, tc); err != nil {
		return false, err
	}

	db, err := s.deps.Pools.Get(ctx, tc.Database)
	if err != nil {
		return false, err
	}
	return db.TableExists(ctx, name)
}

// Onboard creates, stores and provisions a new tenant.
func (s *Service) Onboard(ctx context.Context) (tenant.Tenant, error) {
	var (
		t   tenant.Tenant
		err error
	)
	// A collision on a random token or database name is retried once.
	for attempt := 0; attempt < 2; attempt++ {
		t, err = tenant.New(s.deps.DatabasePrefix)
		if err != nil {
			return tenant.Tenant{}, errs.Wrap(errs.ErrKindUnknown, "failed to generate tenant credentials", err)
		}
		err = s.deps.Tenants.CreateTenant(ctx, t)
		if !errs.IsConflict(err) {
			break
		}
		s.log.WarnWith("generated tenant credentials collided", err, map[string]any{"attempt": attempt + 1})
	}
	if err != nil {
		return tenant.Tenant{}, err
	}

	if err := s.deps.Provisioner.Ensure(ctx, t.Context()); err != nil {
		return tenant.Tenant{}, err
	}

	s.log.ForTenant(t.Database).Info("tenant onboarded")
	return t, nil
}

// Render returns the current model module of database.
func (s *Service) Render(ctx context.Context, database string) ([]byte, error) {
	if database == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "database is required")
	}
	return s.deps.Generator.Generate(ctx, database)
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.deps.OpTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.deps.OpTimeout)
}

func (s *Service) tenantFrom(ctx context.Context) (tenant.Context, error) {
	tc, ok := tenant.FromContext(ctx)
	if !ok || tc.Database == "" {
		return tenant.Context{}, errs.New(errs.ErrKindUnauthorized, "no tenant bound to request")
	}
	return tc, nil
}
