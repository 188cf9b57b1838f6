package main

import (
	"context"
	"fmt"

	"github.com/koustreak/tablesmith/internal/codegen"
	"github.com/koustreak/tablesmith/internal/config"
	"github.com/koustreak/tablesmith/internal/database"
	"github.com/koustreak/tablesmith/internal/database/mysql"
	"github.com/koustreak/tablesmith/internal/database/postgres"
	"github.com/koustreak/tablesmith/internal/errs"
	"github.com/koustreak/tablesmith/internal/logger"
	"github.com/koustreak/tablesmith/internal/metrics"
	"github.com/koustreak/tablesmith/internal/provision"
	"github.com/koustreak/tablesmith/internal/reconcile"
	"github.com/koustreak/tablesmith/internal/registry"
	"github.com/koustreak/tablesmith/internal/service"
	"github.com/koustreak/tablesmith/internal/tenant"
	"github.com/koustreak/tablesmith/internal/workspace"
	"github.com/koustreak/tablesmith/internal/workspace/local"
	"github.com/koustreak/tablesmith/internal/workspace/minio"
)

// adminDB is a connection that can also create databases.
type adminDB interface {
	database.DB
	database.Admin
}

// app holds every long-lived component built from a Config.
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	metrics  *metrics.Metrics
	admin    adminDB
	registry database.DB
	pools    *database.Manager
	files    workspace.Store
	store    *registry.SQLStore
	svc      *service.Service
	resolver *tenant.Resolver
}

func newApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, log: log, metrics: metrics.New()}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	var open database.Opener
	a.admin, open, err = openAdmin(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect admin database: %w", err)
	}

	if err := ensureDatabase(ctx, a.admin, cfg.Database.RegistryDatabase); err != nil {
		return nil, fmt.Errorf("create registry database: %w", err)
	}
	a.registry, err = open(ctx, cfg.Database, cfg.Database.RegistryDatabase)
	if err != nil {
		return nil, fmt.Errorf("connect registry database: %w", err)
	}

	a.store = registry.NewSQLStore(a.registry)
	if err := a.store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate registry: %w", err)
	}

	a.files, err = openWorkspace(ctx, cfg.Workspace)
	if err != nil {
		return nil, fmt.Errorf("open workspace store: %w", err)
	}

	a.pools = database.NewManager(cfg.Database, open)
	publisher := codegen.NewPublisher(a.store, a.files, log)

	a.svc = service.New(service.Deps{
		Tenants:     a.store,
		Provisioner: provision.New(a.admin, a.files, log, a.metrics),
		Reconciler: reconcile.New(a.store, publisher,
			reconcile.WithPolicy(cfg.Policy()),
			reconcile.WithLogger(log),
			reconcile.WithMetrics(a.metrics),
		),
		Generator:      publisher,
		Pools:          a.pools,
		Logger:         log,
		DatabasePrefix: cfg.Database.DatabasePrefix,
		OpTimeout:      cfg.Database.QueryTimeout,
	})
	a.resolver = tenant.NewResolver(a.store, cfg.Auth.CacheTTL)
	return a, nil
}

// Close releases every connection the app opened.
func (a *app) Close() {
	if a.pools != nil {
		a.pools.Close()
	}
	if a.registry != nil {
		a.registry.Close()
	}
	if a.admin != nil {
		a.admin.Close()
	}
	if a.files != nil {
		_ = a.files.Close()
	}
}

// openAdmin connects to the administrative database and returns the opener
// for the configured driver.
func openAdmin(ctx context.Context, cfg *database.Config) (adminDB, database.Opener, error) {
	small := cfg.ForTenant()

	switch cfg.Driver {
	case database.DriverMySQL:
		d, err := mysql.New(ctx, small, cfg.AdminDatabase)
		if err != nil {
			return nil, nil, err
		}
		return d, mysql.Open, nil
	case database.DriverPostgres:
		d, err := postgres.New(ctx, small, cfg.AdminDatabase)
		if err != nil {
			return nil, nil, err
		}
		return d, postgres.Open, nil
	}
	return nil, nil, errs.Newf(errs.ErrKindInvalidInput, "unsupported database driver %q", cfg.Driver)
}

func ensureDatabase(ctx context.Context, admin database.Admin, name string) error {
	exists, err := admin.DatabaseExists(ctx, name)
	if err != nil || exists {
		return err
	}
	if err := admin.CreateDatabase(ctx, name); err != nil && !errs.IsAlreadyExists(err) {
		return err
	}
	return nil
}

func openWorkspace(ctx context.Context, cfg *workspace.Config) (workspace.Store, error) {
	switch cfg.Backend {
	case workspace.BackendLocal:
		d, err := local.New(cfg)
		if err != nil {
			return nil, err
		}
		return d, nil
	case workspace.BackendMinIO:
		d, err := minio.New(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
	return nil, errs.Newf(errs.ErrKindInvalidInput, "unsupported workspace backend %q", cfg.Backend)
}
