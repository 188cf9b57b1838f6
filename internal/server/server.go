// Package server is the HTTP transport. It authenticates the caller, binds
// the tenant to the request context and hands off to the service layer.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/koustreak/tablesmith/internal/field"
	"github.com/koustreak/tablesmith/internal/logger"
	"github.com/koustreak/tablesmith/internal/metrics"
	"github.com/koustreak/tablesmith/internal/reconcile"
	"github.com/koustreak/tablesmith/internal/tenant"
)

// Config holds the listener settings.
type Config struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxBodyBytes caps request bodies.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// DefaultConfig returns sensible listener defaults.
func DefaultConfig() *Config {
	return &Config{
		Addr:            ":8080",
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		MaxBodyBytes:    1 << 20,
	}
}

// Service is the tenant-facing core the handlers call.
type Service interface {
	DefineTable(ctx context.Context, name string, fields map[string]field.Spec) (reconcile.Outcome, error)
	TableExists(ctx context.Context, name string) (bool, error)
	Onboard(ctx context.Context) (tenant.Tenant, error)
}

// Resolver maps an access token to a tenant.
type Resolver interface {
	Resolve(ctx context.Context, token string) (tenant.Context, error)
}

// Options are the collaborators of a Server.
type Options struct {
	Service  Service
	Resolver Resolver
	Logger   *logger.Logger
	Metrics  *metrics.Metrics

	// AdminKey guards POST /tenants. The route is not mounted when empty.
	AdminKey string
}

// Server wires the router to an http.Server.
type Server struct {
	cfg  *Config
	opts Options
	log  *logger.Logger
	http *http.Server
}

// New builds a Server. A nil cfg selects DefaultConfig.
func New(cfg *Config, opts Options) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}

	s := &Server{cfg: cfg, opts: opts, log: opts.Logger}
	s.http = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Routes returns the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestID)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", s.opts.Metrics.Handler())

	if s.opts.AdminKey != "" {
		r.With(s.requireAdmin).Post("/tenants", s.handleCreateTenant)
	}

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Use(s.limitBody)
		r.Post("/create-table", s.handleCreateTable)
		r.Get("/table-exists", s.handleTableExists)
	})

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("listening on %s", s.cfg.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.log.Info("shutting down")
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
