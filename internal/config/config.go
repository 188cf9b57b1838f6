// Package config loads tablesmith settings from a YAML file and the
// environment. Environment variables (optionally read from a .env file) win
// over the file, and the file wins over DefaultConfig.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.yaml.in/yaml/v3"

	"github.com/koustreak/tablesmith/internal/database"
	"github.com/koustreak/tablesmith/internal/logger"
	"github.com/koustreak/tablesmith/internal/reconcile"
	"github.com/koustreak/tablesmith/internal/server"
	"github.com/koustreak/tablesmith/internal/workspace"
)

// EnvPrefix starts every environment override.
const EnvPrefix = "TABLESMITH_"

// Config is the full application configuration.
type Config struct {
	Server    *server.Config    `yaml:"server"`
	Database  *database.Config  `yaml:"database"`
	Workspace *workspace.Config `yaml:"workspace"`
	Reconcile ReconcileConfig   `yaml:"reconcile"`
	Auth      AuthConfig        `yaml:"auth"`
	Log       *logger.Config    `yaml:"log"`
}

// ReconcileConfig controls the schema reconciler.
type ReconcileConfig struct {
	// OnMismatch is "update" or "reject".
	OnMismatch string `yaml:"on_mismatch"`
}

// AuthConfig controls token resolution and tenant onboarding.
type AuthConfig struct {
	// AdminKey guards tenant onboarding over HTTP. Empty disables it.
	AdminKey string `yaml:"admin_key"`

	// CacheTTL is how long a resolved token is remembered.
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// DefaultConfig returns a config for a local PostgreSQL and a local
// workspace directory.
func DefaultConfig() *Config {
	return &Config{
		Server:    server.DefaultConfig(),
		Database:  database.DefaultConfig(),
		Workspace: workspace.DefaultConfig(),
		Reconcile: ReconcileConfig{OnMismatch: string(reconcile.PolicyUpdate)},
		Auth:      AuthConfig{CacheTTL: time.Minute},
		Log:       logger.DefaultConfig(),
	}
}

// Load reads path (if not empty) over DefaultConfig, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	// A missing .env file is fine.
	_ = godotenv.Load()

	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := decode(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode overlays YAML onto cfg. Unknown keys are rejected.
func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := c.Workspace.Validate(); err != nil {
		return fmt.Errorf("workspace: %w", err)
	}
	if _, err := reconcile.ParsePolicy(c.Reconcile.OnMismatch); err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server: addr is required")
	}
	return nil
}

// Policy returns the parsed mismatch policy.
func (c *Config) Policy() reconcile.Policy {
	p, err := reconcile.ParsePolicy(c.Reconcile.OnMismatch)
	if err != nil {
		return reconcile.PolicyUpdate
	}
	return p
}

func applyEnv(c *Config) error {
	var errList []error
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errList = append(errList, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errList = append(errList, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = b
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errList = append(errList, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = d
		}
	}

	str("SERVER_ADDR", &c.Server.Addr)

	var driver string
	str("DB_DRIVER", &driver)
	if driver != "" {
		c.Database.Driver = database.Driver(strings.ToLower(driver))
	}
	str("DB_HOST", &c.Database.Host)
	integer("DB_PORT", &c.Database.Port)
	str("DB_USER", &c.Database.User)
	str("DB_PASSWORD", &c.Database.Password)
	str("DB_SSL_MODE", &c.Database.SSLMode)
	str("DB_ADMIN_DATABASE", &c.Database.AdminDatabase)
	str("DB_REGISTRY_DATABASE", &c.Database.RegistryDatabase)
	str("DB_DATABASE_PREFIX", &c.Database.DatabasePrefix)
	duration("DB_QUERY_TIMEOUT", &c.Database.QueryTimeout)

	var backend string
	str("WORKSPACE_BACKEND", &backend)
	if backend != "" {
		c.Workspace.Backend = workspace.Backend(strings.ToLower(backend))
	}
	str("WORKSPACE_ROOT", &c.Workspace.Root)
	str("WORKSPACE_ENDPOINT", &c.Workspace.Endpoint)
	str("WORKSPACE_ACCESS_KEY", &c.Workspace.AccessKey)
	str("WORKSPACE_SECRET_KEY", &c.Workspace.SecretKey)
	str("WORKSPACE_BUCKET", &c.Workspace.Bucket)
	boolean("WORKSPACE_USE_SSL", &c.Workspace.UseSSL)

	str("RECONCILE_ON_MISMATCH", &c.Reconcile.OnMismatch)
	str("AUTH_ADMIN_KEY", &c.Auth.AdminKey)
	duration("AUTH_CACHE_TTL", &c.Auth.CacheTTL)

	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	return errors.Join(errList...)
}
