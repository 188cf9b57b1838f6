package database

import (
	"fmt"
	"time"
)

// Driver identifies the database engine.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverMySQL    Driver = "mysql"
)

// Config holds all settings needed to reach a database server and pool
// connections to the databases on it. One Config serves the registry
// database, the administrative connection and every tenant database; only
// the database name differs.
type Config struct {
	// Driver is the database engine (e.g. DriverPostgres).
	Driver Driver `yaml:"driver"`

	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"` // postgres only

	// AdminDatabase is the database used for CREATE DATABASE. Empty selects
	// the driver default ("postgres" on PostgreSQL, none on MySQL).
	AdminDatabase string `yaml:"admin_database"`

	// RegistryDatabase holds the tenant and schema record tables.
	RegistryDatabase string `yaml:"registry_database"`

	// DatabasePrefix starts every generated tenant database name.
	DatabasePrefix string `yaml:"database_prefix"`

	// Pool tuning
	MaxConns        int32         `yaml:"max_conns"`          // maximum number of connections in the pool
	MinConns        int32         `yaml:"min_conns"`          // minimum number of idle connections kept alive
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`  // maximum time a connection may be reused
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"` // maximum time a connection may sit idle

	// TenantMaxConns caps each tenant pool; tenants are many and mostly idle.
	TenantMaxConns int32 `yaml:"tenant_max_conns"`

	// Timeouts
	ConnectTimeout time.Duration `yaml:"connect_timeout"` // time limit for establishing a new connection
	QueryTimeout   time.Duration `yaml:"query_timeout"`   // deadline for each tenant operation
}

// DefaultConfig returns production-ready pool settings for a local PostgreSQL.
func DefaultConfig() *Config {
	return &Config{
		Driver:           DriverPostgres,
		Host:             "localhost",
		Port:             5432,
		User:             "postgres",
		SSLMode:          "disable",
		RegistryDatabase: "tablesmith",
		DatabasePrefix:   "tablesmith_",
		MaxConns:         25,
		MinConns:         5,
		MaxConnLifetime:  30 * time.Minute,
		MaxConnIdleTime:  5 * time.Minute,
		TenantMaxConns:   4,
		ConnectTimeout:   10 * time.Second,
		QueryTimeout:     30 * time.Second,
	}
}

// Validate checks the fields every driver needs.
func (c *Config) Validate() error {
	switch c.Driver {
	case DriverPostgres, DriverMySQL:
	default:
		return fmt.Errorf("unsupported database driver %q", c.Driver)
	}
	if c.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.RegistryDatabase == "" {
		return fmt.Errorf("registry database name is required")
	}
	return nil
}

// ForTenant returns a copy of c sized for a tenant pool.
func (c *Config) ForTenant() *Config {
	cp := *c
	if c.TenantMaxConns > 0 {
		cp.MaxConns = c.TenantMaxConns
	}
	cp.MinConns = 0
	return &cp
}
