package mysql

import (
	"database/sql"
	"fmt"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/koustreak/tablesmith/internal/database"
	"github.com/koustreak/tablesmith/internal/errs"
)

const (
	defaultMaxOpenConns    = 10
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 10 * time.Minute
	defaultConnectTimeout  = 5 * time.Second
	defaultPort            = 3306
)

// buildPool configures and returns a *sql.DB for dbName with pool settings
func buildPool(cfg *database.Config, dbName string) (*sql.DB, error) {
	db, err := sql.Open("mysql", buildDSN(cfg, dbName))
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "invalid mysql config", err)
	}

	maxOpen := int(cfg.MaxConns)
	if maxOpen == 0 {
		maxOpen = defaultMaxOpenConns
	}
	lifetime := cfg.MaxConnLifetime
	if lifetime == 0 {
		lifetime = defaultConnMaxLifetime
	}
	idle := cfg.MaxConnIdleTime
	if idle == 0 {
		idle = defaultConnMaxIdleTime
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(max(int(cfg.MinConns), 1))
	db.SetConnMaxLifetime(lifetime)
	db.SetConnMaxIdleTime(idle)

	return db, nil
}

// buildDSN constructs the MySQL DSN string for dbName. An empty dbName
// connects without selecting a database, which is what CREATE DATABASE needs.
func buildDSN(cfg *database.Config, dbName string) string {
	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}
	timeout := cfg.ConnectTimeout
	if timeout == 0 {
		timeout = defaultConnectTimeout
	}

	mc := gomysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", cfg.Host, port)
	mc.DBName = dbName
	mc.ParseTime = true
	mc.Timeout = timeout
	return mc.FormatDSN()
}
