package database

import (
	"context"
	"sync"
)

// Manager hands out one connection pool per tenant database, opening pools
// lazily and sharing them across requests. It is safe for concurrent use.
type Manager struct {
	cfg  *Config
	open Opener

	mu    sync.RWMutex
	pools map[string]DB
}

// NewManager creates a Manager that opens tenant pools with open, sized by
// cfg.ForTenant().
func NewManager(cfg *Config, open Opener) *Manager {
	return &Manager{
		cfg:   cfg.ForTenant(),
		open:  open,
		pools: make(map[string]DB),
	}
}

// Get returns the pool for the named database, opening it on first use.
func (m *Manager) Get(ctx context.Context, dbName string) (DB, error) {
	m.mu.RLock()
	db, ok := m.pools[dbName]
	m.mu.RUnlock()
	if ok {
		return db, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Another goroutine may have opened it while we waited for the lock.
	if db, ok := m.pools[dbName]; ok {
		return db, nil
	}

	db, err := m.open(ctx, m.cfg, dbName)
	if err != nil {
		return nil, err
	}
	m.pools[dbName] = db
	return db, nil
}

// Len reports how many pools are open.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pools)
}

// Close closes every pool.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, db := range m.pools {
		db.Close()
		delete(m.pools, name)
	}
}
