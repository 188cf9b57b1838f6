package tenant

import (
	"context"
	"sync"
	"time"

	"github.com/koustreak/tablesmith/internal/errs"
)

// Lookup finds the tenant that owns a token. Implementations return an errs
// not_found error for unknown tokens.
type Lookup interface {
	TenantByToken(ctx context.Context, token string) (Tenant, error)
}

// Resolver maps access tokens to request identities. Successful lookups are
// cached for ttl; tenants are immutable so entries only ever expire.
type Resolver struct {
	lookup Lookup
	ttl    time.Duration
	now    func() time.Time

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	tc      Context
	expires time.Time
}

// NewResolver returns a Resolver over lookup. A ttl of zero disables caching.
func NewResolver(lookup Lookup, ttl time.Duration) *Resolver {
	return &Resolver{
		lookup: lookup,
		ttl:    ttl,
		now:    time.Now,
		cache:  make(map[string]cacheEntry),
	}
}

// Resolve returns the Context for token. Empty and unknown tokens fail with
// an errs unauthorized error; other lookup failures propagate.
func (r *Resolver) Resolve(ctx context.Context, token string) (Context, error) {
	if token == "" {
		return Context{}, errs.New(errs.ErrKindUnauthorized, "access token required")
	}

	if tc, ok := r.cached(token); ok {
		return tc, nil
	}

	t, err := r.lookup.TenantByToken(ctx, token)
	if err != nil {
		if errs.IsNotFound(err) {
			return Context{}, errs.New(errs.ErrKindUnauthorized, "invalid access token")
		}
		return Context{}, err
	}

	tc := t.Context()
	if r.ttl > 0 {
		r.mu.Lock()
		r.cache[token] = cacheEntry{tc: tc, expires: r.now().Add(r.ttl)}
		r.mu.Unlock()
	}
	return tc, nil
}

func (r *Resolver) cached(token string) (Context, bool) {
	if r.ttl <= 0 {
		return Context{}, false
	}

	r.mu.RLock()
	e, ok := r.cache[token]
	r.mu.RUnlock()

	if !ok {
		return Context{}, false
	}
	if r.now().After(e.expires) {
		r.mu.Lock()
		if cur, still := r.cache[token]; still && cur.expires == e.expires {
			delete(r.cache, token)
		}
		r.mu.Unlock()
		return Context{}, false
	}
	return e.tc, true
}
