// Package tenant identifies the customer a request acts for.
//
// A Tenant is created once at onboarding and never changes: an opaque access
// token and the name of the physical database that holds its tables. The
// request-scoped Context travels in context.Context and nowhere else.
package tenant

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"
)

const (
	// TokenLength is the number of characters in a generated access token.
	TokenLength = 64

	// DatabaseSuffixLength is the number of random characters appended to
	// the database prefix.
	DatabaseSuffixLength = 25

	// DefaultDatabasePrefix starts every generated database name.
	DefaultDatabasePrefix = "tablesmith_"
)

const (
	tokenAlphabet    = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	databaseAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// Tenant is the stored onboarding record.
type Tenant struct {
	Token     string    `json:"token"`
	Database  string    `json:"database"`
	CreatedAt time.Time `json:"created_at"`
}

// Context is the identity bound to one request.
type Context struct {
	Token    string
	Database string
}

// Context returns the request identity for t.
func (t Tenant) Context() Context {
	return Context{Token: t.Token, Database: t.Database}
}

type ctxKey struct{}

// WithContext returns a copy of ctx carrying tc.
func WithContext(ctx context.Context, tc Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, tc)
}

// FromContext returns the tenant bound to ctx, if any.
func FromContext(ctx context.Context) (Context, bool) {
	tc, ok := ctx.Value(ctxKey{}).(Context)
	return tc, ok
}

// New generates a fresh Tenant whose database name starts with prefix.
// An empty prefix selects DefaultDatabasePrefix.
func New(prefix string) (Tenant, error) {
	token, err := NewToken()
	if err != nil {
		return Tenant{}, err
	}
	db, err := NewDatabaseName(prefix)
	if err != nil {
		return Tenant{}, err
	}
	return Tenant{Token: token, Database: db, CreatedAt: time.Now().UTC()}, nil
}

// NewToken returns TokenLength random alphanumeric characters.
func NewToken() (string, error) {
	return randomString(tokenAlphabet, TokenLength)
}

// NewDatabaseName returns prefix followed by DatabaseSuffixLength random
// lowercase letters and digits.
func NewDatabaseName(prefix string) (string, error) {
	if prefix == "" {
		prefix = DefaultDatabasePrefix
	}
	suffix, err := randomString(databaseAlphabet, DatabaseSuffixLength)
	if err != nil {
		return "", err
	}
	return prefix + suffix, nil
}

func randomString(alphabet string, n int) (string, error) {
	limit := big.NewInt(int64(len(alphabet)))
	buf := make([]byte, n)
	for i := range buf {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		buf[i] = alphabet[idx.Int64()]
	}
	return string(buf), nil
}
