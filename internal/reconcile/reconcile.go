// Package reconcile decides what happens when a tenant submits a table
// definition: store it, leave it alone, or replace the stored one.
//
// For a given (database, table) only one reconciliation runs at a time in
// this process; across processes the registry's row lock and unique key give
// the same guarantee. The generated model module is rebuilt only after the
// record change has committed, and never when nothing changed.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/koustreak/tablesmith/internal/errs"
	"github.com/koustreak/tablesmith/internal/keylock"
	"github.com/koustreak/tablesmith/internal/logger"
	"github.com/koustreak/tablesmith/internal/metrics"
	"github.com/koustreak/tablesmith/internal/registry"
	"github.com/koustreak/tablesmith/internal/schema"
)

// Outcome is the result of one reconciliation.
type Outcome int

const (
	Created Outcome = iota + 1
	Unchanged
	Updated
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case Unchanged:
		return "unchanged"
	case Updated:
		return "updated"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Policy selects what a differing submission does to an existing record.
type Policy string

const (
	// PolicyUpdate replaces the stored definition.
	PolicyUpdate Policy = "update"

	// PolicyReject fails with ErrSchemaConflict.
	PolicyReject Policy = "reject"
)

// ParsePolicy accepts "update" and "reject" in any case. The empty string
// selects PolicyUpdate.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyUpdate:
		return PolicyUpdate, nil
	case PolicyReject:
		return PolicyReject, nil
	}
	return "", errs.Newf(errs.ErrKindInvalidInput, "unknown mismatch policy %q", s)
}

// ErrSchemaConflict is the cause of the error returned under PolicyReject
// when a submission differs from the stored definition.
var ErrSchemaConflict = errors.New("schema conflict")

// ErrNameCollision is the cause of the error returned when a new table name
// differs from a stored one only in letter case. Both would render the same
// model class.
var ErrNameCollision = errors.New("table name collision")

// Regenerator rebuilds a tenant's model module from committed records.
type Regenerator interface {
	Publish(ctx context.Context, database string) error
}

// Reconciler applies submitted table definitions to the registry.
type Reconciler struct {
	store   registry.Store
	regen   Regenerator
	policy  Policy
	log     *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	locks keylock.Mutex
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithPolicy sets the mismatch policy. The default is PolicyUpdate.
func WithPolicy(p Policy) Option {
	return func(r *Reconciler) { r.policy = p }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(r *Reconciler) { r.log = l }
}

// WithMetrics records outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

// New returns a Reconciler writing to store and regenerating through regen.
func New(store registry.Store, regen Regenerator, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:  store,
		regen:  regen,
		policy: PolicyUpdate,
		log:    logger.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile compares table with the stored record for (database, table name)
// and creates or updates it as needed.
//
// Store failures while writing a decided change are reported as
// errs persistence errors and leave both the record and the module untouched.
// A regeneration failure after a successful commit is returned as is; the
// record change stands.
func (r *Reconciler) Reconcile(ctx context.Context, database string, table *schema.Table) (Outcome, error) {
	if database == "" {
		return 0, errs.New(errs.ErrKindInvalidInput, "database is required")
	}
	if table == nil {
		return 0, errs.New(errs.ErrKindInvalidInput, "table is required")
	}

	// Names equal up to case share a key so the collision check below
	// cannot race with the insert it guards.
	unlock := r.locks.Lock(database + "\x00" + strings.ToLower(table.Name()))
	defer unlock()

	outcome, err := r.apply(ctx, database, table)
	if errs.IsConflict(err) && !errors.Is(err, ErrSchemaConflict) && !errors.Is(err, ErrNameCollision) {
		// Another process inserted the same key first; the retry sees its row.
		outcome, err = r.apply(ctx, database, table)
	}
	if err != nil {
		return 0, err
	}

	log := r.log.ForTable(database, table.Name()).With().
		Str(logger.FieldOutcome, outcome.String()).
		Logger()
	r.metrics.Reconciled(outcome.String())

	if outcome == Unchanged {
		log.Debug("table definition unchanged")
		return outcome, nil
	}

	if err := r.regen.Publish(ctx, database); err != nil {
		r.metrics.RegenerateFailed()
		log.ErrorWith("failed to regenerate models module", err, nil)
		return outcome, err
	}
	log.Info("table definition reconciled")
	return outcome, nil
}

// apply runs one locked read-compare-write transaction.
func (r *Reconciler) apply(ctx context.Context, database string, table *schema.Table) (Outcome, error) {
	var outcome Outcome

	err := r.store.WithinTx(ctx, func(tx registry.SchemaTx) error {
		rec, found, err := tx.LockSchema(ctx, database, table.Name())
		if err != nil {
			return err
		}

		now := r.now().UTC()
		if !found {
			if err := r.checkCollision(ctx, database, table.Name()); err != nil {
				return err
			}
			outcome = Created
			return persistErr(tx.InsertSchema(ctx, registry.SchemaRecord{
				Database:  database,
				Name:      table.Name(),
				Data:      table.CanonicalJSON(),
				CreatedAt: now,
				UpdatedAt: now,
			}))
		}

		stored, err := schema.Decode(rec.Data)
		if err != nil {
			return errs.Wrap(errs.ErrKindPersistence, "stored schema "+rec.Name+" is unreadable", err)
		}
		if stored.Equal(table) {
			outcome = Unchanged
			return nil
		}

		if r.policy == PolicyReject {
			return errs.Wrap(errs.ErrKindConflict,
				fmt.Sprintf("table %q already exists with a different definition", table.Name()), ErrSchemaConflict)
		}

		outcome = Updated
		rec.Data = table.CanonicalJSON()
		rec.UpdatedAt = now
		return persistErr(tx.UpdateSchema(ctx, rec))
	})
	if err != nil {
		if outcome == Created || outcome == Updated {
			return 0, commitErr(err)
		}
		return 0, err
	}
	return outcome, nil
}

// persistErr wraps a failed write as a persistence error, except for a
// unique-key conflict which the caller retries.
func persistErr(err error) error {
	if err == nil || errs.IsConflict(err) {
		return err
	}
	return errs.Wrap(errs.ErrKindPersistence, "failed to save table definition", err)
}

// commitErr classifies a failure after a write was decided. A failed commit
// means the change was not persisted.
func commitErr(err error) error {
	switch errs.KindOf(err) {
	case errs.ErrKindPersistence, errs.ErrKindConflict:
		return err
	}
	return errs.Wrap(errs.ErrKindPersistence, "failed to save table definition", err)
}

// checkCollision rejects name when a stored table of database differs from it
// only in letter case.
func (r *Reconciler) checkCollision(ctx context.Context, database, name string) error {
	recs, err := r.store.ListSchemas(ctx, database)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		if rec.Name != name && strings.EqualFold(rec.Name, name) {
			return errs.Wrap(errs.ErrKindConflict,
				fmt.Sprintf("table %q differs from existing table %q only in case", name, rec.Name), ErrNameCollision)
		}
	}
	return nil
}
