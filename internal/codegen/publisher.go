package codegen

import (
	"context"

	"github.com/koustreak/tablesmith/internal/errs"
	"github.com/koustreak/tablesmith/internal/keylock"
	"github.com/koustreak/tablesmith/internal/logger"
	"github.com/koustreak/tablesmith/internal/registry"
	"github.com/koustreak/tablesmith/internal/schema"
	"github.com/koustreak/tablesmith/internal/workspace"
)

// RecordLister reads a tenant's committed schema records.
type RecordLister interface {
	ListSchemas(ctx context.Context, database string) ([]registry.SchemaRecord, error)
}

// Publisher regenerates a tenant's model module from committed records and
// overwrites it in the tenant's workspace. Publishes for one database run one
// at a time, so a later snapshot is never overwritten by an earlier one.
type Publisher struct {
	records RecordLister
	files   workspace.Store
	log     *logger.Logger

	locks keylock.Mutex
}

// NewPublisher returns a Publisher. A nil log discards output.
func NewPublisher(records RecordLister, files workspace.Store, log *logger.Logger) *Publisher {
	if log == nil {
		log = logger.Nop()
	}
	return &Publisher{records: records, files: files, log: log}
}

// Generate renders the module for database without writing it.
func (p *Publisher) Generate(ctx context.Context, database string) ([]byte, error) {
	recs, err := p.records.ListSchemas(ctx, database)
	if err != nil {
		return nil, err
	}

	tables := make([]*schema.Table, 0, len(recs))
	for _, rec := range recs {
		t, err := schema.Decode(rec.Data)
		if err != nil {
			return nil, errs.Wrap(errs.ErrKindPersistence, "stored schema "+rec.Name+" is unreadable", err)
		}
		tables = append(tables, t)
	}
	return Render(tables), nil
}

// Publish regenerates and writes the module for database.
func (p *Publisher) Publish(ctx context.Context, database string) error {
	unlock := p.locks.Lock(database)
	defer unlock()

	src, err := p.Generate(ctx, database)
	if err != nil {
		return err
	}
	if err := p.files.WriteFile(ctx, database, workspace.ModelsFile, src); err != nil {
		return err
	}

	p.log.ForTenant(database).With().Int("bytes", len(src)).Logger().
		Debug("models module published")
	return nil
}
