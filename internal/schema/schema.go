// Package schema holds the canonical, comparable model of one tenant table.
//
// A Table is built either from a caller's payload or from a stored record;
// both share the {name, fields: {fieldName: {type, params}}} shape. Fields
// are exposed in ascending name order, which is the canonical order for
// serialization, comparison and code generation.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/koustreak/tablesmith/internal/errs"
	"github.com/koustreak/tablesmith/internal/field"
)

// MaxNameLength is the longest accepted table name (the Postgres identifier limit).
const MaxNameLength = 63

var nameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Table is an immutable table definition. The zero value is not usable;
// build one with New or Decode.
type Table struct {
	name   string
	fields []field.Field

	once   sync.Once
	sorted []field.Field
}

// Payload is the wire shape of a table definition.
type Payload struct {
	Name   string                `json:"name"`
	Fields map[string]field.Spec `json:"fields"`
}

// canonical is Payload with fully expanded field configs. Fields precedes
// Name so keys come out sorted.
type canonical struct {
	Fields map[string]field.Config `json:"fields"`
	Name   string                  `json:"name"`
}

// New builds a Table from a field mapping keyed by field name.
func New(name string, specs map[string]field.Spec) (*Table, error) {
	if !nameRe.MatchString(name) || len(name) > MaxNameLength {
		return nil, errs.Newf(errs.ErrKindInvalidInput,
			"table name %q must be an identifier of at most %d characters", name, MaxNameLength)
	}
	// Checked as written and as capitalized into the model class name.
	if field.IsKeyword(name) || field.IsKeyword(strings.ToUpper(name[:1])+strings.ToLower(name[1:])) {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "table name %q is a reserved word", name)
	}
	if len(specs) == 0 {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "table %q must declare at least one field", name)
	}

	t := &Table{name: name, fields: make([]field.Field, 0, len(specs))}
	for fieldName, spec := range specs {
		f, err := field.Create(fieldName, spec.Type, spec.Params)
		if err != nil {
			return nil, err
		}
		t.fields = append(t.fields, f)
	}
	return t, nil
}

// Decode builds a Table from JSON, accepting both a submitted payload and a
// stored canonical record. Numbers are kept exact so integer params survive.
func Decode(data []byte) (*Table, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var p Payload
	if err := dec.Decode(&p); err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "malformed table definition", err)
	}
	return New(p.Name, p.Fields)
}

// Name returns the table name.
func (t *Table) Name() string {
	return t.name
}

// Physical returns the relation name rendered into db_table and probed by
// existence checks.
func (t *Table) Physical() string {
	return t.name
}

// Fields returns the fields sorted by name. The slice is computed on first
// use and shared afterwards; callers must not modify it.
func (t *Table) Fields() []field.Field {
	t.once.Do(func() {
		sorted := make([]field.Field, len(t.fields))
		copy(sorted, t.fields)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
		t.sorted = sorted
	})
	return t.sorted
}

// CanonicalJSON returns the deterministic encoding stored in schema records.
func (t *Table) CanonicalJSON() []byte {
	c := canonical{Name: t.name, Fields: make(map[string]field.Config, len(t.fields))}
	for _, f := range t.Fields() {
		c.Fields[f.Name] = field.ToConfig(f)
	}
	b, err := json.Marshal(c)
	if err != nil {
		panic(fmt.Sprintf("schema: encode %s: %v", t.name, err))
	}
	return b
}

// Equal reports whether t and other have the same name and, walking both
// field lists in canonical order, identical canonical fields at every
// position. A field present on only one side breaks equality.
func (t *Table) Equal(other *Table) bool {
	if t == nil || other == nil {
		return t == other
	}
	if t.name != other.name {
		return false
	}

	a, b := t.Fields(), other.Fields()
	n := max(len(a), len(b))
	for i := 0; i < n; i++ {
		if i >= len(a) || i >= len(b) {
			return false
		}
		if !bytes.Equal(a[i].Canonical(), b[i].Canonical()) {
			return false
		}
	}
	return true
}

func (t *Table) String() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Table<%s, fields: ", t.name)
	for i, f := range t.Fields() {
		if i > 0 {
			buf.WriteString(", ")
		}
		buf.WriteString(f.String())
	}
	buf.WriteString(">")
	return buf.String()
}
