// Package field is the registry of the column kinds a tenant may declare.
//
// The set of kinds is closed: PrimaryKey, Char and Boolean. Each kind is
// registered once with a builder (applies defaults and validates), a params
// projection (the canonical persisted shape) and a renderer (one line of
// generated model source). Callers go through Create, FromConfig and
// ToConfig and never switch on the kind themselves.
package field

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
)

// Kind is the closed set of supported column kinds.
type Kind int

const (
	KindPrimaryKey Kind = iota + 1
	KindChar
	KindBoolean
)

// Wire discriminators, as stored in schema records and accepted from callers.
const (
	TypePrimaryKey = "PrimaryKeyField"
	TypeChar       = "CharField"
	TypeBoolean    = "BooleanField"
)

// Defaults applied when params leave an attribute out.
const (
	DefaultLength   = 255
	DefaultNullable = true
	DefaultValue    = ""

	// MaxLength is the largest accepted CharField length.
	MaxLength = 65535
)

// Param keys inside Config.Params.
const (
	ParamLength       = "length"
	ParamNullable     = "nullable"
	ParamDefaultValue = "default_value"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// String returns the wire discriminator of k.
func (k Kind) String() string {
	if spec, ok := registry[k]; ok {
		return spec.typeName
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Field is one declared column. PrimaryKey fields carry the defaults for
// Length, Nullable and DefaultValue but never use them.
type Field struct {
	Name         string
	Kind         Kind
	Length       int
	Nullable     bool
	DefaultValue string
}

// Params is the loosely typed parameter bag submitted by callers or decoded
// from a stored record.
type Params map[string]any

// Spec is a field as submitted under its name in a table payload.
type Spec struct {
	Type   string `json:"type"`
	Params Params `json:"params"`
}

// Config is the canonical {name, type, params} shape used for persistence
// and comparison. Struct fields are declared in key order so that encoding
// is sorted at every level.
type Config struct {
	Name   string `json:"name"`
	Params Params `json:"params"`
	Type   string `json:"type"`
}

// Create builds a Field of the kind named by typ, applying defaults from
// params. Unknown discriminators fail with ErrUnknownFieldType.
func Create(name, typ string, params Params) (Field, error) {
	kind, ok := byType[typ]
	if !ok {
		return Field{}, unknownType(typ)
	}
	if err := checkName(name); err != nil {
		return Field{}, err
	}
	if params == nil {
		params = Params{}
	}
	return registry[kind].build(name, params)
}

// FromConfig is Create over a Config.
func FromConfig(cfg Config) (Field, error) {
	return Create(cfg.Name, cfg.Type, cfg.Params)
}

// ToConfig returns the canonical shape of f.
func ToConfig(f Field) Config {
	spec := registry[f.Kind]
	return Config{
		Name:   f.Name,
		Params: spec.params(f),
		Type:   spec.typeName,
	}
}

// Canonical returns the canonical JSON encoding of f.
func (f Field) Canonical() []byte {
	b, err := json.Marshal(ToConfig(f))
	if err != nil {
		// Params only ever hold ints, bools and strings.
		panic(fmt.Sprintf("field: encode %s: %v", f.Name, err))
	}
	return b
}

// Equal reports whether f and other have byte-identical canonical encodings.
func (f Field) Equal(other Field) bool {
	return bytes.Equal(f.Canonical(), other.Canonical())
}

// Render returns the model attribute declaration for f.
func (f Field) Render() string {
	return registry[f.Kind].render(f)
}

func (f Field) String() string {
	return fmt.Sprintf("%s(%s, (%d, %t, %q))", f.Kind, f.Name, f.Length, f.Nullable, f.DefaultValue)
}
