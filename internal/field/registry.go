package field

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/koustreak/tablesmith/internal/errs"
)

// ErrUnknownFieldType is the cause of every error returned for an
// unrecognised discriminator.
var ErrUnknownFieldType = errors.New("unknown field type")

type kindSpec struct {
	typeName string
	build    func(name string, p Params) (Field, error)
	params   func(f Field) Params
	render   func(f Field) string
}

var registry = map[Kind]kindSpec{
	KindPrimaryKey: {
		typeName: TypePrimaryKey,
		build: func(name string, _ Params) (Field, error) {
			return Field{
				Name:         name,
				Kind:         KindPrimaryKey,
				Length:       DefaultLength,
				Nullable:     DefaultNullable,
				DefaultValue: DefaultValue,
			}, nil
		},
		params: func(Field) Params { return Params{} },
		render: func(f Field) string {
			return fmt.Sprintf("%s = models.IntegerField(primary_key=True)", f.Name)
		},
	},
	KindChar: {
		typeName: TypeChar,
		build: func(name string, p Params) (Field, error) {
			f := Field{
				Name:         name,
				Kind:         KindChar,
				Length:       lengthParam(p),
				Nullable:     nullableParam(p),
				DefaultValue: defaultParam(p),
			}
			if f.Length < 1 || f.Length > MaxLength {
				return Field{}, invalid("field %q: length must be between 1 and %d, got %d", name, MaxLength, f.Length)
			}
			return f, nil
		},
		params: func(f Field) Params {
			return Params{
				ParamDefaultValue: f.DefaultValue,
				ParamLength:       f.Length,
				ParamNullable:     f.Nullable,
			}
		},
		render: func(f Field) string {
			return fmt.Sprintf("%s = models.CharField(max_length=%d, null=%s, blank=%s, default=%s)",
				f.Name, f.Length, pyBool(f.Nullable), pyBool(f.Nullable), strconv.Quote(f.DefaultValue))
		},
	},
	KindBoolean: {
		typeName: TypeBoolean,
		build: func(name string, p Params) (Field, error) {
			f := Field{
				Name:         name,
				Kind:         KindBoolean,
				Length:       DefaultLength,
				Nullable:     nullableParam(p),
				DefaultValue: defaultParam(p),
			}
			if f.DefaultValue != "" {
				if _, err := strconv.ParseBool(f.DefaultValue); err != nil {
					return Field{}, invalid("field %q: boolean default_value must be true or false, got %q", name, f.DefaultValue)
				}
			}
			return f, nil
		},
		params: func(f Field) Params {
			return Params{
				ParamDefaultValue: f.DefaultValue,
				ParamNullable:     f.Nullable,
			}
		},
		render: func(f Field) string {
			line := fmt.Sprintf("%s = models.BooleanField(null=%s, blank=%s", f.Name, pyBool(f.Nullable), pyBool(f.Nullable))
			if f.DefaultValue != "" {
				v, _ := strconv.ParseBool(f.DefaultValue)
				line += ", default=" + pyBool(v)
			}
			return line + ")"
		},
	},
}

var byType = func() map[string]Kind {
	m := make(map[string]Kind, len(registry))
	for k, spec := range registry {
		m[spec.typeName] = k
	}
	return m
}()

// Types lists the accepted discriminators.
func Types() []string {
	return []string{TypePrimaryKey, TypeChar, TypeBoolean}
}

// lengthParam accepts only integral numbers; anything else falls back to
// DefaultLength.
func lengthParam(p Params) int {
	switch v := p[ParamLength].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		if v == math.Trunc(v) && math.Abs(v) <= math.MaxInt32 {
			return int(v)
		}
	case json.Number:
		if n, err := v.Int64(); err == nil && n >= math.MinInt32 && n <= math.MaxInt32 {
			return int(n)
		}
	}
	return DefaultLength
}

// nullableParam treats an absent or null value as DefaultNullable and
// anything else by truthiness.
func nullableParam(p Params) bool {
	v, ok := p[ParamNullable]
	if !ok || v == nil {
		return DefaultNullable
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t != ""
	case int:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	case json.Number:
		return t.String() != "0"
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	}
	return true
}

func defaultParam(p Params) string {
	if s, ok := p[ParamDefaultValue].(string); ok {
		return s
	}
	return DefaultValue
}

func pyBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

func unknownType(typ string) error {
	return errs.Wrap(errs.ErrKindInvalidInput, fmt.Sprintf("unknown field type %q", typ), ErrUnknownFieldType)
}

func invalid(format string, args ...any) error {
	return errs.Newf(errs.ErrKindInvalidInput, format, args...)
}
