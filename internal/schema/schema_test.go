package schema

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/tablesmith/internal/errs"
	"github.com/koustreak/tablesmith/internal/field"
)

func char(params field.Params) field.Spec {
	return field.Spec{Type: field.TypeChar, Params: params}
}

func boolean() field.Spec {
	return field.Spec{Type: field.TypeBoolean, Params: field.Params{}}
}

func mustNew(t *testing.T, name string, specs map[string]field.Spec) *Table {
	t.Helper()
	tbl, err := New(name, specs)
	require.NoError(t, err)
	return tbl
}

func TestFields_SortedAndCached(t *testing.T) {
	tbl := mustNew(t, "users", map[string]field.Spec{
		"zeta":     char(nil),
		"alpha":    boolean(),
		"id":       {Type: field.TypePrimaryKey},
		"username": char(field.Params{"length": 50}),
	})

	first := tbl.Fields()
	second := tbl.Fields()

	names := make([]string, len(first))
	for i, f := range first {
		names[i] = f.Name
	}
	assert.True(t, sort.StringsAreSorted(names))
	assert.Equal(t, []string{"alpha", "id", "username", "zeta"}, names)
	assert.Equal(t, first, second)
	assert.Same(t, &first[0], &second[0])
}

func TestEqual(t *testing.T) {
	ab := mustNew(t, "t", map[string]field.Spec{"a": char(nil), "b": boolean()})

	t.Run("reflexive", func(t *testing.T) {
		assert.True(t, ab.Equal(ab))
	})

	t.Run("symmetric", func(t *testing.T) {
		other := mustNew(t, "t", map[string]field.Spec{"b": boolean(), "a": char(nil)})
		assert.True(t, ab.Equal(other))
		assert.True(t, other.Equal(ab))
	})

	t.Run("missing field", func(t *testing.T) {
		onlyA := mustNew(t, "t", map[string]field.Spec{"a": char(nil)})
		assert.False(t, ab.Equal(onlyA))
		assert.False(t, onlyA.Equal(ab))
	})

	t.Run("type swap", func(t *testing.T) {
		swapped := mustNew(t, "t", map[string]field.Spec{"a": boolean(), "b": char(nil)})
		assert.False(t, ab.Equal(swapped))
	})

	t.Run("explicit defaults equal implicit ones", func(t *testing.T) {
		explicit := mustNew(t, "t", map[string]field.Spec{
			"b": boolean(),
			"a": char(field.Params{"length": 255, "nullable": true, "default_value": ""}),
		})
		assert.True(t, ab.Equal(explicit))
	})

	t.Run("different name", func(t *testing.T) {
		renamed := mustNew(t, "u", map[string]field.Spec{"a": char(nil), "b": boolean()})
		assert.False(t, ab.Equal(renamed))
	})

	t.Run("nil", func(t *testing.T) {
		var none *Table
		assert.False(t, ab.Equal(nil))
		assert.True(t, none.Equal(nil))
	})
}

func TestCanonicalJSON(t *testing.T) {
	tbl := mustNew(t, "users", map[string]field.Spec{
		"username": char(field.Params{"length": 50, "nullable": false}),
		"id":       {Type: field.TypePrimaryKey},
	})

	want := `{"fields":{` +
		`"id":{"name":"id","params":{},"type":"PrimaryKeyField"},` +
		`"username":{"name":"username","params":{"default_value":"","length":50,"nullable":false},"type":"CharField"}` +
		`},"name":"users"}`
	assert.Equal(t, want, string(tbl.CanonicalJSON()))
}

func TestDecode_RoundTripsCanonicalJSON(t *testing.T) {
	tbl := mustNew(t, "users", map[string]field.Spec{
		"id":       {Type: field.TypePrimaryKey},
		"username": char(field.Params{"length": 50, "nullable": false}),
		"active":   {Type: field.TypeBoolean, Params: field.Params{"default_value": "true"}},
	})

	decoded, err := Decode(tbl.CanonicalJSON())
	require.NoError(t, err)

	assert.True(t, tbl.Equal(decoded))
	assert.Equal(t, tbl.CanonicalJSON(), decoded.CanonicalJSON())
}

func TestDecode_SubmittedPayload(t *testing.T) {
	payload := []byte(`{
		"name": "users",
		"fields": {
			"username": {"type": "CharField", "params": {"length": 50, "nullable": false, "default_value": ""}},
			"id": {"type": "PrimaryKeyField", "params": {}}
		}
	}`)

	tbl, err := Decode(payload)
	require.NoError(t, err)
	require.Len(t, tbl.Fields(), 2)
	assert.Equal(t, "id", tbl.Fields()[0].Name)
	assert.Equal(t, 50, tbl.Fields()[1].Length)
	assert.False(t, tbl.Fields()[1].Nullable)
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name   string
		table  string
		fields map[string]field.Spec
	}{
		{"empty name", "", map[string]field.Spec{"a": char(nil)}},
		{"bad name", "drop table;", map[string]field.Spec{"a": char(nil)}},
		{"too long", "t234567890123456789012345678901234567890123456789012345678901234", map[string]field.Spec{"a": char(nil)}},
		{"keyword name", "class", map[string]field.Spec{"a": char(nil)}},
		{"keyword class name", "none", map[string]field.Spec{"a": char(nil)}},
		{"keyword field", "t", map[string]field.Spec{"def": char(nil)}},
		{"no fields", "t", nil},
		{"unknown type", "t", map[string]field.Spec{"a": {Type: "JSONField"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.table, tt.fields)
			assert.True(t, errs.IsInvalidInput(err))
		})
	}

	_, err := Decode([]byte(`{"name":`))
	assert.True(t, errs.IsInvalidInput(err))
}
