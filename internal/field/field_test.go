package field

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/tablesmith/internal/errs"
)

func TestCreate_Defaults(t *testing.T) {
	tests := []struct {
		name   string
		typ    string
		params Params
		want   Field
	}{
		{
			name:   "char with no params",
			typ:    TypeChar,
			params: nil,
			want:   Field{Name: "f", Kind: KindChar, Length: 255, Nullable: true, DefaultValue: ""},
		},
		{
			name:   "char with explicit params",
			typ:    TypeChar,
			params: Params{"length": 50, "nullable": false, "default_value": "anon"},
			want:   Field{Name: "f", Kind: KindChar, Length: 50, Nullable: false, DefaultValue: "anon"},
		},
		{
			name:   "char length from decoded json number",
			typ:    TypeChar,
			params: Params{"length": float64(80)},
			want:   Field{Name: "f", Kind: KindChar, Length: 80, Nullable: true},
		},
		{
			name:   "non-integer length falls back to default",
			typ:    TypeChar,
			params: Params{"length": "50"},
			want:   Field{Name: "f", Kind: KindChar, Length: 255, Nullable: true},
		},
		{
			name:   "fractional length falls back to default",
			typ:    TypeChar,
			params: Params{"length": 12.5},
			want:   Field{Name: "f", Kind: KindChar, Length: 255, Nullable: true},
		},
		{
			name:   "null nullable uses default",
			typ:    TypeChar,
			params: Params{"nullable": nil},
			want:   Field{Name: "f", Kind: KindChar, Length: 255, Nullable: true},
		},
		{
			name:   "nullable by truthiness",
			typ:    TypeChar,
			params: Params{"nullable": 0},
			want:   Field{Name: "f", Kind: KindChar, Length: 255, Nullable: false},
		},
		{
			name:   "non-string default falls back",
			typ:    TypeChar,
			params: Params{"default_value": 7},
			want:   Field{Name: "f", Kind: KindChar, Length: 255, Nullable: true},
		},
		{
			name:   "primary key ignores params",
			typ:    TypePrimaryKey,
			params: Params{"length": 10, "nullable": false, "default_value": "x"},
			want:   Field{Name: "f", Kind: KindPrimaryKey, Length: 255, Nullable: true},
		},
		{
			name:   "boolean",
			typ:    TypeBoolean,
			params: Params{"nullable": false, "default_value": "true"},
			want:   Field{Name: "f", Kind: KindBoolean, Length: 255, Nullable: false, DefaultValue: "true"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Create("f", tt.typ, tt.params)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCreate_Errors(t *testing.T) {
	t.Run("unknown type", func(t *testing.T) {
		_, err := Create("f", "DateField", nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrUnknownFieldType))
		assert.True(t, errs.IsInvalidInput(err))
		assert.Contains(t, err.Error(), "DateField")
	})

	t.Run("bad field name", func(t *testing.T) {
		for _, name := range []string{"", "1abc", "user name", "a-b", `x"y`} {
			_, err := Create(name, TypeChar, nil)
			assert.True(t, errs.IsInvalidInput(err), name)
		}
	})

	t.Run("name unusable in generated source", func(t *testing.T) {
		for _, name := range []string{"class", "def", "None", "True", "lambda", "pk", "first__name", "a__", "name_", "_"} {
			_, err := Create(name, TypeBoolean, nil)
			assert.True(t, errs.IsInvalidInput(err), name)
		}
	})

	t.Run("names close to reserved ones are fine", func(t *testing.T) {
		for _, name := range []string{"klass", "none", "pk_id", "_private", "first_name", "match", "type"} {
			_, err := Create(name, TypeBoolean, nil)
			assert.NoError(t, err, name)
		}
	})

	t.Run("char length out of range", func(t *testing.T) {
		_, err := Create("f", TypeChar, Params{"length": 0})
		assert.True(t, errs.IsInvalidInput(err))

		_, err = Create("f", TypeChar, Params{"length": MaxLength + 1})
		assert.True(t, errs.IsInvalidInput(err))
	})

	t.Run("boolean default must parse", func(t *testing.T) {
		_, err := Create("f", TypeBoolean, Params{"default_value": "maybe"})
		assert.True(t, errs.IsInvalidInput(err))
	})
}

func TestConfig_RoundTrip(t *testing.T) {
	configs := []Config{
		{Name: "id", Type: TypePrimaryKey, Params: Params{}},
		{Name: "username", Type: TypeChar, Params: Params{"length": 50, "nullable": false, "default_value": ""}},
		{Name: "bio", Type: TypeChar, Params: Params{"length": 255, "nullable": true, "default_value": "n/a"}},
		{Name: "active", Type: TypeBoolean, Params: Params{"nullable": true, "default_value": ""}},
		{Name: "admin", Type: TypeBoolean, Params: Params{"nullable": false, "default_value": "false"}},
	}

	for _, cfg := range configs {
		t.Run(cfg.Name, func(t *testing.T) {
			f, err := FromConfig(cfg)
			require.NoError(t, err)
			assert.Equal(t, cfg, ToConfig(f))
		})
	}
}

func TestCanonical_SortedKeys(t *testing.T) {
	f, err := Create("username", TypeChar, Params{"nullable": false, "length": 50})
	require.NoError(t, err)

	assert.Equal(t,
		`{"name":"username","params":{"default_value":"","length":50,"nullable":false},"type":"CharField"}`,
		string(f.Canonical()))
}

func TestCanonical_BooleanUsesOwnDiscriminator(t *testing.T) {
	f, err := Create("active", TypeBoolean, nil)
	require.NoError(t, err)

	var decoded Config
	require.NoError(t, json.Unmarshal(f.Canonical(), &decoded))
	assert.Equal(t, TypeBoolean, decoded.Type)
	assert.Equal(t, "BooleanField", KindBoolean.String())
}

func TestEqual(t *testing.T) {
	a, _ := Create("name", TypeChar, Params{"length": 50})
	b, _ := Create("name", TypeChar, Params{"length": float64(50), "nullable": true})
	c, _ := Create("name", TypeChar, Params{"length": 51})
	d, _ := Create("name", TypeBoolean, nil)

	assert.True(t, a.Equal(b))
	assert.True(t, b.Equal(a))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(d))
}

func TestRender(t *testing.T) {
	tests := []struct {
		name string
		typ  string
		p    Params
		want string
	}{
		{"id", TypePrimaryKey, nil, `id = models.IntegerField(primary_key=True)`},
		{"username", TypeChar, Params{"length": 50, "nullable": false}, `username = models.CharField(max_length=50, null=False, blank=False, default="")`},
		{"motto", TypeChar, Params{"default_value": `say "hi"`}, `motto = models.CharField(max_length=255, null=True, blank=True, default="say \"hi\"")`},
		{"active", TypeBoolean, nil, `active = models.BooleanField(null=True, blank=True)`},
		{"admin", TypeBoolean, Params{"nullable": false, "default_value": "false"}, `admin = models.BooleanField(null=False, blank=False, default=False)`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Create(tt.name, tt.typ, tt.p)
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.Render())
		})
	}
}
