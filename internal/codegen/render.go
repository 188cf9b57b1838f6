// Package codegen turns a tenant's table definitions into the Django model
// module that lives in its workspace.
package codegen

import (
	"bytes"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/koustreak/tablesmith/internal/schema"
)

// Header opens every generated module.
const Header = "from django.db import models\n\n\n"

const indent = "    "

// Render returns the model module for tables. Tables are emitted in name
// order and fields in canonical order, so equal inputs always give
// byte-identical output.
func Render(tables []*schema.Table) []byte {
	sorted := make([]*schema.Table, len(tables))
	copy(sorted, tables)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name() < sorted[j].Name() })

	var buf bytes.Buffer
	buf.WriteString(Header)
	for _, t := range sorted {
		writeModel(&buf, t)
		buf.WriteString("\n\n")
	}
	return buf.Bytes()
}

func writeModel(buf *bytes.Buffer, t *schema.Table) {
	buf.WriteString("class ")
	buf.WriteString(ClassName(t.Name()))
	buf.WriteString("(models.Model):\n")

	for _, f := range t.Fields() {
		buf.WriteString(indent)
		buf.WriteString(f.Render())
		buf.WriteByte('\n')
	}

	buf.WriteByte('\n')
	buf.WriteString(indent + "class Meta:\n")
	buf.WriteString(indent + indent + "db_table = ")
	buf.WriteString(strconv.Quote(t.Physical()))
}

// ClassName upper-cases the first letter of a table name and lower-cases
// the rest: "users" and "USERS" both give "Users".
func ClassName(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError {
		return name
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(name[size:])
}
