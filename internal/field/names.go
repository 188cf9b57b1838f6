package field

import "strings"

// keywords are Python's hard keywords. None of them can name an attribute or
// a class in the generated module.
var keywords = map[string]struct{}{
	"False": {}, "None": {}, "True": {}, "and": {}, "as": {}, "assert": {},
	"async": {}, "await": {}, "break": {}, "class": {}, "continue": {}, "def": {},
	"del": {}, "elif": {}, "else": {}, "except": {}, "finally": {}, "for": {},
	"from": {}, "global": {}, "if": {}, "import": {}, "in": {}, "is": {},
	"lambda": {}, "nonlocal": {}, "not": {}, "or": {}, "pass": {}, "raise": {},
	"return": {}, "try": {}, "while": {}, "with": {}, "yield": {},
}

// IsKeyword reports whether s is a Python keyword.
func IsKeyword(s string) bool {
	_, ok := keywords[s]
	return ok
}

// checkName rejects field names that would not load as model attributes:
// non-identifiers, keywords, the reserved "pk", names containing "__" (the
// query lookup separator) and names ending in "_".
func checkName(name string) error {
	switch {
	case !identRe.MatchString(name):
		return invalid("field name %q must be a letter or underscore followed by letters, digits or underscores", name)
	case IsKeyword(name):
		return invalid("field name %q is a reserved word", name)
	case name == "pk":
		return invalid("field name %q is reserved", name)
	case strings.Contains(name, "__"):
		return invalid("field name %q must not contain %q", name, "__")
	case strings.HasSuffix(name, "_"):
		return invalid("field name %q must not end with an underscore", name)
	}
	return nil
}
