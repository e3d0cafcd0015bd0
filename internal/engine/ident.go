package engine

import "strings"

// Ident is a validated SQL identifier. The zero value is unusable and the
// name field is unexported, so code outside this package cannot smuggle a
// raw request string into SQL text: only the metadata validator mints
// Idents, and only from allowlist-checked, catalog-sourced names.
type Ident struct {
	name string
}

// newIdent wraps a catalog-sourced identifier. Callers must have validated
// the name against live metadata first.
func newIdent(name string) Ident { return Ident{name: name} }

// Name returns the catalog-cased identifier text.
func (id Ident) Name() string { return id.name }

// Quoted renders the identifier double-quoted with embedded quotes doubled.
func (id Ident) Quoted() string {
	return `"` + strings.ReplaceAll(id.name, `"`, `""`) + `"`
}

// QualifiedIdent is a schema-qualified table identifier.
type QualifiedIdent struct {
	Schema Ident
	Table  Ident
}

// Quoted renders the qualified identifier as "schema"."table".
func (q QualifiedIdent) Quoted() string {
	return q.Schema.Quoted() + "." + q.Table.Quoted()
}

// normalizeIdent uppercases an identifier for case-insensitive comparison
// and cache keying.
func normalizeIdent(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// bindName derives a named-argument suffix from a column key. Named
// arguments only allow word characters, so anything else becomes an
// underscore.
func bindName(key string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(key) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
