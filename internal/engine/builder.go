package engine

// builder.go produces the three statement shapes the engine executes.
// Its only identifier inputs are Ident values from a TablePolicy, and it
// never interpolates a raw value: values travel through named binds, with
// the single exception of large-text assignments, which are rendered as
// chunked quoted literals to respect driver per-parameter limits.

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Statement is a built SQL statement with its named-argument bindings.
type Statement struct {
	SQL  string
	Args pgx.NamedArgs
}

// largeTextChunkSize is the maximum run of characters rendered into a
// single quoted literal chunk for large-text assignments.
const largeTextChunkSize = 2000

// comparisonOps maps the closed filter operator set to SQL comparison
// operators. LIKE-based operators are handled separately.
var comparisonOps = map[FilterOperator]string{
	OpEquals:    "=",
	OpGreater:   ">",
	OpGreaterEq: ">=",
	OpLess:      "<",
	OpLessEq:    "<=",
}

// validateOperator fails InvalidOperator for anything outside the closed set.
func validateOperator(op FilterOperator) error {
	switch op {
	case OpEquals, OpContains, OpStartsWith, OpGreater, OpGreaterEq, OpLess, OpLessEq:
		return nil
	default:
		return invalidOperator(op)
	}
}

// buildSelect builds a filtered SELECT over all of the table's columns.
// Filters are ANDed; zero filters produce an always-true predicate so the
// code path stays uniform. A row limit is always appended, clamped into
// [MinQueryLimit, MaxQueryLimit].
func buildSelect(p *TablePolicy, filters []Filter, values []interface{}, limit int) (Statement, error) {
	args := pgx.NamedArgs{}

	predicates := make([]string, 0, len(filters))
	for i, f := range filters {
		col, ok := p.Column(f.Column)
		if !ok {
			return Statement{}, invalidColumns([]string{f.Column})
		}
		bind := fmt.Sprintf("f%d", i)
		args[bind] = values[i]

		switch f.Operator {
		case OpContains:
			predicates = append(predicates, fmt.Sprintf("%s LIKE '%%' || @%s || '%%'", col.Ident.Quoted(), bind))
		case OpStartsWith:
			predicates = append(predicates, fmt.Sprintf("%s LIKE @%s || '%%'", col.Ident.Quoted(), bind))
		default:
			sqlOp, ok := comparisonOps[f.Operator]
			if !ok {
				return Statement{}, invalidOperator(f.Operator)
			}
			predicates = append(predicates, fmt.Sprintf("%s %s @%s", col.Ident.Quoted(), sqlOp, bind))
		}
	}
	if len(predicates) == 0 {
		predicates = append(predicates, "1 = 1")
	}

	args["limit_rows"] = clampLimit(limit)

	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s LIMIT @limit_rows",
		selectList(p),
		p.Name.Quoted(),
		strings.Join(predicates, " AND "),
	)
	return Statement{SQL: sql, Args: args}, nil
}

// buildSelectByPK builds a SELECT matched on every configured primary key
// column. Callers must have validated the pk key set already.
func buildSelectByPK(p *TablePolicy, pk map[string]interface{}) Statement {
	predicates, args := pkPredicates(p, pk)
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		selectList(p),
		p.Name.Quoted(),
		strings.Join(predicates, " AND "),
	)
	return Statement{SQL: sql, Args: args}
}

// buildUpdateByPK builds an UPDATE with one SET entry per patch field.
// Large-text fields are rendered as chunked literals instead of binds; a
// null large-text value renders an explicit empty literal. SET binds use
// the set_ prefix and the WHERE clause the pk_ prefix, so the two
// namespaces never collide even when a table self-references.
func buildUpdateByPK(p *TablePolicy, pk, set map[string]interface{}) Statement {
	args := pgx.NamedArgs{}

	setKeys := make([]string, 0, len(set))
	for k := range set {
		setKeys = append(setKeys, normalizeIdent(k))
	}
	sort.Strings(setKeys)

	assignments := make([]string, 0, len(setKeys))
	for _, key := range setKeys {
		col, _ := p.Column(key)
		if col.Type == TypeLargeText {
			assignments = append(assignments, fmt.Sprintf("%s = %s", col.Ident.Quoted(), chunkedLiteral(set[key])))
			continue
		}
		bind := "set_" + bindName(key)
		args[bind] = set[key]
		assignments = append(assignments, fmt.Sprintf("%s = @%s", col.Ident.Quoted(), bind))
	}

	predicates, pkArgs := pkPredicates(p, pk)
	for k, v := range pkArgs {
		args[k] = v
	}

	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		p.Name.Quoted(),
		strings.Join(assignments, ", "),
		strings.Join(predicates, " AND "),
	)
	return Statement{SQL: sql, Args: args}
}

// pkPredicates builds `col = @pk_col` predicates over every configured
// primary key column.
func pkPredicates(p *TablePolicy, pk map[string]interface{}) ([]string, pgx.NamedArgs) {
	byKey := make(map[string]interface{}, len(pk))
	for k, v := range pk {
		byKey[normalizeIdent(k)] = v
	}

	predicates := make([]string, 0, len(p.PK))
	args := pgx.NamedArgs{}
	for _, key := range p.PK {
		col, _ := p.Column(key)
		bind := "pk_" + bindName(key)
		args[bind] = byKey[key]
		predicates = append(predicates, fmt.Sprintf("%s = @%s", col.Ident.Quoted(), bind))
	}
	return predicates, args
}

// selectList renders the table's full column list in catalog order.
func selectList(p *TablePolicy) string {
	cols := make([]string, 0, len(p.ordered))
	for _, key := range p.ordered {
		col := p.columns[key]
		cols = append(cols, col.Ident.Quoted())
	}
	return strings.Join(cols, ", ")
}

// chunkedLiteral renders a large-text value as a concatenation of quoted
// literal chunks, single quotes doubled. Nil and empty values render as an
// empty string literal, never a bind. Non-string scalars (a JSON number or
// boolean decoded from a patch body) render their textual form.
func chunkedLiteral(v interface{}) string {
	if v == nil {
		return "''"
	}
	s, ok := v.(string)
	if !ok {
		s = fmt.Sprint(v)
	}
	if s == "" {
		return "''"
	}

	runes := []rune(s)
	var parts []string
	for start := 0; start < len(runes); start += largeTextChunkSize {
		end := start + largeTextChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunk := strings.ReplaceAll(string(runes[start:end]), "'", "''")
		parts = append(parts, "'"+chunk+"'")
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return "(" + strings.Join(parts, " || ") + ")"
}
