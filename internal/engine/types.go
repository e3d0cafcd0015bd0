// Package engine provides generic, metadata-driven access to allowlisted
// relational tables. It validates every schema, table, and column identifier
// against both a static allowlist and live database catalog metadata before
// any SQL text is built, so no per-table code is needed and no unvalidated
// identifier can reach a statement.
package engine

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// DB is a DBTX that can also open transactions. Satisfied by *pgxpool.Pool.
type DB interface {
	DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Allowlist is the static registry of tables the engine may touch.
// Both methods compare schema and table case-insensitively.
type Allowlist interface {
	IsTableAllowed(schema, table string) bool
	PKColumns(schema, table string) []string
}

// TypeFamily classifies a column's native type for conversion purposes.
type TypeFamily int

const (
	TypeText TypeFamily = iota
	TypeLargeText
	TypeDate
	TypeTimestamp
	TypeNumeric
	TypeBool
	TypeOther
)

// String returns the wire name of the type family.
func (t TypeFamily) String() string {
	switch t {
	case TypeText:
		return "text"
	case TypeLargeText:
		return "large_text"
	case TypeDate:
		return "date"
	case TypeTimestamp:
		return "timestamp"
	case TypeNumeric:
		return "numeric"
	case TypeBool:
		return "bool"
	default:
		return "other"
	}
}

// ColumnDescriptor describes a single column as discovered from live
// catalog metadata. Immutable once cached.
type ColumnDescriptor struct {
	Ident    Ident      // catalog-cased identifier for SQL rendering
	Key      string     // uppercase name for case-insensitive comparison
	Type     TypeFamily // native type family
	DataType string     // raw catalog type name
	Nullable bool
}

// FilterOperator is a comparison operator for query filters.
// The set is closed; anything else fails InvalidOperator.
type FilterOperator string

const (
	OpEquals     FilterOperator = "eq"
	OpContains   FilterOperator = "contains"
	OpStartsWith FilterOperator = "startsWith"
	OpGreater    FilterOperator = "gt"
	OpGreaterEq  FilterOperator = "gte"
	OpLess       FilterOperator = "lt"
	OpLessEq     FilterOperator = "lte"
)

// Filter is a single column predicate in a query request.
type Filter struct {
	Column   string         `json:"col"`
	Operator FilterOperator `json:"op"`
	Value    string         `json:"value"`
}

// Row is a single result row keyed by uppercase column name.
type Row map[string]interface{}

// QueryResult contains the rows matched by a filtered query.
// Columns is derived from the first result row; empty when no rows matched.
type QueryResult struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// UpdateResult contains the outcome of a patch update: the affected row
// count and the row as re-read inside the same transaction.
type UpdateResult struct {
	Updated int64 `json:"updated"`
	Row     Row   `json:"row"`
}

// ColumnMeta is the wire shape of a column in table metadata.
type ColumnMeta struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// DiffPolicy tells an editing UI which columns to leave out of change
// detection: the primary key (immutable by contract) and type families
// whose values are too large or too volatile to diff cell-by-cell.
type DiffPolicy struct {
	ExcludeColumns []string `json:"excludeColumns"`
	ExcludeTypes   []string `json:"excludeTypes"`
}

// TableMetadata describes an allowlisted table to callers.
type TableMetadata struct {
	Schema     string       `json:"schema"`
	Table      string       `json:"table"`
	PKColumns  []string     `json:"pkColumns"`
	Columns    []ColumnMeta `json:"columns"`
	DiffPolicy DiffPolicy   `json:"diffPolicy"`
}

// Query row limits. Requested limits are clamped into this range,
// never rejected.
const (
	MinQueryLimit = 1
	MaxQueryLimit = 200
)

// clampLimit forces a requested row limit into [MinQueryLimit, MaxQueryLimit].
func clampLimit(limit int) int {
	if limit < MinQueryLimit {
		return MinQueryLimit
	}
	if limit > MaxQueryLimit {
		return MaxQueryLimit
	}
	return limit
}
