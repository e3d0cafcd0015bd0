package engine

// metadata.go implements the metadata validator: the single place where
// request-supplied identifiers are checked against the allowlist and live
// catalog metadata, and the only source of Ident values.
//
// Column sets are discovered once per table from information_schema and
// cached for the process lifetime under an uppercase SCHEMA.TABLE key.
// Cached policies are never mutated in place; ClearCache swaps the whole
// map so concurrent readers always observe a complete cache.

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
)

// TablePolicy is the immutable validation state for one allowlisted table:
// its catalog-cased identifiers, configured primary key, and live column
// descriptors.
type TablePolicy struct {
	Name    QualifiedIdent
	Key     string   // uppercase SCHEMA.TABLE
	PK      []string // uppercase configured pk column names
	columns map[string]ColumnDescriptor
	ordered []string // uppercase column keys in catalog ordinal order
}

// Column returns the descriptor for a column, matched case-insensitively.
func (p *TablePolicy) Column(name string) (ColumnDescriptor, bool) {
	d, ok := p.columns[normalizeIdent(name)]
	return d, ok
}

// ColumnKeys returns the uppercase column names in catalog order.
func (p *TablePolicy) ColumnKeys() []string {
	return p.ordered
}

// ValidateColumns fails InvalidColumns naming every requested column that
// does not exist in the live column set. Comparison is case-insensitive.
func (p *TablePolicy) ValidateColumns(requested []string) error {
	var offenders []string
	for _, col := range requested {
		if _, ok := p.columns[normalizeIdent(col)]; !ok {
			offenders = append(offenders, col)
		}
	}
	if len(offenders) > 0 {
		return invalidColumns(offenders)
	}
	return nil
}

// ValidatePKKeys fails PkMismatch unless the provided key set equals the
// configured primary key columns exactly (case-insensitive set equality).
// Missing and extra keys are both failures.
func (p *TablePolicy) ValidatePKKeys(provided []string) error {
	got := make(map[string]bool, len(provided))
	for _, k := range provided {
		got[normalizeIdent(k)] = true
	}
	if len(got) != len(p.PK) {
		return pkMismatch("primary key for %s is (%s), got keys (%s)",
			p.Key, strings.Join(p.PK, ", "), strings.Join(sortedKeys(got), ", "))
	}
	for _, k := range p.PK {
		if !got[k] {
			return pkMismatch("primary key for %s is (%s), got keys (%s)",
				p.Key, strings.Join(p.PK, ", "), strings.Join(sortedKeys(got), ", "))
		}
	}
	return nil
}

// ValidateSetNotPK fails ProtectedColumn if any set key is a configured
// primary key column (case-insensitive).
func (p *TablePolicy) ValidateSetNotPK(setKeys []string) error {
	pk := make(map[string]bool, len(p.PK))
	for _, k := range p.PK {
		pk[k] = true
	}
	var offenders []string
	for _, k := range setKeys {
		if pk[normalizeIdent(k)] {
			offenders = append(offenders, k)
		}
	}
	if len(offenders) > 0 {
		return protectedColumn(offenders)
	}
	return nil
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MetadataValidator enforces the identifier contract: a table must be
// allowlisted AND discoverable in live catalog metadata before the engine
// touches it.
type MetadataValidator struct {
	db  DBTX
	reg Allowlist

	mu    sync.RWMutex
	cache map[string]*TablePolicy
}

// NewMetadataValidator creates a validator backed by the given catalog
// connection and allowlist registry.
func NewMetadataValidator(db DBTX, reg Allowlist) *MetadataValidator {
	return &MetadataValidator{
		db:    db,
		reg:   reg,
		cache: make(map[string]*TablePolicy),
	}
}

const columnCatalogQuery = `SELECT table_schema, table_name, column_name, data_type, is_nullable
FROM information_schema.columns
WHERE upper(table_schema) = @schema AND upper(table_name) = @table
ORDER BY ordinal_position`

// TablePolicy validates (schema, table) and returns its policy. The first
// call per table queries live catalog metadata and caches the result for
// the process lifetime; later calls are cache hits. Fails AccessDenied if
// the table is not allowlisted or has no discoverable columns.
func (v *MetadataValidator) TablePolicy(ctx context.Context, schema, table string) (*TablePolicy, error) {
	if !v.reg.IsTableAllowed(schema, table) {
		return nil, accessDenied("table %s.%s is not allowlisted", schema, table)
	}

	key := normalizeIdent(schema) + "." + normalizeIdent(table)

	v.mu.RLock()
	policy, ok := v.cache[key]
	v.mu.RUnlock()
	if ok {
		return policy, nil
	}

	policy, err := v.loadPolicy(ctx, key, schema, table)
	if err != nil {
		return nil, err
	}

	// First insert wins under concurrency; entries are never replaced.
	v.mu.Lock()
	if existing, ok := v.cache[key]; ok {
		policy = existing
	} else {
		v.cache[key] = policy
	}
	v.mu.Unlock()

	return policy, nil
}

// loadPolicy queries information_schema for the table's live column set.
func (v *MetadataValidator) loadPolicy(ctx context.Context, key, schema, table string) (*TablePolicy, error) {
	rows, err := v.db.Query(ctx, columnCatalogQuery, pgx.NamedArgs{
		"schema": normalizeIdent(schema),
		"table":  normalizeIdent(table),
	})
	if err != nil {
		return nil, executionFailure(fmt.Sprintf("query catalog for %s", key), err)
	}
	defer rows.Close()

	policy := &TablePolicy{
		Key:     key,
		columns: make(map[string]ColumnDescriptor),
	}

	for rows.Next() {
		var schemaName, tableName, columnName, dataType, isNullable string
		if err := rows.Scan(&schemaName, &tableName, &columnName, &dataType, &isNullable); err != nil {
			return nil, executionFailure(fmt.Sprintf("scan catalog row for %s", key), err)
		}
		if policy.Name.Table.Name() == "" {
			policy.Name = QualifiedIdent{Schema: newIdent(schemaName), Table: newIdent(tableName)}
		}
		colKey := normalizeIdent(columnName)
		policy.columns[colKey] = ColumnDescriptor{
			Ident:    newIdent(columnName),
			Key:      colKey,
			Type:     typeFamilyOf(dataType),
			DataType: dataType,
			Nullable: strings.EqualFold(isNullable, "YES"),
		}
		policy.ordered = append(policy.ordered, colKey)
	}
	if err := rows.Err(); err != nil {
		return nil, executionFailure(fmt.Sprintf("read catalog rows for %s", key), err)
	}

	if len(policy.columns) == 0 {
		return nil, accessDenied("table %s is allowlisted but has no discoverable columns", key)
	}

	pk := v.reg.PKColumns(schema, table)
	policy.PK = make([]string, len(pk))
	for i, col := range pk {
		policy.PK[i] = normalizeIdent(col)
	}
	// Config-declared pk columns can drift from the live schema; cross-check
	// against live metadata rather than trusting config alone.
	if err := policy.ValidateColumns(policy.PK); err != nil {
		return nil, accessDenied("configured primary key for %s does not match live schema: %v", key, err)
	}

	return policy, nil
}

// ClearCache atomically replaces the whole policy cache. Used after schema
// changes and in tests; no reader ever observes a half-cleared state.
func (v *MetadataValidator) ClearCache() {
	v.mu.Lock()
	v.cache = make(map[string]*TablePolicy)
	v.mu.Unlock()
}

// typeFamilyOf maps a catalog data type name to its conversion family.
func typeFamilyOf(dataType string) TypeFamily {
	switch strings.ToLower(dataType) {
	case "text":
		return TypeLargeText
	case "character varying", "character", "varchar", "uuid", "name":
		return TypeText
	case "date":
		return TypeDate
	case "timestamp without time zone", "timestamp with time zone":
		return TypeTimestamp
	case "numeric", "integer", "bigint", "smallint", "real", "double precision", "money":
		return TypeNumeric
	case "boolean":
		return TypeBool
	default:
		return TypeOther
	}
}
