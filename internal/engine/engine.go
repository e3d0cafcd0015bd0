package engine

import (
	"context"
	"fmt"
	"log/slog"
)

// Engine orchestrates validation, statement building, and value conversion
// into the five table-access operations. It holds no per-request state;
// the metadata cache inside the validator is the only cross-request state.
type Engine struct {
	db    DB
	meta  *MetadataValidator
	audit AuditSink
}

// New creates an Engine. A nil audit sink disables auditing.
func New(db DB, meta *MetadataValidator, audit AuditSink) *Engine {
	if audit == nil {
		audit = NopAuditSink{}
	}
	return &Engine{db: db, meta: meta, audit: audit}
}

// Metadata returns the engine's metadata validator, exposed so operators
// can clear the column cache after a schema change.
func (e *Engine) Metadata() *MetadataValidator { return e.meta }

// Query runs a filtered SELECT against an allowlisted table. Every filter
// column and operator is validated before any SQL is built; the limit is
// clamped, never rejected. The returned column list comes from the first
// result row and is empty when nothing matched.
func (e *Engine) Query(ctx context.Context, schema, table string, filters []Filter, limit int) (*QueryResult, error) {
	policy, err := e.meta.TablePolicy(ctx, schema, table)
	if err != nil {
		return nil, err
	}

	cols := make([]string, len(filters))
	for i, f := range filters {
		cols[i] = f.Column
	}
	if err := policy.ValidateColumns(cols); err != nil {
		return nil, err
	}
	for _, f := range filters {
		if err := validateOperator(f.Operator); err != nil {
			return nil, err
		}
	}

	values := make([]interface{}, len(filters))
	for i, f := range filters {
		col, _ := policy.Column(f.Column)
		v, warn := bindValue(col, f.Value)
		if warn != nil {
			slog.Warn("best-effort bind", "table", policy.Key, "warning", warn.String())
		}
		values[i] = v
	}

	stmt, err := buildSelect(policy, filters, values, limit)
	if err != nil {
		return nil, err
	}

	rows, err := e.db.Query(ctx, stmt.SQL, stmt.Args)
	if err != nil {
		return nil, executionFailure(fmt.Sprintf("query %s", policy.Key), err)
	}
	defer rows.Close()

	result := &QueryResult{Columns: []string{}, Rows: []Row{}}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, executionFailure(fmt.Sprintf("read row from %s", policy.Key), err)
		}
		result.Rows = append(result.Rows, normalizeRow(policy, values))
	}
	if err := rows.Err(); err != nil {
		return nil, executionFailure(fmt.Sprintf("iterate rows from %s", policy.Key), err)
	}

	if len(result.Rows) > 0 {
		result.Columns = append(result.Columns, policy.ColumnKeys()...)
	}
	return result, nil
}

// GetByPK fetches a single row by its full primary key. The provided key
// set must equal the configured pk columns exactly. Fails NotFound on zero
// rows.
func (e *Engine) GetByPK(ctx context.Context, schema, table string, pk map[string]interface{}) (Row, error) {
	policy, err := e.meta.TablePolicy(ctx, schema, table)
	if err != nil {
		return nil, err
	}
	if err := policy.ValidatePKKeys(mapKeys(pk)); err != nil {
		return nil, err
	}

	stmt := buildSelectByPK(policy, e.bindPK(policy, pk))
	return e.fetchOne(ctx, e.db, policy, stmt)
}

// ValidatePatch runs every check Update would run, without touching the
// database, and returns the normalized (uppercase-keyed, bind-converted)
// set on success.
func (e *Engine) ValidatePatch(ctx context.Context, schema, table string, pk, set map[string]interface{}) (map[string]interface{}, error) {
	policy, _, err := e.validateWrite(ctx, schema, table, pk, set)
	if err != nil {
		return nil, err
	}
	return e.normalizeSet(policy, set), nil
}

// Update applies a patch to one row inside a single transaction: execute
// the UPDATE, re-select the row by pk in the same transaction, commit.
// A racing concurrent update is therefore observed as fully before or
// fully after, never partially. Every attempt is audited; a validation
// failure after the attempt event records a matching rejected event.
func (e *Engine) Update(ctx context.Context, schema, table string, pk, set map[string]interface{}, reason string) (*UpdateResult, error) {
	attempt := newAuditEvent(AuditAttempt, schema, table)
	attempt.PK = pk
	attempt.Set = set
	attempt.Reason = reason
	e.recordAudit(ctx, attempt)

	policy, normalizedSet, err := e.validateWrite(ctx, schema, table, pk, set)
	if err != nil {
		e.auditOutcome(ctx, attempt, AuditRejected, 0, err)
		return nil, err
	}

	boundPK := e.bindPK(policy, pk)
	stmt := buildUpdateByPK(policy, boundPK, normalizedSet)

	tx, err := e.db.Begin(ctx)
	if err != nil {
		wrapped := executionFailure(fmt.Sprintf("begin transaction for %s", policy.Key), err)
		e.auditOutcome(ctx, attempt, AuditError, 0, wrapped)
		return nil, wrapped
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, stmt.SQL, stmt.Args)
	if err != nil {
		wrapped := executionFailure(fmt.Sprintf("update %s", policy.Key), err)
		e.auditOutcome(ctx, attempt, AuditError, 0, wrapped)
		return nil, wrapped
	}

	row, err := e.fetchOne(ctx, tx, policy, buildSelectByPK(policy, boundPK))
	if err != nil {
		e.auditOutcome(ctx, attempt, AuditRejected, 0, err)
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		wrapped := executionFailure(fmt.Sprintf("commit update of %s", policy.Key), err)
		e.auditOutcome(ctx, attempt, AuditError, 0, wrapped)
		return nil, wrapped
	}

	e.auditOutcome(ctx, attempt, AuditUpdated, tag.RowsAffected(), nil)
	return &UpdateResult{Updated: tag.RowsAffected(), Row: row}, nil
}

// GetMetadata returns the table's configured pk columns, live column
// descriptors, and the diff policy an editing UI should apply.
func (e *Engine) GetMetadata(ctx context.Context, schema, table string) (*TableMetadata, error) {
	policy, err := e.meta.TablePolicy(ctx, schema, table)
	if err != nil {
		return nil, err
	}

	columns := make([]ColumnMeta, 0, len(policy.ordered))
	for _, key := range policy.ordered {
		col := policy.columns[key]
		columns = append(columns, ColumnMeta{
			Name:     col.Key,
			Type:     col.Type.String(),
			Nullable: col.Nullable,
		})
	}

	return &TableMetadata{
		Schema:    policy.Name.Schema.Name(),
		Table:     policy.Name.Table.Name(),
		PKColumns: append([]string(nil), policy.PK...),
		Columns:   columns,
		DiffPolicy: DiffPolicy{
			ExcludeColumns: append([]string(nil), policy.PK...),
			ExcludeTypes:   []string{TypeLargeText.String()},
		},
	}, nil
}

// validateWrite runs the shared write-path validation: table allowed, pk
// key set exact, set columns exist, set disjoint from pk, set non-empty.
// All failures occur before any SQL executes.
func (e *Engine) validateWrite(ctx context.Context, schema, table string, pk, set map[string]interface{}) (*TablePolicy, map[string]interface{}, error) {
	policy, err := e.meta.TablePolicy(ctx, schema, table)
	if err != nil {
		return nil, nil, err
	}
	if err := policy.ValidatePKKeys(mapKeys(pk)); err != nil {
		return nil, nil, err
	}
	if len(set) == 0 {
		return nil, nil, &Error{Kind: KindInvalidColumns, Detail: "set is empty; at least one column is required"}
	}
	setKeys := mapKeys(set)
	if err := policy.ValidateColumns(setKeys); err != nil {
		return nil, nil, err
	}
	if err := policy.ValidateSetNotPK(setKeys); err != nil {
		return nil, nil, err
	}
	return policy, e.normalizeSet(policy, set), nil
}

// normalizeSet uppercases set keys and bind-converts values against their
// target columns.
func (e *Engine) normalizeSet(policy *TablePolicy, set map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(set))
	for k, v := range set {
		col, _ := policy.Column(k)
		bound, warn := bindValue(col, v)
		if warn != nil {
			slog.Warn("best-effort bind", "table", policy.Key, "warning", warn.String())
		}
		out[col.Key] = bound
	}
	return out
}

// bindPK uppercases pk keys and bind-converts values.
func (e *Engine) bindPK(policy *TablePolicy, pk map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(pk))
	for k, v := range pk {
		col, _ := policy.Column(k)
		bound, warn := bindValue(col, v)
		if warn != nil {
			slog.Warn("best-effort bind", "table", policy.Key, "warning", warn.String())
		}
		out[col.Key] = bound
	}
	return out
}

// fetchOne executes a by-pk select and returns the single normalized row,
// or NotFound when the query matches nothing.
func (e *Engine) fetchOne(ctx context.Context, db DBTX, policy *TablePolicy, stmt Statement) (Row, error) {
	rows, err := db.Query(ctx, stmt.SQL, stmt.Args)
	if err != nil {
		return nil, executionFailure(fmt.Sprintf("select %s by pk", policy.Key), err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, executionFailure(fmt.Sprintf("select %s by pk", policy.Key), err)
		}
		return nil, notFound("no row in %s matches the given primary key", policy.Key)
	}
	values, err := rows.Values()
	if err != nil {
		return nil, executionFailure(fmt.Sprintf("read row from %s", policy.Key), err)
	}
	row := normalizeRow(policy, values)
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, executionFailure(fmt.Sprintf("select %s by pk", policy.Key), err)
	}
	return row, nil
}

// recordAudit sends an event to the sink. Sink failures are logged and
// never surfaced to the caller.
func (e *Engine) recordAudit(ctx context.Context, ev AuditEvent) {
	if err := e.audit.Record(ctx, ev); err != nil {
		slog.Error("audit sink failed", "status", ev.Status, "schema", ev.Schema, "table", ev.Table, "error", err)
	}
}

// auditOutcome records the terminal event paired with an earlier attempt.
func (e *Engine) auditOutcome(ctx context.Context, attempt AuditEvent, status string, updated int64, cause error) {
	ev := newAuditEvent(status, attempt.Schema, attempt.Table)
	ev.PK = attempt.PK
	ev.Set = attempt.Set
	ev.Reason = attempt.Reason
	ev.Updated = updated
	if cause != nil {
		ev.Error = cause.Error()
	}
	e.recordAudit(ctx, ev)
}

func mapKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
