package engine

// fakes_test.go provides in-memory stand-ins for the database interfaces.
// No SQL runs in these tests; assertions inspect the captured statement
// text and named arguments instead.

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// capturedCall is one statement handed to a fake.
type capturedCall struct {
	sql  string
	args pgx.NamedArgs
}

func capture(sql string, arguments []interface{}) capturedCall {
	c := capturedCall{sql: sql}
	if len(arguments) == 1 {
		if na, ok := arguments[0].(pgx.NamedArgs); ok {
			c.args = na
		}
	}
	return c
}

// fakeRegistry implements Allowlist.
type fakeRegistry struct {
	allowed map[string][]string // SCHEMA.TABLE -> pk
}

func (r *fakeRegistry) key(schema, table string) string {
	return normalizeIdent(schema) + "." + normalizeIdent(table)
}

func (r *fakeRegistry) IsTableAllowed(schema, table string) bool {
	_, ok := r.allowed[r.key(schema, table)]
	return ok
}

func (r *fakeRegistry) PKColumns(schema, table string) []string {
	return r.allowed[r.key(schema, table)]
}

// fakeRows implements pgx.Rows over a fixed value grid.
type fakeRows struct {
	values [][]interface{}
	pos    int
	err    error
	closed bool
}

func (r *fakeRows) Close()                                       { r.closed = true }
func (r *fakeRows) Err() error                                   { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.values) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Values() ([]interface{}, error) {
	return r.values[r.pos-1], nil
}

func (r *fakeRows) Scan(dest ...interface{}) error {
	row := r.values[r.pos-1]
	if len(dest) != len(row) {
		return fmt.Errorf("scan: %d destinations for %d values", len(dest), len(row))
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			if row[i] == nil {
				*p = ""
			} else {
				*p = row[i].(string)
			}
		case *int64:
			*p = row[i].(int64)
		case *time.Time:
			*p = row[i].(time.Time)
		case *[]byte:
			if row[i] == nil {
				*p = nil
			} else {
				*p = row[i].([]byte)
			}
		default:
			return fmt.Errorf("scan: unsupported destination %T", d)
		}
	}
	return nil
}

// fakeDB implements DB. Query responses are served in FIFO order from
// queued result sets; an empty queue yields an empty result set.
type fakeDB struct {
	calls    []capturedCall
	results  [][][]interface{}
	queryErr error
	execErr  error
	beginErr error
	tx       *fakeTx
}

func (db *fakeDB) enqueue(rows [][]interface{}) {
	db.results = append(db.results, rows)
}

func (db *fakeDB) nextRows() *fakeRows {
	if len(db.results) == 0 {
		return &fakeRows{}
	}
	rows := db.results[0]
	db.results = db.results[1:]
	return &fakeRows{values: rows}
}

func (db *fakeDB) Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error) {
	db.calls = append(db.calls, capture(sql, arguments))
	if db.execErr != nil {
		return pgconn.CommandTag{}, db.execErr
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (db *fakeDB) Query(ctx context.Context, sql string, arguments ...interface{}) (pgx.Rows, error) {
	db.calls = append(db.calls, capture(sql, arguments))
	if db.queryErr != nil {
		return nil, db.queryErr
	}
	return db.nextRows(), nil
}

func (db *fakeDB) QueryRow(ctx context.Context, sql string, arguments ...interface{}) pgx.Row {
	panic("QueryRow not used")
}

func (db *fakeDB) Begin(ctx context.Context) (pgx.Tx, error) {
	if db.beginErr != nil {
		return nil, db.beginErr
	}
	if db.tx == nil {
		db.tx = &fakeTx{}
	}
	return db.tx, nil
}

// fakeTx implements pgx.Tx and records the transaction outcome.
type fakeTx struct {
	calls      []capturedCall
	results    [][][]interface{}
	execErr    error
	queryErr   error
	commitErr  error
	committed  bool
	rolledBack bool
	execTag    string
}

func (tx *fakeTx) enqueue(rows [][]interface{}) {
	tx.results = append(tx.results, rows)
}

func (tx *fakeTx) Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error) {
	tx.calls = append(tx.calls, capture(sql, arguments))
	if tx.execErr != nil {
		return pgconn.CommandTag{}, tx.execErr
	}
	tag := tx.execTag
	if tag == "" {
		tag = "UPDATE 1"
	}
	return pgconn.NewCommandTag(tag), nil
}

func (tx *fakeTx) Query(ctx context.Context, sql string, arguments ...interface{}) (pgx.Rows, error) {
	tx.calls = append(tx.calls, capture(sql, arguments))
	if tx.queryErr != nil {
		return nil, tx.queryErr
	}
	if len(tx.results) == 0 {
		return &fakeRows{}, nil
	}
	rows := tx.results[0]
	tx.results = tx.results[1:]
	return &fakeRows{values: rows}, nil
}

func (tx *fakeTx) Commit(ctx context.Context) error {
	if tx.commitErr != nil {
		return tx.commitErr
	}
	tx.committed = true
	return nil
}

func (tx *fakeTx) Rollback(ctx context.Context) error {
	if !tx.committed {
		tx.rolledBack = true
	}
	return nil
}

func (tx *fakeTx) Begin(ctx context.Context) (pgx.Tx, error) {
	return nil, errors.New("nested transactions not supported")
}

func (tx *fakeTx) QueryRow(ctx context.Context, sql string, arguments ...interface{}) pgx.Row {
	panic("QueryRow not used")
}

func (tx *fakeTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	panic("CopyFrom not used")
}

func (tx *fakeTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	panic("SendBatch not used")
}

func (tx *fakeTx) LargeObjects() pgx.LargeObjects {
	panic("LargeObjects not used")
}

func (tx *fakeTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	panic("Prepare not used")
}

func (tx *fakeTx) Conn() *pgx.Conn { return nil }

// catalogRow builds one information_schema row for the fakes.
func catalogRow(schema, table, column, dataType string, nullable bool) []interface{} {
	n := "NO"
	if nullable {
		n = "YES"
	}
	return []interface{}{schema, table, column, dataType, n}
}

// testCatalog is the standard column set used across the engine tests:
// a single numeric pk with a mix of type families around it.
func testCatalog() [][]interface{} {
	return [][]interface{}{
		catalogRow("APP", "CASES", "CASE_ID", "numeric", false),
		catalogRow("APP", "CASES", "TITLE", "character varying", true),
		catalogRow("APP", "CASES", "NOTES", "text", true),
		catalogRow("APP", "CASES", "OPENED_ON", "date", true),
		catalogRow("APP", "CASES", "UPDATED_AT", "timestamp without time zone", true),
		catalogRow("APP", "CASES", "ACTIVE", "boolean", true),
	}
}

// newTestValidator wires a validator over a fakeDB preloaded with the
// standard catalog.
func newTestValidator(db *fakeDB) *MetadataValidator {
	reg := &fakeRegistry{allowed: map[string][]string{
		"APP.CASES": {"CASE_ID"},
	}}
	db.enqueue(testCatalog())
	return NewMetadataValidator(db, reg)
}
