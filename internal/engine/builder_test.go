package engine

import (
	"strings"
	"testing"
)

// ----------------------------------------------------------------------------
// buildSelect
// ----------------------------------------------------------------------------

func TestBuildSelect_NoFilters(t *testing.T) {
	p := mustPolicy(t)

	stmt, err := buildSelect(p, nil, nil, 50)
	if err != nil {
		t.Fatalf("buildSelect() error = %v", err)
	}

	if !strings.Contains(stmt.SQL, `FROM "APP"."CASES"`) {
		t.Errorf("SQL missing quoted table: %s", stmt.SQL)
	}
	if !strings.Contains(stmt.SQL, "WHERE 1 = 1") {
		t.Errorf("zero filters should produce an always-true predicate: %s", stmt.SQL)
	}
	if !strings.Contains(stmt.SQL, "LIMIT @limit_rows") {
		t.Errorf("SQL missing limit: %s", stmt.SQL)
	}
	if got := stmt.Args["limit_rows"]; got != 50 {
		t.Errorf("limit_rows = %v, want 50", got)
	}
}

func TestBuildSelect_OperatorMapping(t *testing.T) {
	p := mustPolicy(t)

	tests := []struct {
		name    string
		op      FilterOperator
		wantSQL string
	}{
		{"equals", OpEquals, `"TITLE" = @f0`},
		{"greater", OpGreater, `"TITLE" > @f0`},
		{"greater or equal", OpGreaterEq, `"TITLE" >= @f0`},
		{"less", OpLess, `"TITLE" < @f0`},
		{"less or equal", OpLessEq, `"TITLE" <= @f0`},
		{"contains", OpContains, `"TITLE" LIKE '%' || @f0 || '%'`},
		{"starts with", OpStartsWith, `"TITLE" LIKE @f0 || '%'`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filters := []Filter{{Column: "title", Operator: tt.op, Value: "x"}}
			stmt, err := buildSelect(p, filters, []interface{}{"x"}, 10)
			if err != nil {
				t.Fatalf("buildSelect() error = %v", err)
			}
			if !strings.Contains(stmt.SQL, tt.wantSQL) {
				t.Errorf("SQL = %s, want fragment %s", stmt.SQL, tt.wantSQL)
			}
			if got := stmt.Args["f0"]; got != "x" {
				t.Errorf("f0 = %v, want x", got)
			}
		})
	}
}

func TestBuildSelect_MultipleFiltersAnded(t *testing.T) {
	p := mustPolicy(t)

	filters := []Filter{
		{Column: "TITLE", Operator: OpEquals, Value: "a"},
		{Column: "ACTIVE", Operator: OpEquals, Value: "true"},
	}
	stmt, err := buildSelect(p, filters, []interface{}{"a", "true"}, 10)
	if err != nil {
		t.Fatalf("buildSelect() error = %v", err)
	}

	if !strings.Contains(stmt.SQL, `"TITLE" = @f0 AND "ACTIVE" = @f1`) {
		t.Errorf("filters not ANDed in order: %s", stmt.SQL)
	}
	if stmt.Args["f0"] != "a" || stmt.Args["f1"] != "true" {
		t.Errorf("filter binds wrong: %v", stmt.Args)
	}
}

func TestBuildSelect_LimitClamped(t *testing.T) {
	p := mustPolicy(t)

	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{"below minimum", 0, MinQueryLimit},
		{"negative", -5, MinQueryLimit},
		{"in range", 100, 100},
		{"at maximum", MaxQueryLimit, MaxQueryLimit},
		{"above maximum", 5000, MaxQueryLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt, err := buildSelect(p, nil, nil, tt.limit)
			if err != nil {
				t.Fatalf("buildSelect() error = %v", err)
			}
			if got := stmt.Args["limit_rows"]; got != tt.want {
				t.Errorf("limit_rows = %v, want %d", got, tt.want)
			}
		})
	}
}

func TestBuildSelect_SelectListInCatalogOrder(t *testing.T) {
	p := mustPolicy(t)

	stmt, err := buildSelect(p, nil, nil, 10)
	if err != nil {
		t.Fatalf("buildSelect() error = %v", err)
	}

	want := `SELECT "CASE_ID", "TITLE", "NOTES", "OPENED_ON", "UPDATED_AT", "ACTIVE" FROM`
	if !strings.HasPrefix(stmt.SQL, want) {
		t.Errorf("select list not in catalog order:\n got: %s\nwant prefix: %s", stmt.SQL, want)
	}
}

// ----------------------------------------------------------------------------
// buildSelectByPK / buildUpdateByPK
// ----------------------------------------------------------------------------

func TestBuildSelectByPK(t *testing.T) {
	p := mustPolicy(t)

	stmt := buildSelectByPK(p, map[string]interface{}{"CASE_ID": int64(7)})
	if !strings.Contains(stmt.SQL, `WHERE "CASE_ID" = @pk_case_id`) {
		t.Errorf("SQL = %s", stmt.SQL)
	}
	if got := stmt.Args["pk_case_id"]; got != int64(7) {
		t.Errorf("pk_case_id = %v, want 7", got)
	}
}

func TestBuildUpdateByPK_BindNamespacesDisjoint(t *testing.T) {
	p := mustPolicy(t)

	stmt := buildUpdateByPK(p,
		map[string]interface{}{"CASE_ID": int64(7)},
		map[string]interface{}{"TITLE": "new", "ACTIVE": true},
	)

	if !strings.Contains(stmt.SQL, `"ACTIVE" = @set_active, "TITLE" = @set_title`) {
		t.Errorf("assignments not sorted/prefixed: %s", stmt.SQL)
	}
	if !strings.Contains(stmt.SQL, `WHERE "CASE_ID" = @pk_case_id`) {
		t.Errorf("pk predicate missing: %s", stmt.SQL)
	}
	if stmt.Args["set_title"] != "new" || stmt.Args["set_active"] != true {
		t.Errorf("set binds wrong: %v", stmt.Args)
	}
	if stmt.Args["pk_case_id"] != int64(7) {
		t.Errorf("pk bind wrong: %v", stmt.Args)
	}
}

func TestBuildUpdateByPK_LargeTextRenderedAsLiteral(t *testing.T) {
	p := mustPolicy(t)

	stmt := buildUpdateByPK(p,
		map[string]interface{}{"CASE_ID": int64(1)},
		map[string]interface{}{"NOTES": "it's done"},
	)

	if !strings.Contains(stmt.SQL, `"NOTES" = 'it''s done'`) {
		t.Errorf("large-text value should be a quoted literal with quotes doubled: %s", stmt.SQL)
	}
	for k := range stmt.Args {
		if strings.HasPrefix(k, "set_") {
			t.Errorf("large-text column must not produce a bind, got %s", k)
		}
	}
}

func TestBuildUpdateByPK_NumericLargeText(t *testing.T) {
	p := mustPolicy(t)

	stmt := buildUpdateByPK(p,
		map[string]interface{}{"CASE_ID": int64(1)},
		map[string]interface{}{"NOTES": float64(123)},
	)

	if !strings.Contains(stmt.SQL, `"NOTES" = '123'`) {
		t.Errorf("numeric large-text value should render its textual form, not an empty literal: %s", stmt.SQL)
	}
}

func TestBuildUpdateByPK_NullLargeText(t *testing.T) {
	p := mustPolicy(t)

	stmt := buildUpdateByPK(p,
		map[string]interface{}{"CASE_ID": int64(1)},
		map[string]interface{}{"NOTES": nil},
	)

	if !strings.Contains(stmt.SQL, `"NOTES" = ''`) {
		t.Errorf("nil large-text should render an empty literal: %s", stmt.SQL)
	}
}

// ----------------------------------------------------------------------------
// chunkedLiteral
// ----------------------------------------------------------------------------

func TestChunkedLiteral(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantChunks int
	}{
		{"empty", "", 1},
		{"short", "hello", 1},
		{"exactly one chunk", strings.Repeat("a", largeTextChunkSize), 1},
		{"one over", strings.Repeat("a", largeTextChunkSize+1), 2},
		{"three chunks", strings.Repeat("a", largeTextChunkSize*2+10), 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := chunkedLiteral(tt.input)
			chunks := strings.Count(got, "||") + 1
			if chunks != tt.wantChunks {
				t.Errorf("chunk count = %d, want %d", chunks, tt.wantChunks)
			}
			if tt.wantChunks > 1 {
				if !strings.HasPrefix(got, "('") || !strings.HasSuffix(got, "')") {
					t.Errorf("multi-chunk literal should be parenthesized: %.40s...", got)
				}
			}
		})
	}
}

func TestChunkedLiteral_NonString(t *testing.T) {
	tests := []struct {
		name  string
		input interface{}
		want  string
	}{
		{"nil", nil, "''"},
		{"json number", float64(123), "'123'"},
		{"integer", int64(-7), "'-7'"},
		{"boolean", true, "'true'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := chunkedLiteral(tt.input); got != tt.want {
				t.Errorf("chunkedLiteral(%v) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestChunkedLiteral_QuotesDoubledAcrossChunks(t *testing.T) {
	// Fill a chunk so a quote lands at a boundary
	input := strings.Repeat("'", largeTextChunkSize+5)
	got := chunkedLiteral(input)

	// Every input quote must appear doubled
	wantDoubled := strings.Count(got, "''")
	if wantDoubled < largeTextChunkSize+5 {
		t.Errorf("doubled quote count = %d, want >= %d", wantDoubled, largeTextChunkSize+5)
	}
}

func TestChunkedLiteral_MultibyteSafe(t *testing.T) {
	// Chunking is by rune, so a multibyte character never splits
	input := strings.Repeat("é", largeTextChunkSize+1) // é
	got := chunkedLiteral(input)

	if !strings.Contains(got, "||") {
		t.Fatalf("expected two chunks for %d runes", largeTextChunkSize+1)
	}
	for _, part := range strings.Split(got, "||") {
		part = strings.Trim(strings.TrimSpace(part), "()'")
		if strings.ContainsRune(part, '�') {
			t.Errorf("chunk split a multibyte character")
		}
	}
}

// ----------------------------------------------------------------------------
// validateOperator
// ----------------------------------------------------------------------------

func TestValidateOperator(t *testing.T) {
	for _, op := range []FilterOperator{OpEquals, OpContains, OpStartsWith, OpGreater, OpGreaterEq, OpLess, OpLessEq} {
		if err := validateOperator(op); err != nil {
			t.Errorf("validateOperator(%q) = %v, want nil", op, err)
		}
	}

	for _, op := range []FilterOperator{"", "neq", "like", "EQ", "in"} {
		err := validateOperator(op)
		if !IsKind(err, KindInvalidOperator) {
			t.Errorf("validateOperator(%q) kind = %q, want invalid_operator", op, KindOf(err))
		}
	}
}
