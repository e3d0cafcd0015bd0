package engine

// codec.go converts values between their wire representation and native
// column types. It has to cope with an open-ended type universe with no
// per-table schema: temporal bind values arrive as strings in whatever
// shape the client produced, and result values arrive as whatever the
// driver hands back. Binding is best-effort: a temporal string that no
// strategy can parse is passed through unconverted and a warning recorded;
// the database rejects genuinely malformed values at execution time.

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// temporalLayout is a single stateless try-parse strategy.
type temporalLayout struct {
	name   string
	layout string
}

// temporalLayouts is the ordered strategy list for temporal bind values.
// First success wins.
var temporalLayouts = []temporalLayout{
	{"offset date-time", time.RFC3339Nano},
	{"offset date-time (seconds)", time.RFC3339},
	{"local date-time", "2006-01-02T15:04:05.999999999"},
	{"local date-time (seconds)", "2006-01-02T15:04:05"},
	{"local date", "2006-01-02"},
	{"space-separated date-time", "2006-01-02 15:04:05.999"},
	{"space-separated date-time (seconds)", "2006-01-02 15:04:05"},
}

// parseTemporal runs the ordered strategy list over a wire string.
func parseTemporal(s string) (time.Time, bool) {
	for _, strat := range temporalLayouts {
		if t, err := time.Parse(strat.layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// BindWarning records a best-effort conversion that fell back to the raw
// wire value.
type BindWarning struct {
	Column string
	Value  string
}

func (w BindWarning) String() string {
	return fmt.Sprintf("column %s: could not parse %q as a temporal value, passing through unconverted", w.Column, w.Value)
}

// bindValue converts a wire value for binding against the target column.
// Only date/timestamp targets are converted; everything else passes
// through and lets the driver negotiate the type. A nil warning means the
// conversion was clean.
func bindValue(col ColumnDescriptor, v interface{}) (interface{}, *BindWarning) {
	if v == nil {
		return nil, nil
	}
	switch col.Type {
	case TypeDate, TypeTimestamp:
		s, ok := v.(string)
		if !ok {
			return v, nil
		}
		if t, ok := parseTemporal(s); ok {
			return t, nil
		}
		return v, &BindWarning{Column: col.Key, Value: s}
	default:
		return v, nil
	}
}

// normalizeValue converts a driver result value to its wire shape: native
// and pgtype temporal wrappers become ISO-8601 strings, numeric wrappers
// become plain strings, everything else passes through unchanged.
func normalizeValue(col ColumnDescriptor, v interface{}) interface{} {
	switch tv := v.(type) {
	case time.Time:
		return formatTemporal(col, tv)
	case pgtype.Date:
		if !tv.Valid {
			return nil
		}
		return tv.Time.Format("2006-01-02")
	case pgtype.Timestamp:
		if !tv.Valid {
			return nil
		}
		return formatTemporal(col, tv.Time)
	case pgtype.Timestamptz:
		if !tv.Valid {
			return nil
		}
		return formatTemporal(col, tv.Time)
	case pgtype.Numeric:
		if !tv.Valid {
			return nil
		}
		if out, err := tv.Value(); err == nil {
			return out
		}
		return v
	case [16]byte:
		// Raw uuid bytes from the driver; render canonically.
		return fmt.Sprintf("%x-%x-%x-%x-%x", tv[0:4], tv[4:6], tv[6:8], tv[8:10], tv[10:16])
	default:
		return v
	}
}

// formatTemporal renders a time per the column's type family: a bare date
// for date columns, an ISO-8601 date-time otherwise.
func formatTemporal(col ColumnDescriptor, t time.Time) string {
	if col.Type == TypeDate {
		return t.Format("2006-01-02")
	}
	return t.Format(time.RFC3339Nano)
}

// normalizeRow maps one result row to uppercase column-name keys so callers
// get a stable contract independent of driver casing behavior. values must
// be in catalog column order, as produced by the builders' select list.
func normalizeRow(p *TablePolicy, values []interface{}) Row {
	row := make(Row, len(values))
	for i, key := range p.ordered {
		if i >= len(values) {
			break
		}
		row[key] = normalizeValue(p.columns[key], values[i])
	}
	return row
}
