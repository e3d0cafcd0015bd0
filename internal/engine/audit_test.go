package engine

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestPGAuditSink_Record(t *testing.T) {
	db := &fakeDB{}
	sink := NewPGAuditSink(db)

	ev := newAuditEvent(AuditUpdated, "APP", "CASES")
	ev.PK = map[string]interface{}{"CASE_ID": float64(7)}
	ev.Set = map[string]interface{}{"TITLE": "x"}
	ev.Reason = "test"
	ev.Updated = 1

	if err := sink.Record(context.Background(), ev); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	if len(db.calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(db.calls))
	}
	call := db.calls[0]
	if !strings.HasPrefix(call.sql, "INSERT INTO row_audit_events") {
		t.Errorf("sql = %s", call.sql)
	}
	if call.args["status"] != AuditUpdated {
		t.Errorf("status bind = %v", call.args["status"])
	}
	if call.args["schema_name"] != "APP" || call.args["table_name"] != "CASES" {
		t.Errorf("table binds = %v / %v", call.args["schema_name"], call.args["table_name"])
	}
	pkJSON, _ := call.args["pk"].([]byte)
	if !strings.Contains(string(pkJSON), "CASE_ID") {
		t.Errorf("pk jsonb = %s", pkJSON)
	}
}

func TestPGAuditSink_Recent(t *testing.T) {
	db := &fakeDB{}
	now := time.Now().UTC().Truncate(time.Second)
	db.enqueue([][]interface{}{
		{"id-1", now, AuditUpdated, "APP", "CASES",
			[]byte(`{"CASE_ID":7}`), []byte(`{"TITLE":"x"}`), "reason", int64(1), ""},
		{"id-2", now.Add(-time.Minute), AuditAttempt, "APP", "CASES",
			nil, nil, "", int64(0), ""},
	})

	sink := NewPGAuditSink(db)
	events, err := sink.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if events[0].ID != "id-1" || events[0].Status != AuditUpdated {
		t.Errorf("first event = %+v", events[0])
	}
	if events[0].PK["CASE_ID"] != float64(7) {
		t.Errorf("pk not decoded: %v", events[0].PK)
	}
	if events[1].PK != nil {
		t.Errorf("nil pk should stay nil, got %v", events[1].PK)
	}

	if got := db.calls[0].args["limit_rows"]; got != 10 {
		t.Errorf("limit_rows = %v, want 10", got)
	}
}

func TestNewAuditEvent(t *testing.T) {
	ev := newAuditEvent(AuditAttempt, "APP", "CASES")
	if ev.ID == "" {
		t.Error("event has no ID")
	}
	if ev.Timestamp.IsZero() || ev.Timestamp.Location() != time.UTC {
		t.Errorf("timestamp = %v, want non-zero UTC", ev.Timestamp)
	}
	if ev.Status != AuditAttempt || ev.Schema != "APP" || ev.Table != "CASES" {
		t.Errorf("event = %+v", ev)
	}
}
