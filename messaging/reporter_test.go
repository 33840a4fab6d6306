package messaging

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"capstation/deviation"
	"capstation/engine"
	"capstation/store"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestReporterEnqueuesOnSubmission(t *testing.T) {
	db := testDB(t)
	bus := engine.NewEventBus()
	r := NewReporter(db, "station-7", "capstation/reports")
	r.Attach(bus)

	bus.Emit(engine.Event{Type: engine.EventLogSubmitted, Payload: engine.LogSubmittedEvent{
		Entry: store.LogEntry{
			Timestamp:   "31/08/26 10:15:00",
			MachineID:   "m1",
			MachineName: "Laminator",
			Product:     "PET-75",
			Structure:   "PET/ALU/PE",
			Fields:      deviation.FieldMap{"speed": 120},
			Diff:        deviation.FieldMap{"speed": 5},
		},
	}})

	msgs, err := db.PendingReports(10)
	if err != nil {
		t.Fatalf("PendingReports: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("pending = %d, want 1", len(msgs))
	}
	if msgs[0].Topic != "capstation/reports" || msgs[0].Kind != "measurement.report" {
		t.Errorf("msg = %+v", msgs[0])
	}

	var report MeasurementReport
	if err := json.Unmarshal(msgs[0].Payload, &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.StationID != "station-7" || report.Product != "PET-75" {
		t.Errorf("report = %+v", report)
	}
	if report.Fields["speed"] != 120 || report.Diffs["speed"] != 5 {
		t.Errorf("fields=%v diffs=%v", report.Fields, report.Diffs)
	}
}

func TestReporterIgnoresOtherEvents(t *testing.T) {
	db := testDB(t)
	bus := engine.NewEventBus()
	NewReporter(db, "station-7", "capstation/reports").Attach(bus)

	bus.Emit(engine.Event{Type: engine.EventSyncCompleted})

	msgs, err := db.PendingReports(10)
	if err != nil {
		t.Fatalf("PendingReports: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("pending = %d, want 0", len(msgs))
	}
}
