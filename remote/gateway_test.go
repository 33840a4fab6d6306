package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"capstation/deviation"
	"capstation/store"
)

type fakeApplier struct {
	mu        sync.Mutex
	snapshots []Snapshot
	logs      []store.LogEntry
	presets   []store.ProductPreset
	machines  [][]store.Machine
	labels    []map[string]string
}

func (f *fakeApplier) ApplySnapshot(snap Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots = append(f.snapshots, snap)
}

func (f *fakeApplier) ApplyLog(entry store.LogEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, entry)
}

func (f *fakeApplier) ApplyPreset(p store.ProductPreset) store.ProductPreset {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p.ID == "" {
		p.ID = "assigned-id"
	}
	f.presets = append(f.presets, p)
	return p
}

func (f *fakeApplier) ApplyMachines(m []store.Machine) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.machines = append(f.machines, m)
}

func (f *fakeApplier) ApplyLabels(l map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.labels = append(f.labels, l)
}

func (f *fakeApplier) ApplyScanConfigs([]store.ScanConfig) {}
func (f *fakeApplier) ApplyAppConfig(store.AppConfig)      {}

func (f *fakeApplier) snapshotCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.snapshots)
}

type fakeEmitter struct {
	mu        sync.Mutex
	started   int
	completed int
	failures  []string
	submitted []store.LogEntry
}

func (f *fakeEmitter) EmitSyncStarted() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
}

func (f *fakeEmitter) EmitSyncCompleted() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed++
}

func (f *fakeEmitter) EmitSyncFailed(msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, msg)
}

func (f *fakeEmitter) EmitLogSubmitted(e store.LogEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, e)
}

// syncServer counts sync reads and records write bodies.
type syncServer struct {
	mu     sync.Mutex
	reads  int
	writes []string
	block  chan struct{} // when set, sync reads wait on it
}

func (s *syncServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "POST" {
			s.mu.Lock()
			s.writes = append(s.writes, r.Method)
			s.mu.Unlock()
			w.Write([]byte(`ok`))
			return
		}
		if s.block != nil {
			<-s.block
		}
		s.mu.Lock()
		s.reads++
		s.mu.Unlock()
		w.Write([]byte(`{"machines":[{"id":"m1","name":"Coater"}]}`))
	}
}

func (s *syncServer) readCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

func TestRefreshAppliesSnapshot(t *testing.T) {
	ss := &syncServer{}
	srv := httptest.NewServer(ss.handler())
	defer srv.Close()

	applier := &fakeApplier{}
	emitter := &fakeEmitter{}
	g := NewGateway(NewClient(srv.URL), applier, emitter)

	if err := g.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if applier.snapshotCount() != 1 {
		t.Fatalf("snapshots applied = %d, want 1", applier.snapshotCount())
	}
	snap := applier.snapshots[0]
	if snap.Machines == nil || (*snap.Machines)[0].ID != "m1" {
		t.Errorf("snapshot machines = %v", snap.Machines)
	}
	if emitter.started != 1 || emitter.completed != 1 {
		t.Errorf("events: started=%d completed=%d", emitter.started, emitter.completed)
	}
}

func TestRefreshSingleFlight(t *testing.T) {
	ss := &syncServer{block: make(chan struct{})}
	srv := httptest.NewServer(ss.handler())
	defer srv.Close()

	applier := &fakeApplier{}
	g := NewGateway(NewClient(srv.URL), applier, &fakeEmitter{})

	done := make(chan error, 1)
	go func() { done <- g.Refresh(context.Background()) }()

	// Wait until the first read is in flight.
	deadline := time.Now().Add(2 * time.Second)
	for !g.Refreshing() {
		if time.Now().After(deadline) {
			t.Fatal("first refresh never started")
		}
		time.Sleep(time.Millisecond)
	}

	// Suppressed trigger returns immediately with no error and no read.
	if err := g.Refresh(context.Background()); err != nil {
		t.Fatalf("suppressed refresh: %v", err)
	}

	close(ss.block)
	if err := <-done; err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	if got := ss.readCount(); got != 1 {
		t.Errorf("reads = %d, want 1", got)
	}
	if applier.snapshotCount() != 1 {
		t.Errorf("snapshots applied = %d, want 1", applier.snapshotCount())
	}
}

func TestRefreshFailureKeepsCaches(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	applier := &fakeApplier{}
	emitter := &fakeEmitter{}
	g := NewGateway(NewClient(srv.URL), applier, emitter)

	if err := g.Refresh(context.Background()); err == nil {
		t.Fatal("expected refresh error")
	}
	if applier.snapshotCount() != 0 {
		t.Error("failed refresh must not touch caches")
	}
	if len(emitter.failures) != 1 {
		t.Errorf("failures = %v", emitter.failures)
	}
}

func validEntry() store.LogEntry {
	return store.LogEntry{
		Timestamp:   "31/08/26 10:15:00",
		MachineID:   "m1",
		MachineName: "Coater",
		Product:     "PET-75",
		Structure:   "PET/ALU/PE",
		Fields:      deviation.FieldMap{"speed": 120},
	}
}

func TestSubmitLogValidation(t *testing.T) {
	// No server: validation must reject before any network call.
	g := NewGateway(NewClient("http://127.0.0.1:0"), &fakeApplier{}, &fakeEmitter{})

	cases := []struct {
		name   string
		mutate func(*store.LogEntry)
	}{
		{"missing machine", func(e *store.LogEntry) { e.MachineID = "" }},
		{"missing product", func(e *store.LogEntry) { e.Product = "" }},
		{"missing structure", func(e *store.LogEntry) { e.Structure = "" }},
		{"no fields", func(e *store.LogEntry) { e.Fields = nil }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			entry := validEntry()
			tc.mutate(&entry)
			_, err := g.SubmitLog(context.Background(), entry)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
		})
	}
}

func TestSubmitLogAppliesThenReconciles(t *testing.T) {
	ss := &syncServer{}
	srv := httptest.NewServer(ss.handler())
	defer srv.Close()

	applier := &fakeApplier{}
	emitter := &fakeEmitter{}
	g := NewGateway(NewClient(srv.URL), applier, emitter)

	res, err := g.SubmitLog(context.Background(), validEntry())
	if err != nil {
		t.Fatalf("SubmitLog: %v", err)
	}
	if !res.Applied || res.RemoteConfirmed != ConfirmUnknown {
		t.Errorf("result = %+v", res)
	}
	if len(applier.logs) != 1 || applier.logs[0].Product != "PET-75" {
		t.Errorf("logs = %+v", applier.logs)
	}
	if len(emitter.submitted) != 1 {
		t.Errorf("submitted events = %d", len(emitter.submitted))
	}

	// The reconciling read runs in the background after dispatch.
	deadline := time.Now().Add(2 * time.Second)
	for ss.readCount() < 1 {
		if time.Now().After(deadline) {
			t.Fatal("reconciling read never arrived")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSubmitLogPushFailureKeepsLocalEntry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	applier := &fakeApplier{}
	g := NewGateway(NewClient(srv.URL), applier, &fakeEmitter{})

	res, err := g.SubmitLog(context.Background(), validEntry())
	if err == nil {
		t.Fatal("expected transport error")
	}
	if !res.Applied {
		t.Error("transport failure must not roll back the local entry")
	}
	if len(applier.logs) != 1 {
		t.Errorf("logs = %d, want 1", len(applier.logs))
	}
}

func TestSaveStandardUsesAssignedID(t *testing.T) {
	ss := &syncServer{}
	srv := httptest.NewServer(ss.handler())
	defer srv.Close()

	applier := &fakeApplier{}
	g := NewGateway(NewClient(srv.URL), applier, &fakeEmitter{})

	applied, res, err := g.SaveStandard(context.Background(), store.ProductPreset{
		ProductName: "PET-75",
		Structure:   "PET/ALU/PE",
	})
	if err != nil {
		t.Fatalf("SaveStandard: %v", err)
	}
	if applied.ID != "assigned-id" {
		t.Errorf("ID = %q, want the locally assigned id", applied.ID)
	}
	if !res.Applied {
		t.Errorf("result = %+v", res)
	}
}

func TestSaveMachinesOptimistic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	applier := &fakeApplier{}
	g := NewGateway(NewClient(srv.URL), applier, &fakeEmitter{})

	machines := []store.Machine{{ID: "m1", Name: "Coater"}}
	res, err := g.SaveMachines(context.Background(), machines)
	if err == nil {
		t.Fatal("expected transport error")
	}
	if !res.Applied || len(applier.machines) != 1 {
		t.Error("local apply must precede and survive the failed push")
	}
}
