package capture

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"capstation/extract"
	"capstation/store"
)

type fakeExtractor struct {
	mu      sync.Mutex
	values  map[string]interface{}
	err     error
	release chan struct{} // when set, Analyze blocks until closed
}

func (f *fakeExtractor) Analyze(ctx context.Context, req extract.Request) (map[string]interface{}, error) {
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.values, nil
}

type recordingEmitter struct {
	mu     sync.Mutex
	states []State
}

func (r *recordingEmitter) EmitSessionChanged(state State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
}

func (r *recordingEmitter) last() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.states) == 0 {
		return State{}
	}
	return r.states[len(r.states)-1]
}

var zone = store.ZoneDefinition{ID: "zone1", Name: "Unwind", Prompt: "read it", Schema: `{"type":"object","properties":{"speed":{"type":"number"}}}`}

func waitForStatus(t *testing.T, m *Manager, zoneID, status string) State {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		st := m.State(zoneID)
		if st.Status == status {
			return st
		}
		select {
		case <-deadline:
			t.Fatalf("zone %s never reached %s (stuck at %s)", zoneID, status, st.Status)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestIdleToReady(t *testing.T) {
	ex := &fakeExtractor{values: map[string]interface{}{"speed": float64(126), "note": "ignored"}}
	m := NewManager(ex, &recordingEmitter{})

	if got := m.State("zone1").Status; got != StatusIdle {
		t.Fatalf("initial status = %s, want idle", got)
	}

	st := m.BeginCapture("zone1", "img-1")
	if st.Status != StatusCapturing || st.ImageRef != "img-1" {
		t.Fatalf("after BeginCapture: %+v", st)
	}

	if err := m.Analyze(context.Background(), zone, "base64data", "vision-lite", "key"); err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	st = waitForStatus(t, m, "zone1", StatusReady)
	want := map[string]float64{"speed": 126}
	if diff := cmp.Diff(want, st.Values); diff != "" {
		t.Errorf("Ready values mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractionFailureEndsInError(t *testing.T) {
	ex := &fakeExtractor{err: &extract.Error{Msg: "image unreadable"}}
	m := NewManager(ex, &recordingEmitter{})

	m.BeginCapture("zone1", "img-1")
	if err := m.Analyze(context.Background(), zone, "x", "m", "k"); err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	st := waitForStatus(t, m, "zone1", StatusError)
	if st.ErrorMessage != "image unreadable" {
		t.Errorf("error message = %q", st.ErrorMessage)
	}
	if len(st.Values) != 0 {
		t.Errorf("failed attempt must leave values unchanged, got %v", st.Values)
	}
}

func TestRecaptureAfterError(t *testing.T) {
	ex := &fakeExtractor{err: &extract.Error{Msg: "boom"}}
	m := NewManager(ex, &recordingEmitter{})

	m.BeginCapture("zone1", "img-1")
	m.Analyze(context.Background(), zone, "x", "m", "k")
	waitForStatus(t, m, "zone1", StatusError)

	ex.mu.Lock()
	ex.err = nil
	ex.values = map[string]interface{}{"speed": float64(120)}
	ex.mu.Unlock()

	m.BeginCapture("zone1", "img-2")
	if st := m.State("zone1"); st.Status != StatusCapturing || st.ErrorMessage != "" {
		t.Fatalf("re-capture should clear the error: %+v", st)
	}
	m.Analyze(context.Background(), zone, "x", "m", "k")
	st := waitForStatus(t, m, "zone1", StatusReady)
	if st.Values["speed"] != 120 {
		t.Errorf("speed = %v, want 120", st.Values["speed"])
	}
}

func TestAnalyzeRequiresCapture(t *testing.T) {
	m := NewManager(&fakeExtractor{}, &recordingEmitter{})
	if err := m.Analyze(context.Background(), zone, "x", "m", "k"); err == nil {
		t.Error("Analyze without BeginCapture should fail")
	}
}

func TestSessionsAreIndependent(t *testing.T) {
	release := make(chan struct{})
	ex := &fakeExtractor{values: map[string]interface{}{"speed": float64(1)}, release: release}
	m := NewManager(ex, &recordingEmitter{})

	m.BeginCapture("zone1", "img-1")
	m.Analyze(context.Background(), zone, "x", "m", "k")

	// zone2 proceeds while zone1's analysis is outstanding.
	m.BeginCapture("zone2", "img-2")
	if st := m.State("zone2"); st.Status != StatusCapturing {
		t.Fatalf("zone2 status = %s", st.Status)
	}
	if st := m.State("zone1"); st.Status != StatusAnalyzing {
		t.Fatalf("zone1 status = %s", st.Status)
	}

	close(release)
	waitForStatus(t, m, "zone1", StatusReady)
	if st := m.State("zone2"); st.Status != StatusCapturing {
		t.Errorf("zone1 completion must not touch zone2, got %s", st.Status)
	}
}

func TestResetAllOrphansInFlightResult(t *testing.T) {
	release := make(chan struct{})
	ex := &fakeExtractor{values: map[string]interface{}{"speed": float64(99)}, release: release}
	em := &recordingEmitter{}
	m := NewManager(ex, em)

	m.BeginCapture("zone1", "img-1")
	m.Analyze(context.Background(), zone, "x", "m", "k")

	m.ResetAll()
	if st := m.State("zone1"); st.Status != StatusIdle {
		t.Fatalf("after reset, status = %s, want idle", st.Status)
	}

	close(release)
	// The late result lands on the orphaned session; the current zone1
	// session must stay idle.
	deadline := time.After(2 * time.Second)
	for {
		if em.last().Status == StatusReady {
			break
		}
		select {
		case <-deadline:
			t.Fatal("orphaned analysis never completed")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if st := m.State("zone1"); st.Status != StatusIdle || len(st.Values) != 0 {
		t.Errorf("orphaned result corrupted the fresh session: %+v", st)
	}
}

func TestCapturedValuesOnlyReadyZones(t *testing.T) {
	ex := &fakeExtractor{values: map[string]interface{}{"speed": float64(10)}}
	m := NewManager(ex, &recordingEmitter{})

	m.BeginCapture("zone1", "img")
	m.Analyze(context.Background(), zone, "x", "m", "k")
	waitForStatus(t, m, "zone1", StatusReady)

	m.BeginCapture("zone2", "img")

	got := m.CapturedValues()
	if len(got) != 1 {
		t.Fatalf("CapturedValues = %v, want only zone1", got)
	}
	if got["zone1"]["speed"] != 10 {
		t.Errorf("zone1 speed = %v", got["zone1"]["speed"])
	}
}
