// Package capture tracks the lifecycle of one measurement capture per zone.
package capture

import (
	"context"
	"fmt"
	"sync"

	"capstation/extract"
	"capstation/store"
)

// Capture session states.
const (
	StatusIdle      = "idle"
	StatusCapturing = "capturing"
	StatusAnalyzing = "analyzing"
	StatusReady     = "ready"
	StatusError     = "error"
)

// State is a point-in-time snapshot of one zone's session.
type State struct {
	ZoneID       string             `json:"zoneId"`
	Status       string             `json:"status"`
	Values       map[string]float64 `json:"values,omitempty"`
	ErrorMessage string             `json:"errorMessage,omitempty"`
	ImageRef     string             `json:"imageRef,omitempty"`
}

// Session is the mutable state machine for one zone's capture attempt.
// Ready and Error are terminal for the attempt; the zone may be re-captured.
type Session struct {
	mu       sync.Mutex
	zoneID   string
	status   string
	values   map[string]float64
	errMsg   string
	imageRef string
}

func newSession(zoneID string) *Session {
	return &Session{zoneID: zoneID, status: StatusIdle}
}

// Snapshot returns a copy of the session state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	values := make(map[string]float64, len(s.values))
	for k, v := range s.values {
		values[k] = v
	}
	return State{
		ZoneID:       s.zoneID,
		Status:       s.status,
		Values:       values,
		ErrorMessage: s.errMsg,
		ImageRef:     s.imageRef,
	}
}

func (s *Session) beginCapture(imageRef string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusCapturing
	s.imageRef = imageRef
	s.errMsg = ""
}

func (s *Session) startAnalysis() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusCapturing {
		return fmt.Errorf("zone %s: cannot analyze from %s", s.zoneID, s.status)
	}
	s.status = StatusAnalyzing
	return nil
}

// complete replaces (not merges) the captured values.
func (s *Session) complete(values map[string]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusReady
	s.values = values
	s.errMsg = ""
}

// fail retains the message and leaves prior values untouched.
func (s *Session) fail(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusError
	s.errMsg = msg
}

// EventEmitter is the interface the capture package uses to announce session
// state changes.
type EventEmitter interface {
	EmitSessionChanged(state State)
}

// Manager owns the per-zone sessions of the active working session. Sessions
// are independent: work on one zone never touches another's state.
type Manager struct {
	mu        sync.Mutex
	sessions  map[string]*Session
	extractor extract.Extractor
	emitter   EventEmitter
}

// NewManager creates a session manager.
func NewManager(extractor extract.Extractor, emitter EventEmitter) *Manager {
	return &Manager{
		sessions:  make(map[string]*Session),
		extractor: extractor,
		emitter:   emitter,
	}
}

func (m *Manager) session(zoneID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[zoneID]
	if !ok {
		s = newSession(zoneID)
		m.sessions[zoneID] = s
	}
	return s
}

// State returns the snapshot for a zone; an untouched zone reports Idle.
func (m *Manager) State(zoneID string) State {
	return m.session(zoneID).Snapshot()
}

// States returns snapshots for every zone touched this working session.
func (m *Manager) States() map[string]State {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]State, len(m.sessions))
	for id, s := range m.sessions {
		out[id] = s.Snapshot()
	}
	return out
}

// BeginCapture records an operator-provided image reference and moves the zone
// to Capturing. Re-capturing a Ready or Error zone starts a fresh attempt.
func (m *Manager) BeginCapture(zoneID, imageRef string) State {
	s := m.session(zoneID)
	s.beginCapture(imageRef)
	state := s.Snapshot()
	m.emitter.EmitSessionChanged(state)
	return state
}

// Analyze hands the captured image to the extraction service asynchronously.
// The calling flow returns as soon as the zone is Analyzing; the result is
// applied to the session object the analysis was launched for, so a machine
// switch in the meantime orphans the result without corrupting any other
// zone's state.
func (m *Manager) Analyze(ctx context.Context, zone store.ZoneDefinition, imageBase64, model, apiKey string) error {
	s := m.session(zone.ID)
	if err := s.startAnalysis(); err != nil {
		return err
	}
	m.emitter.EmitSessionChanged(s.Snapshot())

	go func() {
		values, err := m.extractor.Analyze(ctx, extract.Request{
			ImageBase64: imageBase64,
			Prompt:      zone.Prompt,
			Schema:      zone.Schema,
			Model:       model,
			APIKey:      apiKey,
		})
		if err != nil {
			s.fail(err.Error())
		} else {
			s.complete(extract.NumericFields(values))
		}
		m.emitter.EmitSessionChanged(s.Snapshot())
	}()
	return nil
}

// Fail marks a zone's session as errored without running an analysis, for
// failures detected before the extraction request can be made.
func (m *Manager) Fail(zoneID, msg string) State {
	s := m.session(zoneID)
	s.fail(msg)
	state := s.Snapshot()
	m.emitter.EmitSessionChanged(state)
	return state
}

// CapturedValues returns the Ready values for every zone, keyed by zone id.
// Zones that are not Ready contribute nothing.
func (m *Manager) CapturedValues() map[string]map[string]float64 {
	out := make(map[string]map[string]float64)
	for id, st := range m.States() {
		if st.Status == StatusReady && len(st.Values) > 0 {
			out[id] = st.Values
		}
	}
	return out
}

// ResetAll discards every session, in progress or complete. A machine switch
// is a hard reset, not a per-zone cancellation; in-flight analyses keep their
// orphaned session objects and are ignored.
func (m *Manager) ResetAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = make(map[string]*Session)
}
