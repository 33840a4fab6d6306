// Package preset holds the in-memory preset cache and its search operations.
// The slice mirrors the remote snapshot's arrival order; snapshot reads
// replace it wholesale, operator edits apply optimistically through Upsert.
package preset

import (
	"strings"
	"sync"

	"github.com/google/uuid"

	"capstation/store"
)

// DisplayCap bounds how many search matches any view renders. The underlying
// filter is unbounded; the cap only limits display.
const DisplayCap = 50

// Store is a machine-scoped view over the preset cache.
type Store struct {
	mu      sync.RWMutex
	presets []store.ProductPreset
}

// NewStore creates an empty preset store.
func NewStore() *Store {
	return &Store{}
}

// Replace swaps the full preset list (snapshot read path).
func (s *Store) Replace(presets []store.ProductPreset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presets = make([]store.ProductPreset, len(presets))
	copy(s.presets, presets)
}

// All returns a copy of every cached preset in arrival order.
func (s *Store) All() []store.ProductPreset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.ProductPreset, len(s.presets))
	copy(out, s.presets)
	return out
}

// ByMachine returns the presets belonging to one machine, preserving arrival order.
func (s *Store) ByMachine(machineID string) []store.ProductPreset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.ProductPreset
	for _, p := range s.presets {
		if p.MachineID == machineID {
			out = append(out, p)
		}
	}
	return out
}

// Search filters a machine's presets to those whose product name or structure
// contains the query, case-insensitively. An empty query matches everything.
func (s *Store) Search(machineID, query string) []store.ProductPreset {
	q := strings.ToLower(query)
	var out []store.ProductPreset
	for _, p := range s.ByMachine(machineID) {
		if strings.Contains(strings.ToLower(p.ProductName), q) ||
			strings.Contains(strings.ToLower(p.Structure), q) {
			out = append(out, p)
		}
	}
	return out
}

// Get returns the preset with the given id.
func (s *Store) Get(id string) (store.ProductPreset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.presets {
		if p.ID == id {
			return p, true
		}
	}
	return store.ProductPreset{}, false
}

// Upsert applies an optimistic local mutation. With no id the preset is keyed
// by product name: an existing preset with that name is updated in place,
// otherwise the preset is appended with a fresh id. Authoritative persistence
// belongs to the sync gateway; this only keeps the local view current.
func (s *Store) Upsert(p store.ProductPreset) store.ProductPreset {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		for i := range s.presets {
			if s.presets[i].ProductName == p.ProductName && s.presets[i].MachineID == p.MachineID {
				p.ID = s.presets[i].ID
				s.presets[i] = p
				return p
			}
		}
		p.ID = uuid.New().String()
		s.presets = append(s.presets, p)
		return p
	}

	for i := range s.presets {
		if s.presets[i].ID == p.ID {
			s.presets[i] = p
			return p
		}
	}
	s.presets = append(s.presets, p)
	return p
}

// TopN returns a strict prefix of at most n presets. Views pass DisplayCap.
func TopN(presets []store.ProductPreset, n int) []store.ProductPreset {
	if n < 0 {
		n = 0
	}
	if len(presets) <= n {
		return presets
	}
	return presets[:n]
}
