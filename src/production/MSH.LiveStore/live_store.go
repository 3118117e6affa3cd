package livestore

import (
	"sort"
	"sync"

	mshmodels "gitlab.com/meshsense1/msh.mesh_server/src/production/MSH.Models"
)

// LiveStore holds the most recent reading per node. It is the single source
// for live dashboard queries and is rebuilt empty on restart.
//
// Every Put is a full overwrite of the previous entry, last-write-wins by
// arrival order regardless of the device-reported timestamp. A reading with a
// missing sensor value replaces one that had it; the store is a snapshot of
// the latest sample, not a merged superset.
type LiveStore struct {
	mu      sync.RWMutex
	entries map[string]mshmodels.Reading
}

// NewLiveStore creates an empty store.
func NewLiveStore() *LiveStore {
	return &LiveStore{
		entries: make(map[string]mshmodels.Reading),
	}
}

// Put replaces the entry for nodeID unconditionally.
func (s *LiveStore) Put(nodeID string, rd mshmodels.Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[nodeID] = rd
}

// Get returns the current entry for nodeID, if any.
func (s *LiveStore) Get(nodeID string) (mshmodels.Reading, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rd, ok := s.entries[nodeID]
	return rd, ok
}

// List returns all entries in no particular order.
func (s *LiveStore) List() []mshmodels.Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]mshmodels.Reading, 0, len(s.entries))
	for _, rd := range s.entries {
		out = append(out, rd)
	}
	return out
}

// Snapshot returns all entries, optionally filtered by adminID, sorted by
// nodeId ascending. This is the dashboard polling path and stays O(number of
// nodes): entries are copied out under the read lock and sorted without
// further allocation.
func (s *LiveStore) Snapshot(adminID string) []mshmodels.Reading {
	s.mu.RLock()
	out := make([]mshmodels.Reading, 0, len(s.entries))
	for _, rd := range s.entries {
		if adminID != "" && rd.AdminID != adminID {
			continue
		}
		out = append(out, rd)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].NodeID < out[j].NodeID
	})
	return out
}

// Len returns the number of tracked nodes.
func (s *LiveStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
