package livestore

import (
	"time"

	mshmodels "gitlab.com/meshsense1/msh.mesh_server/src/production/MSH.Models"
)

// freshnessTime picks the instant presence is measured against: the server
// arrival time when set, otherwise the device-reported timestamp. A zero time
// means the entry carries no usable freshness information.
func freshnessTime(rd mshmodels.Reading) time.Time {
	if !rd.ReceivedAt.IsZero() {
		return rd.ReceivedAt
	}
	return rd.Timestamp
}

// IsOnline reports whether nodeID has produced a reading within threshold of
// now. Absent entries and entries without a usable freshness time are offline;
// never assume freshness. The boundary is strict: age == threshold is offline.
func (s *LiveStore) IsOnline(nodeID string, now time.Time, threshold time.Duration) bool {
	rd, ok := s.Get(nodeID)
	if !ok {
		return false
	}
	return readingOnline(rd, now, threshold)
}

// IsGatewayOnline reports whether any tracked node is online. The gateway has
// no heartbeat of its own; its presence is the OR-aggregate over the nodes it
// relays. An empty store means offline.
func (s *LiveStore) IsGatewayOnline(now time.Time, threshold time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rd := range s.entries {
		if readingOnline(rd, now, threshold) {
			return true
		}
	}
	return false
}

func readingOnline(rd mshmodels.Reading, now time.Time, threshold time.Duration) bool {
	ref := freshnessTime(rd)
	if ref.IsZero() {
		return false
	}
	return now.Sub(ref) < threshold
}
