package livestore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	mshmodels "gitlab.com/meshsense1/msh.mesh_server/src/production/MSH.Models"
)

const threshold = 10 * time.Second

func TestIsOnlineUnknownNode(t *testing.T) {
	store := NewLiveStore()
	assert.False(t, store.IsOnline("NODE_001", time.Now().UTC(), threshold))
}

func TestIsOnlineFreshReading(t *testing.T) {
	store := NewLiveStore()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	store.Put("NODE_001", mshmodels.Reading{NodeID: "NODE_001", ReceivedAt: now.Add(-5 * time.Second)})
	assert.True(t, store.IsOnline("NODE_001", now, threshold))

	store.Put("NODE_002", mshmodels.Reading{NodeID: "NODE_002", ReceivedAt: now.Add(-15 * time.Second)})
	assert.False(t, store.IsOnline("NODE_002", now, threshold))
}

func TestIsOnlineBoundaryIsStrict(t *testing.T) {
	store := NewLiveStore()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	// Age exactly equal to the threshold is offline.
	store.Put("NODE_001", mshmodels.Reading{NodeID: "NODE_001", ReceivedAt: now.Add(-threshold)})
	assert.False(t, store.IsOnline("NODE_001", now, threshold))

	store.Put("NODE_002", mshmodels.Reading{NodeID: "NODE_002", ReceivedAt: now.Add(-threshold + time.Nanosecond)})
	assert.True(t, store.IsOnline("NODE_002", now, threshold))
}

func TestIsOnlineFallsBackToTimestamp(t *testing.T) {
	store := NewLiveStore()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	// No arrival time recorded; the device-reported timestamp decides.
	store.Put("NODE_001", mshmodels.Reading{NodeID: "NODE_001", Timestamp: now.Add(-3 * time.Second)})
	assert.True(t, store.IsOnline("NODE_001", now, threshold))

	// Arrival time takes precedence over a stale device timestamp.
	store.Put("NODE_002", mshmodels.Reading{
		NodeID:     "NODE_002",
		Timestamp:  now.Add(-time.Hour),
		ReceivedAt: now.Add(-2 * time.Second),
	})
	assert.True(t, store.IsOnline("NODE_002", now, threshold))
}

func TestIsOnlineNoUsableTime(t *testing.T) {
	store := NewLiveStore()
	store.Put("NODE_001", mshmodels.Reading{NodeID: "NODE_001"})
	assert.False(t, store.IsOnline("NODE_001", time.Now().UTC(), threshold))
}

func TestIsGatewayOnline(t *testing.T) {
	store := NewLiveStore()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	assert.False(t, store.IsGatewayOnline(now, threshold), "empty store means offline")

	store.Put("NODE_001", mshmodels.Reading{NodeID: "NODE_001", ReceivedAt: now.Add(-time.Minute)})
	assert.False(t, store.IsGatewayOnline(now, threshold))

	// One fresh node is enough.
	store.Put("NODE_002", mshmodels.Reading{NodeID: "NODE_002", ReceivedAt: now.Add(-time.Second)})
	assert.True(t, store.IsGatewayOnline(now, threshold))
}
