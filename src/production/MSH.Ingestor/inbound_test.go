package ingest

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	mshmodels "gitlab.com/meshsense1/msh.mesh_server/src/production/MSH.Models"
)

func TestResolveNodeID(t *testing.T) {
	room := 3

	assert.Equal(t, "NODE_001", InboundReading{NodeID: "NODE_001", DeviceID: "legacy"}.resolveNodeID())
	assert.Equal(t, "legacy", InboundReading{DeviceID: "legacy"}.resolveNodeID())
	assert.Equal(t, "ROOM_3", InboundReading{RoomID: &room}.resolveNodeID())
	assert.Equal(t, "", InboundReading{}.resolveNodeID())
}

func TestDecodeMotion(t *testing.T) {
	cases := []struct {
		raw  string
		want *bool
	}{
		{"true", boolPtr(true)},
		{"false", boolPtr(false)},
		{"1", boolPtr(true)},
		{"0", boolPtr(false)},
		{"2.5", boolPtr(true)},
		{"null", nil},
		{`"junk"`, nil},
		{"", nil},
	}

	for _, tc := range cases {
		got := decodeMotion(json.RawMessage(tc.raw))
		if tc.want == nil {
			assert.Nil(t, got, "raw=%q", tc.raw)
		} else {
			require.NotNil(t, got, "raw=%q", tc.raw)
			assert.Equal(t, *tc.want, *got, "raw=%q", tc.raw)
		}
	}
}

func TestDecodeGas(t *testing.T) {
	// Booleans are flags on every route.
	g := decodeGas(json.RawMessage("true"), false)
	require.NotNil(t, g)
	assert.Equal(t, mshmodels.GasFlag, g.Kind)
	assert.True(t, g.Flag)

	// Plain numbers stay numeric.
	g = decodeGas(json.RawMessage("350"), false)
	require.NotNil(t, g)
	assert.Equal(t, mshmodels.GasNumber, g.Kind)
	assert.Equal(t, 350.0, g.Number)

	// Sentinel coercion only rewrites exactly 0 and 1.
	g = decodeGas(json.RawMessage("1"), true)
	require.NotNil(t, g)
	assert.Equal(t, mshmodels.GasFlag, g.Kind)
	assert.True(t, g.Flag)

	g = decodeGas(json.RawMessage("0"), true)
	require.NotNil(t, g)
	assert.Equal(t, mshmodels.GasFlag, g.Kind)
	assert.False(t, g.Flag)

	g = decodeGas(json.RawMessage("0.5"), true)
	require.NotNil(t, g)
	assert.Equal(t, mshmodels.GasNumber, g.Kind)

	assert.Nil(t, decodeGas(json.RawMessage("null"), true))
	assert.Nil(t, decodeGas(json.RawMessage(`"smoke"`), true))
}

func TestParseTimestamp(t *testing.T) {
	ts, ok := parseTimestamp(json.RawMessage(`"2026-08-30T12:00:00Z"`))
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC), ts.UTC())

	// Epoch seconds.
	ts, ok = parseTimestamp(json.RawMessage("1756555200"))
	require.True(t, ok)
	assert.Equal(t, int64(1756555200), ts.Unix())

	// Epoch milliseconds.
	ts, ok = parseTimestamp(json.RawMessage("1756555200000"))
	require.True(t, ok)
	assert.Equal(t, int64(1756555200), ts.Unix())

	// Space-separated fallback format.
	_, ok = parseTimestamp(json.RawMessage(`"2026-08-30 12:00:00"`))
	assert.True(t, ok)

	_, ok = parseTimestamp(json.RawMessage(`"not a time"`))
	assert.False(t, ok)

	_, ok = parseTimestamp(nil)
	assert.False(t, ok)
}

func boolPtr(v bool) *bool { return &v }
