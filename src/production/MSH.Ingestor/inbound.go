package ingest

import (
	"encoding/json"
	"fmt"
	"time"

	mshmodels "gitlab.com/meshsense1/msh.mesh_server/src/production/MSH.Models"
)

// InboundReading is the wire shape accepted on every ingestion path. It is
// deliberately loose: gateways in the field send the legacy deviceId alias,
// room_id shorthand, numeric sentinels for boolean fields, and timestamps as
// either strings or epoch numbers. All of that is resolved here, at the
// boundary, so the rest of the system only ever sees a normalized Reading.
type InboundReading struct {
	NodeID   string `json:"nodeId"`
	DeviceID string `json:"deviceId"` // legacy alias for nodeId
	RoomID   *int   `json:"room_id"`  // relay shorthand, folded to ROOM_<id>
	AdminID  string `json:"adminId"`

	Temperature  *float64 `json:"temperature"`
	Humidity     *float64 `json:"humidity"`
	SoilMoisture *float64 `json:"soilMoisture"`
	WaterLevel   *float64 `json:"waterLevel"`
	Rain         *float64 `json:"rain"` // relay sentinel, mapped to waterLevel

	// Gas and Motion arrive as either numbers or booleans; decoded after the
	// container is bound.
	Gas    json.RawMessage `json:"gas"`
	Motion json.RawMessage `json:"motion"`

	Timestamp json.RawMessage `json:"timestamp"`
	Ts        json.RawMessage `json:"ts"` // relay alias for timestamp

	AdditionalData map[string]interface{} `json:"additionalData"`
}

// resolveNodeID folds the accepted identity aliases into a single nodeId.
// Returns empty when no identity was supplied.
func (in InboundReading) resolveNodeID() string {
	if in.NodeID != "" {
		return in.NodeID
	}
	if in.DeviceID != "" {
		return in.DeviceID
	}
	if in.RoomID != nil {
		return fmt.Sprintf("ROOM_%d", *in.RoomID)
	}
	return ""
}

// decodeMotion interprets the motion field: a boolean passes through, the
// numeric sentinels from constrained devices map to true for any non-zero
// value. Unrecognized shapes are dropped rather than failing the reading.
func decodeMotion(raw json.RawMessage) *bool {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var flag bool
	if err := json.Unmarshal(raw, &flag); err == nil {
		return &flag
	}

	var number float64
	if err := json.Unmarshal(raw, &number); err == nil {
		flag = number != 0
		return &flag
	}

	return nil
}

// decodeGas interprets the gas field. A boolean is always a flag. A number is
// kept numeric, except on sentinel-coercing routes where the exact values 0
// and 1 are the constrained-device encoding of a boolean alert.
func decodeGas(raw json.RawMessage, coerceSentinels bool) *mshmodels.GasValue {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var flag bool
	if err := json.Unmarshal(raw, &flag); err == nil {
		return mshmodels.FlagGas(flag)
	}

	var number float64
	if err := json.Unmarshal(raw, &number); err == nil {
		if coerceSentinels && (number == 0 || number == 1) {
			return mshmodels.FlagGas(number == 1)
		}
		return mshmodels.NumberGas(number)
	}

	return nil
}

// parseTimestamp accepts a timestamp as an RFC3339-ish string or as an epoch
// number (seconds or milliseconds). The second return is false when nothing
// usable was supplied.
func parseTimestamp(raw json.RawMessage) (time.Time, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, false
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return parseTimeString(s)
	}

	var n int64
	if err := json.Unmarshal(raw, &n); err == nil && n > 0 {
		// Millisecond epochs passed 1e12 back in 2001; second epochs will not
		// reach it for another 30 millennia.
		if n > 1_000_000_000_000 {
			return time.UnixMilli(n).UTC(), true
		}
		return time.Unix(n, 0).UTC(), true
	}

	return time.Time{}, false
}

// parseTimeString parses a time string in RFC3339 format, with fallbacks for
// the formats gateways have been observed to send.
func parseTimeString(timeStr string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, timeStr); err == nil {
		return t, true
	}

	formats := []string{
		"2006-01-02T15:04:05Z",
		"2006-01-02T15:04:05.000Z",
		"2006-01-02 15:04:05",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, timeStr); err == nil {
			return t, true
		}
	}

	return time.Time{}, false
}
