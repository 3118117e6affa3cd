package mshmodels

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DefaultAdminID is the well-known gateway identity assigned to readings that
// arrive without an explicit adminId.
const DefaultAdminID = "ADMIN_001"

// Reading is a single sensor sample relayed from a mesh node. Readings are
// immutable once accepted; corrections arrive as new readings.
type Reading struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	NodeID       string             `bson:"node_id" json:"nodeId"`
	AdminID      string             `bson:"admin_id,omitempty" json:"adminId,omitempty"`
	Temperature  *float64           `bson:"temperature,omitempty" json:"temperature,omitempty"`
	Humidity     *float64           `bson:"humidity,omitempty" json:"humidity,omitempty"`
	SoilMoisture *float64           `bson:"soil_moisture,omitempty" json:"soilMoisture,omitempty"`
	WaterLevel   *float64           `bson:"water_level,omitempty" json:"waterLevel,omitempty"`
	Gas          *GasValue          `bson:"gas,omitempty" json:"gas,omitempty"`
	Motion       *bool              `bson:"motion,omitempty" json:"motion,omitempty"`

	// Timestamp is the instant the node produced the sample. It comes from the
	// device clock and may be skewed; presence decisions use ReceivedAt.
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`

	// ReceivedAt is set by the server when the reading is accepted and is never
	// trusted from the caller.
	ReceivedAt time.Time `bson:"received_at" json:"receivedAt"`

	AdditionalData map[string]interface{} `bson:"additional_data,omitempty" json:"additionalData,omitempty"`
}
