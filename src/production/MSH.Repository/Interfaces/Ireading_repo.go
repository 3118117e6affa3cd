package interfaces

import (
	"context"

	mshmodels "gitlab.com/meshsense1/msh.mesh_server/src/production/MSH.Models"
)

// ReadingFilter narrows durable-store queries by node and/or gateway identity.
// Empty fields match everything.
type ReadingFilter struct {
	NodeID  string
	AdminID string
}

// ReadingRepository is the durable, append-only store of accepted readings.
// Records are never mutated or deleted by the ingestion subsystem.
type ReadingRepository interface {
	InsertReading(ctx context.Context, rd mshmodels.Reading) error
	InsertReadings(ctx context.Context, rds []mshmodels.Reading) error

	// GetHistory returns up to limit readings matching the filter, newest
	// first by device timestamp.
	GetHistory(ctx context.Context, f ReadingFilter, limit int) ([]mshmodels.Reading, error)

	// GetLatest returns the single most recent reading matching the filter,
	// or nil when nothing matches.
	GetLatest(ctx context.Context, f ReadingFilter) (*mshmodels.Reading, error)
}
