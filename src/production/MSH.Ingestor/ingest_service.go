package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	livestore "gitlab.com/meshsense1/msh.mesh_server/src/production/MSH.LiveStore"
	logger "gitlab.com/meshsense1/msh.mesh_server/src/production/MSH.Logger"
	mshmodels "gitlab.com/meshsense1/msh.mesh_server/src/production/MSH.Models"
	interfaces "gitlab.com/meshsense1/msh.mesh_server/src/production/MSH.Repository/Interfaces"
)

var (
	// ErrMissingNodeID rejects a reading whose node identity resolves empty
	// after alias folding.
	ErrMissingNodeID = errors.New("node id is required")

	// ErrEmptyBatch rejects a batch whose sensorData sequence is absent or
	// empty.
	ErrEmptyBatch = errors.New("sensor data array is required")
)

// RoutePolicy states what an ingestion route does with an accepted reading.
// Each route declares its policy once instead of branching per handler.
type RoutePolicy struct {
	// WritesDurable appends the reading to the durable store.
	WritesDurable bool

	// WritesLive overwrites the node's entry in the latest-value store.
	WritesLive bool

	// CoerceSentinels converts gas readings of exactly 0 or 1 into boolean
	// alert flags, the encoding constrained relay nodes use.
	CoerceSentinels bool
}

// The write policies for the ingestion routes. The relay path trades
// durability for ingestion rate and feeds only the latest-value store; the
// direct and public paths trade rate for durability.
var (
	RouteDirect = RoutePolicy{WritesDurable: true}
	RoutePublic = RoutePolicy{WritesDurable: true}
	RouteBatch  = RoutePolicy{WritesDurable: true}
	RouteRelay  = RoutePolicy{WritesLive: true, CoerceSentinels: true}
)

// BatchFailure reports why one item of a batch was rejected.
type BatchFailure struct {
	NodeID string `json:"nodeId"`
	Reason string `json:"reason"`
}

// BatchResult summarizes a batch submission. Items are processed
// independently; a failure never aborts the remainder.
type BatchResult struct {
	AcceptedCount int            `json:"acceptedCount"`
	FailedCount   int            `json:"failedCount"`
	Failures      []BatchFailure `json:"failures,omitempty"`
}

// Service is the ingestion router: it normalizes inbound readings and applies
// the route's write policy against the durable and latest-value stores.
type Service struct {
	repo interfaces.ReadingRepository
	live *livestore.LiveStore
	log  *logger.Logger
	now  func() time.Time
}

func NewService(repo interfaces.ReadingRepository, live *livestore.LiveStore, log *logger.Logger) *Service {
	return &Service{
		repo: repo,
		live: live,
		log:  log,
		now:  time.Now,
	}
}

// IngestOne normalizes and stores a single reading according to policy.
// The live-store write and the durable write are independent: a durable
// failure is surfaced to the caller but does not undo the live entry, so a
// reading can legitimately exist in one store and not the other.
func (s *Service) IngestOne(ctx context.Context, in InboundReading, policy RoutePolicy) (mshmodels.Reading, error) {
	rd, err := s.normalize(in, policy)
	if err != nil {
		return mshmodels.Reading{}, err
	}

	if policy.WritesLive {
		s.live.Put(rd.NodeID, rd)
	}

	if policy.WritesDurable {
		if err := s.repo.InsertReading(ctx, rd); err != nil {
			s.log.ErrorWithError(err, "durable write failed for node "+rd.NodeID)
			return mshmodels.Reading{}, fmt.Errorf("insert reading for %s: %w", rd.NodeID, err)
		}
	}

	return rd, nil
}

// IngestBatch processes a shared-gateway batch item by item. Each item is
// persisted individually; a malformed item is recorded as a failure and
// processing continues.
func (s *Service) IngestBatch(ctx context.Context, adminID string, items []InboundReading, policy RoutePolicy) (BatchResult, error) {
	if len(items) == 0 {
		return BatchResult{}, ErrEmptyBatch
	}

	var result BatchResult
	for _, in := range items {
		if adminID != "" {
			in.AdminID = adminID
		}

		if _, err := s.IngestOne(ctx, in, policy); err != nil {
			result.FailedCount++
			result.Failures = append(result.Failures, BatchFailure{
				NodeID: failureNodeID(in),
				Reason: err.Error(),
			})
			continue
		}
		result.AcceptedCount++
	}

	return result, nil
}

// normalize resolves aliases and sentinels and stamps the server-side arrival
// time. receivedAt always comes from the local clock, never from the caller;
// the device-reported timestamp only fills in when present and parseable.
func (s *Service) normalize(in InboundReading, policy RoutePolicy) (mshmodels.Reading, error) {
	now := s.now().UTC()

	nodeID := in.resolveNodeID()
	if nodeID == "" {
		return mshmodels.Reading{}, ErrMissingNodeID
	}

	adminID := in.AdminID
	if adminID == "" {
		adminID = mshmodels.DefaultAdminID
	}

	ts, ok := parseTimestamp(in.Timestamp)
	if !ok {
		ts, ok = parseTimestamp(in.Ts)
	}
	if !ok {
		ts = now
	}

	waterLevel := in.WaterLevel
	if waterLevel == nil && in.Rain != nil {
		// Relay nodes report rain as a 0/1 contact sensor; the dashboard
		// renders it as a full or empty water level.
		level := 0.0
		if *in.Rain != 0 {
			level = 100.0
		}
		waterLevel = &level
	}

	return mshmodels.Reading{
		NodeID:         nodeID,
		AdminID:        adminID,
		Temperature:    in.Temperature,
		Humidity:       in.Humidity,
		SoilMoisture:   in.SoilMoisture,
		WaterLevel:     waterLevel,
		Gas:            decodeGas(in.Gas, policy.CoerceSentinels),
		Motion:         decodeMotion(in.Motion),
		Timestamp:      ts,
		ReceivedAt:     now,
		AdditionalData: in.AdditionalData,
	}, nil
}

func failureNodeID(in InboundReading) string {
	if id := in.resolveNodeID(); id != "" {
		return id
	}
	return "unknown"
}
