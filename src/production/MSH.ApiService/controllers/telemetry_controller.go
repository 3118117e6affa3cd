package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gitlab.com/meshsense1/msh.mesh_server/src/production/MSH.ApiService/middleware"
	ingest "gitlab.com/meshsense1/msh.mesh_server/src/production/MSH.Ingestor"
	livestore "gitlab.com/meshsense1/msh.mesh_server/src/production/MSH.LiveStore"
	logger "gitlab.com/meshsense1/msh.mesh_server/src/production/MSH.Logger"
	interfaces "gitlab.com/meshsense1/msh.mesh_server/src/production/MSH.Repository/Interfaces"
)

// TelemetryController serves the sensor data API: ingestion on the write
// side, history/latest/presence on the read side.
//
// Write routes and their store policies:
//   - POST /api/esp32              (auth)    durable store only
//   - POST /api/esp32/public       (api key) durable store only
//   - POST /api/esp32/public/batch (api key) durable store only, per item
//   - POST /api/esp32/public/relay (api key) latest-value store only
type TelemetryController struct {
	readingRepo       interfaces.ReadingRepository
	live              *livestore.LiveStore
	ingestService     *ingest.Service
	logger            *logger.Logger
	authMiddleware    *middleware.AuthMiddleware
	apiKeyMiddleware  gin.HandlerFunc
	presenceThreshold time.Duration
	historyLimit      int
}

// NewTelemetryController creates a new telemetry controller
func NewTelemetryController(
	readingRepo interfaces.ReadingRepository,
	live *livestore.LiveStore,
	ingestService *ingest.Service,
	logger *logger.Logger,
	authMiddleware *middleware.AuthMiddleware,
	apiKeyMiddleware gin.HandlerFunc,
	presenceThreshold time.Duration,
	historyLimit int,
) *TelemetryController {
	return &TelemetryController{
		readingRepo:       readingRepo,
		live:              live,
		ingestService:     ingestService,
		logger:            logger,
		authMiddleware:    authMiddleware,
		apiKeyMiddleware:  apiKeyMiddleware,
		presenceThreshold: presenceThreshold,
		historyLimit:      historyLimit,
	}
}

// RegisterRoutes registers the telemetry routes with Gin
func (c *TelemetryController) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/esp32")
	{
		api.GET("", c.authMiddleware.Authenticate(), c.GetHistory)
		api.GET("/latest", c.authMiddleware.Authenticate(), c.GetLatest)
		api.GET("/latest/all-nodes", c.authMiddleware.Authenticate(), c.GetLatestAllNodes)
		api.GET("/status", c.authMiddleware.Authenticate(), c.GetPresence)
		api.POST("", c.authMiddleware.Authenticate(), c.PostReading)

		public := api.Group("/public", c.apiKeyMiddleware)
		{
			public.POST("", c.PostPublicReading)
			public.POST("/batch", c.PostBatch)
			public.POST("/relay", c.PostRelay)
		}
	}
}

// GetHistory returns the filtered durable history, newest first.
func (c *TelemetryController) GetHistory(ctx *gin.Context) {
	filter := queryFilter(ctx)

	limit := c.historyLimit
	if raw := ctx.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	readings, err := c.readingRepo.GetHistory(ctx, filter, limit)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   len(readings),
		"data":    readings,
	})
}

// GetLatest returns the single most recent durable record matching the filter.
func (c *TelemetryController) GetLatest(ctx *gin.Context) {
	filter := queryFilter(ctx)

	rd, err := c.readingRepo.GetLatest(ctx, filter)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if rd == nil {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "no data found"})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    rd,
	})
}

// GetLatestAllNodes returns every node's most recent reading from the
// latest-value store, sorted by nodeId. This is the dashboard polling path
// and never touches the durable store.
func (c *TelemetryController) GetLatestAllNodes(ctx *gin.Context) {
	data := c.live.Snapshot(ctx.Query("adminId"))

	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   len(data),
		"data":    data,
	})
}

// NodeStatus reports the inferred liveness of one node.
type NodeStatus struct {
	NodeID   string    `json:"nodeId"`
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"lastSeen"`
}

// GetPresence reports per-node online status and the gateway aggregate,
// derived from reading freshness rather than an explicit heartbeat.
func (c *TelemetryController) GetPresence(ctx *gin.Context) {
	now := time.Now().UTC()

	entries := c.live.Snapshot(ctx.Query("adminId"))
	nodes := make([]NodeStatus, 0, len(entries))
	for _, rd := range entries {
		nodes = append(nodes, NodeStatus{
			NodeID:   rd.NodeID,
			Online:   c.live.IsOnline(rd.NodeID, now, c.presenceThreshold),
			LastSeen: rd.ReceivedAt,
		})
	}

	ctx.JSON(http.StatusOK, gin.H{
		"success":       true,
		"gatewayOnline": c.live.IsGatewayOnline(now, c.presenceThreshold),
		"count":         len(nodes),
		"nodes":         nodes,
	})
}

// PostReading ingests a single reading on the authenticated direct path.
func (c *TelemetryController) PostReading(ctx *gin.Context) {
	c.handleSingleIngest(ctx, ingest.RouteDirect, "Data saved successfully")
}

// PostPublicReading ingests a single reading relayed by a gateway device.
func (c *TelemetryController) PostPublicReading(ctx *gin.Context) {
	c.handleSingleIngest(ctx, ingest.RoutePublic, "Data received successfully")
}

// PostRelay ingests a high-frequency relay sample into the latest-value
// store only; these samples are deliberately not persisted.
func (c *TelemetryController) PostRelay(ctx *gin.Context) {
	c.handleSingleIngest(ctx, ingest.RouteRelay, "Data received successfully")
}

func (c *TelemetryController) handleSingleIngest(ctx *gin.Context, policy ingest.RoutePolicy, message string) {
	var in ingest.InboundReading
	if err := ctx.ShouldBindJSON(&in); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rd, err := c.ingestService.IngestOne(ctx, in, policy)
	if err != nil {
		if errors.Is(err, ingest.ErrMissingNodeID) {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": message,
		"data":    rd,
	})
}

// BatchRequest is the shared-gateway batch payload.
type BatchRequest struct {
	AdminID    string                  `json:"adminId" binding:"required"`
	SensorData []ingest.InboundReading `json:"sensorData"`
}

// PostBatch ingests a gateway batch. Items are isolated: one malformed item
// is reported in the failure list without aborting the rest.
func (c *TelemetryController) PostBatch(ctx *gin.Context) {
	var req BatchRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := c.ingestService.IngestBatch(ctx, req.AdminID, req.SensorData, ingest.RouteBatch)
	if err != nil {
		if errors.Is(err, ingest.ErrEmptyBatch) {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{
		"success":       true,
		"acceptedCount": result.AcceptedCount,
		"failedCount":   result.FailedCount,
		"failures":      result.Failures,
	})
}

// queryFilter reads the node/admin filters, accepting the legacy deviceId
// alias for nodeId.
func queryFilter(ctx *gin.Context) interfaces.ReadingFilter {
	nodeID := ctx.Query("nodeId")
	if nodeID == "" {
		nodeID = ctx.Query("deviceId")
	}
	return interfaces.ReadingFilter{
		NodeID:  nodeID,
		AdminID: ctx.Query("adminId"),
	}
}
