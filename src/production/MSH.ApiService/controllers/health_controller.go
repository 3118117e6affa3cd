package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	livestore "gitlab.com/meshsense1/msh.mesh_server/src/production/MSH.LiveStore"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// HealthController handles liveness and readiness requests
type HealthController struct {
	mongoClient *mongo.Client
	live        *livestore.LiveStore
}

// NewHealthController creates a new health controller
func NewHealthController(mongoClient *mongo.Client, live *livestore.LiveStore) *HealthController {
	return &HealthController{
		mongoClient: mongoClient,
		live:        live,
	}
}

// RegisterRoutes registers the health routes with Gin
func (c *HealthController) RegisterRoutes(router *gin.Engine) {
	router.GET("/health/live", c.HealthLive)
	router.GET("/health/ready", c.HealthReady)
}

func (c *HealthController) HealthLive(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

func (c *HealthController) HealthReady(ctx *gin.Context) {
	pingCtx, cancel := context.WithTimeout(ctx.Request.Context(), 5*time.Second)
	defer cancel()

	dbOK := c.mongoClient.Ping(pingCtx, readpref.Primary()) == nil

	status := http.StatusOK
	if !dbOK {
		status = http.StatusServiceUnavailable
	}

	ctx.JSON(status, gin.H{
		"status": "ready",
		"db":     dbOK,
		"nodes":  c.live.Len(),
	})
}
