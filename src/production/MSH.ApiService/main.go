package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gitlab.com/meshsense1/msh.mesh_server/src/production/MSH.ApiService/controllers"
	authService "gitlab.com/meshsense1/msh.mesh_server/src/production/MSH.ApiService/implementation/auth"
	"gitlab.com/meshsense1/msh.mesh_server/src/production/MSH.ApiService/middleware"
	container "gitlab.com/meshsense1/msh.mesh_server/src/production/MSH.Container"
	ingest "gitlab.com/meshsense1/msh.mesh_server/src/production/MSH.Ingestor"
	implementation "gitlab.com/meshsense1/msh.mesh_server/src/production/MSH.Repository/Implementation"
)

func main() {
	// Initialize dependency injection container
	ctr, err := container.NewApiContainer()
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize container: %v", err))
	}
	defer ctr.Shutdown(context.Background())

	logger := ctr.GetLogger()
	logger.Info("Starting API Service")

	config := ctr.GetConfig()

	// Connect to MongoDB
	coll, err := ctr.GetReadingCollection()
	if err != nil {
		logger.FatalWithError(err, "Failed to connect to MongoDB")
	}
	mongoClient, err := ctr.GetMongoClient()
	if err != nil {
		logger.FatalWithError(err, "Failed to get MongoDB client")
	}

	// Create repository and core services
	readingRepo := implementation.NewMongoReadingRepository(coll)
	live := ctr.GetLiveStore()
	ingestService := ingest.NewService(readingRepo, live, logger)

	// Create auth middleware backed by the shared token service
	tokenService := authService.NewTokenService(config.Auth.APIToken)
	authMiddlewareInstance := middleware.NewAuthMiddleware(tokenService, middleware.DefaultConfig())
	apiKeyMiddleware := middleware.APIKeyMiddleware(config.Ingest.APIKey)

	// Initialize Gin router
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// Configure CORS from config
	corsConfig := cors.Config{
		AllowOrigins:     config.CORS.AllowedOrigins,
		AllowMethods:     config.CORS.AllowedMethods,
		AllowHeaders:     config.CORS.AllowedHeaders,
		ExposeHeaders:    config.CORS.ExposedHeaders,
		AllowCredentials: config.CORS.AllowCredentials,
		MaxAge:           time.Duration(config.CORS.MaxAge) * time.Second,
	}
	router.Use(cors.New(corsConfig))

	// Create controllers and register routes
	telemetryController := controllers.NewTelemetryController(
		readingRepo,
		live,
		ingestService,
		logger,
		authMiddlewareInstance,
		apiKeyMiddleware,
		config.Ingest.PresenceThreshold,
		config.Ingest.HistoryLimit,
	)
	healthController := controllers.NewHealthController(mongoClient, live)

	telemetryController.RegisterRoutes(router)
	healthController.RegisterRoutes(router)

	// Get port from configuration
	port := config.Server.Port

	// Create HTTP server with timeouts
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  config.Server.ReadTimeout,
		WriteTimeout: config.Server.WriteTimeout,
		IdleTimeout:  config.Server.IdleTimeout,
	}

	// Start HTTP server in a goroutine
	go func() {
		logger.Info("HTTP server starting on port " + port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.FatalWithError(err, "Failed to start HTTP server")
		}
	}()

	logger.Info("API service running... press Ctrl+C to stop")

	// Wait for shutdown signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("Shutting down...")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.ErrorWithError(err, "Server forced to shutdown")
	}
}
