package container

import (
	"context"
	"fmt"
	"sync"

	"gitlab.com/meshsense1/msh.mesh_server/src/production/MSH.ApiService/health"
	config "gitlab.com/meshsense1/msh.mesh_server/src/production/MSH.Config"
	livestore "gitlab.com/meshsense1/msh.mesh_server/src/production/MSH.LiveStore"
	logger "gitlab.com/meshsense1/msh.mesh_server/src/production/MSH.Logger"
	"go.mongodb.org/mongo-driver/mongo"
)

// Container manages dependencies and their lifecycle for the API service
type Container struct {
	config      *config.Config
	logger      *logger.Logger
	mongoClient *mongo.Client
	live        *livestore.LiveStore

	// Mutex for thread-safe access
	mu sync.Mutex

	// Cleanup functions
	cleanupFuncs []func() error
}

// RelayContainer manages dependencies for the MQTT relay bridge service
type RelayContainer struct {
	config *config.RelayConfig
	logger *logger.Logger
}

// NewApiContainer creates a new container for the API service
func NewApiContainer() (*Container, error) {
	cfg, err := config.LoadApiConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load API configuration: %w", err)
	}

	log := logger.NewLogger(&cfg.Logging)

	return &Container{
		config: cfg,
		logger: log,
		live:   livestore.NewLiveStore(),
	}, nil
}

// NewRelayContainer creates a new container for the relay bridge service
func NewRelayContainer() (*RelayContainer, error) {
	cfg, err := config.LoadRelayConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load relay configuration: %w", err)
	}

	log := logger.NewLogger(&cfg.Logging)

	return &RelayContainer{
		config: cfg,
		logger: log,
	}, nil
}

// GetConfig returns the configuration
func (c *Container) GetConfig() *config.Config {
	return c.config
}

// GetConfig returns the relay configuration
func (c *RelayContainer) GetConfig() *config.RelayConfig {
	return c.config
}

// GetLogger returns the logger
func (c *Container) GetLogger() *logger.Logger {
	return c.logger
}

// GetLogger returns the logger
func (c *RelayContainer) GetLogger() *logger.Logger {
	return c.logger
}

// GetLiveStore returns the process-wide latest-value store
func (c *Container) GetLiveStore() *livestore.LiveStore {
	return c.live
}

// GetMongoClient returns the MongoDB client, connecting lazily
func (c *Container) GetMongoClient() (*mongo.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mongoClient == nil {
		client, err := health.ConnectMongoWithTimeout(&c.config.Mongo, c.config.Mongo.ConnectTimeout)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
		}
		c.mongoClient = client
		c.cleanupFuncs = append(c.cleanupFuncs, func() error {
			return client.Disconnect(context.Background())
		})
	}

	return c.mongoClient, nil
}

// GetReadingCollection returns the readings collection
func (c *Container) GetReadingCollection() (*mongo.Collection, error) {
	client, err := c.GetMongoClient()
	if err != nil {
		return nil, err
	}
	return health.GetReadingCollection(client, &c.config.Mongo), nil
}

// AddCleanupFunc adds a cleanup function
func (c *Container) AddCleanupFunc(fn func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanupFuncs = append(c.cleanupFuncs, fn)
}

// Shutdown gracefully shuts down the container and all its dependencies
func (c *Container) Shutdown(ctx context.Context) error {
	c.logger.Info("Shutting down container...")

	c.mu.Lock()
	defer c.mu.Unlock()

	// Execute cleanup functions in reverse order
	for i := len(c.cleanupFuncs) - 1; i >= 0; i-- {
		if err := c.cleanupFuncs[i](); err != nil {
			c.logger.ErrorWithError(err, "Error during cleanup")
		}
	}

	c.logger.Info("Container shutdown complete")
	return nil
}

// Shutdown gracefully shuts down the relay container
func (c *RelayContainer) Shutdown(ctx context.Context) error {
	c.logger.Info("Shutting down relay container...")
	return nil
}
