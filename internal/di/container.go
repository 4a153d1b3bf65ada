// internal/di/container.go
package di

import (
	"fmt"
	"time"

	"tpv-fleet/internal/config"
	"tpv-fleet/internal/database"
	"tpv-fleet/internal/dispatch"
	"tpv-fleet/internal/heartbeat"
	"tpv-fleet/internal/interfaces"
	"tpv-fleet/internal/redis"
	"tpv-fleet/internal/services"
	"tpv-fleet/internal/toggle"
	"tpv-fleet/internal/wizard"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Container wires the fleet bridge together.
type Container struct {
	// Core services
	Database  interfaces.DatabaseService
	Cache     interfaces.CacheService
	Publisher interfaces.MessagePublisher
	Config    interfaces.ConfigProvider
	Logger    interfaces.Logger
	Scheduler interfaces.Scheduler
	IDGen     interfaces.IDGenerator

	// Domain components
	Dispatcher    *dispatch.Dispatcher
	Resolver      *heartbeat.Resolver
	ToggleManager *toggle.Manager
	WizardManager *wizard.Manager

	// Service
	FleetService *FleetService
}

// NewContainer builds the production container.
func NewContainer(cfg *config.Config) (*Container, error) {
	container := &Container{}

	if err := container.initCoreServices(cfg); err != nil {
		return nil, fmt.Errorf("failed to init core services: %w", err)
	}
	if err := container.initInfraServices(cfg); err != nil {
		return nil, fmt.Errorf("failed to init infra services: %w", err)
	}
	container.initDomainComponents()
	container.FleetService = NewFleetService(container)

	return container, nil
}

func (c *Container) initCoreServices(cfg *config.Config) error {
	c.Config = services.NewConfigProvider(cfg)
	c.Logger = services.NewLogger(cfg.LogLevel)
	c.Scheduler = services.NewScheduler()
	c.IDGen = services.NewIDGenerator()
	return nil
}

func (c *Container) initInfraServices(cfg *config.Config) error {
	db, err := database.NewPostgresDB(cfg)
	if err != nil {
		return fmt.Errorf("database init failed: %w", err)
	}
	c.Database = services.NewDatabaseService(db)

	redisClient, err := redis.NewRedisClient(cfg)
	if err != nil {
		return fmt.Errorf("redis init failed: %w", err)
	}
	c.Cache = services.NewCacheService(redisClient)

	mqttClient, err := createMQTTClient(cfg)
	if err != nil {
		return fmt.Errorf("mqtt init failed: %w", err)
	}
	c.Publisher = services.NewMessagePublisher(mqttClient)

	return nil
}

func (c *Container) initDomainComponents() {
	c.Dispatcher = dispatch.NewDispatcher(
		c.Database, c.Cache, c.Publisher, c.Scheduler, c.IDGen, c.Config, c.Logger)
	c.Resolver = heartbeat.NewResolver(
		c.Dispatcher, c.Cache, c.Publisher, c.Config, c.Logger)
	c.ToggleManager = toggle.NewManager(c.Dispatcher, c.Scheduler, c.Config, c.Logger)
	c.WizardManager = wizard.NewManager(c.Database, c.IDGen, c.Logger)
}

func createMQTTClient(cfg *config.Config) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTTBroker)
	opts.SetClientID(cfg.MQTTClientID)
	opts.SetUsername(cfg.MQTTUsername)
	opts.SetPassword(cfg.MQTTPassword)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(10 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return client, nil
}

// Cleanup releases broker resources.
func (c *Container) Cleanup() {
	if c.ToggleManager != nil {
		c.ToggleManager.CloseAll()
	}
	if c.Publisher != nil {
		c.Publisher.Disconnect(250)
	}
	if c.Logger != nil {
		c.Logger.Infof("container cleanup completed")
	}
}

// =============================================================================
// Fleet Service
// =============================================================================

type FleetService struct {
	container *Container
}

func NewFleetService(container *Container) *FleetService {
	return &FleetService{container: container}
}

// Start brings the push-channel subscriptions up.
func (s *FleetService) Start() error {
	if err := s.container.Resolver.Start(); err != nil {
		return err
	}
	s.container.Logger.Infof("fleet bridge service started")
	return nil
}

// HealthStatus feeds the ops readiness endpoint.
func (s *FleetService) HealthStatus() map[string]interface{} {
	return map[string]interface{}{
		"mqtt_connected":  s.container.Publisher.IsConnected(),
		"inflight":        s.container.Dispatcher.InFlightCount(),
		"toggles":         s.container.ToggleManager.Count(),
		"wizard_sessions": s.container.WizardManager.Count(),
		"timestamp":       time.Now().Format(time.RFC3339),
	}
}

// =============================================================================
// Test containers
// =============================================================================

// NewTestContainer assembles a container from explicit dependencies.
func NewTestContainer(
	db interfaces.DatabaseService,
	cache interfaces.CacheService,
	publisher interfaces.MessagePublisher,
	scheduler interfaces.Scheduler,
	idGen interfaces.IDGenerator,
	cfg interfaces.ConfigProvider,
	logger interfaces.Logger,
) *Container {
	container := &Container{
		Database:  db,
		Cache:     cache,
		Publisher: publisher,
		Scheduler: scheduler,
		IDGen:     idGen,
		Config:    cfg,
		Logger:    logger,
	}
	container.initDomainComponents()
	container.FleetService = NewFleetService(container)
	return container
}

// NewMockContainer builds a container entirely out of in-memory fakes.
func NewMockContainer() *Container {
	return NewTestContainer(
		NewMockDatabaseService(),
		NewMockCacheService(),
		NewMockMessagePublisher(),
		NewMockScheduler(),
		NewMockIDGenerator(),
		NewMockConfigProvider(),
		NewMockLogger(),
	)
}
