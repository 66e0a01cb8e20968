package bootstrap

import (
	"context"
	"sync"

	"govdash/internal/adapters/backend"
	"govdash/internal/adapters/chain"
	"govdash/internal/adapters/config"
	"govdash/internal/adapters/kafka"
	pgclient "govdash/internal/adapters/postgres"
	redisclient "govdash/internal/adapters/redis"
	"govdash/internal/api"
	"govdash/internal/api/health"
	"govdash/internal/api/stream"
	"govdash/internal/domain/proxy"
	"govdash/internal/events"
	pgrepo "govdash/internal/repository/postgres"
	"govdash/internal/services/accounts"
	"govdash/internal/services/proxysetup"
	"govdash/internal/services/timeline"
	"govdash/internal/services/topics"
	"govdash/pkg/errors"
	"govdash/pkg/logger"
)

// Container holds all application dependencies and their lifecycle
// Components are organized in initialization order
type Container struct {
	// Core configuration & logging
	Config       *config.Config
	Log          *logger.Logger
	ErrorTracker errors.Tracker
	Version      string

	// Optional stores, nil when not configured
	PG    *pgclient.Client
	Redis *redisclient.Client

	Repos      *Repositories
	Adapters   *Adapters
	Services   *Services
	Background *Background
	HTTP       *api.Server
	Health     *health.Handler

	Lifecycle *Lifecycle
	WG        *sync.WaitGroup
	Context   context.Context
	Cancel    context.CancelFunc
}

// Repositories groups the persistence layer
type Repositories struct {
	ProxySessions proxy.Repository
	Snapshots     *pgrepo.TopicSnapshotRepository // nil without Postgres
}

// Adapters groups external adapters and event sinks
type Adapters struct {
	Backend       *backend.Client
	Mock          *backend.MockSource
	Confirmer     *chain.Confirmer
	KafkaProducer *kafka.Producer
	RelayConsumer *kafka.Consumer

	Store *events.TopicsStore
	Hub   *stream.Hub

	// Dispatcher fans every event out to the store, the hub, the watcher
	// and Kafka when configured
	Dispatcher *events.Fanout
}

// Services groups business logic
type Services struct {
	Accounts *accounts.Registry
	Topics   *topics.Service
	Proxy    *proxysetup.Service
	Timeline *timeline.Service
}

// Background groups long running components
type Background struct {
	Scheduler *topics.Scheduler
	Watcher   *proxysetup.Watcher
	Relay     *events.Relay
}

// NewContainer creates a new dependency container
func NewContainer(version string) *Container {
	ctx, cancel := context.WithCancel(context.Background())

	return &Container{
		Version:    version,
		Repos:      &Repositories{},
		Adapters:   &Adapters{Dispatcher: &events.Fanout{}},
		Services:   &Services{},
		Background: &Background{},
		Lifecycle:  NewLifecycle(),
		WG:         &sync.WaitGroup{},
		Context:    ctx,
		Cancel:     cancel,
	}
}

// MustInit initializes all components in the correct order
// Panics on any initialization error (fail-fast at startup)
func (c *Container) MustInit() {
	c.MustInitConfig()
	c.MustInitInfrastructure()
	c.MustInitRepositories()
	c.MustInitAdapters()
	c.MustInitServices()
	c.MustInitBackground()
	c.MustInitApplication()
}

// Start starts all background components
func (c *Container) Start() error {
	c.Log.Info("Starting all systems...")

	c.Background.Watcher.Start(c.Context)

	if c.Background.Relay != nil {
		c.WG.Add(1)
		go func() {
			defer c.WG.Done()
			err := c.Adapters.RelayConsumer.Consume(c.Context, c.Background.Relay.Handle)
			if err != nil && c.Context.Err() == nil {
				c.Log.Errorw("Event relay stopped", "error", err)
			}
		}()
		c.Log.Info("✓ Event relay started")
	}

	if err := c.Background.Scheduler.Start(c.Context); err != nil {
		return errors.Wrap(err, "failed to start topics scheduler")
	}
	c.Log.Infow("✓ Topics scheduler started", "schedule", c.Config.Backend.RefreshSchedule)

	c.WG.Add(1)
	go func() {
		defer c.WG.Done()
		if err := c.HTTP.Start(); err != nil {
			c.Log.Errorf("HTTP server failed: %v", err)
			c.Cancel() // Trigger shutdown on fatal HTTP error
		}
	}()

	c.Log.Info("✓ All systems operational")
	return nil
}

// Shutdown performs graceful shutdown in the correct order
func (c *Container) Shutdown() {
	c.Log.Info("Initiating graceful shutdown...")

	// Cancel application context to signal all components to stop
	c.Cancel()

	c.Lifecycle.Shutdown(c)
}
