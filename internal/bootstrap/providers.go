package bootstrap

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"govdash/internal/adapters/backend"
	"govdash/internal/adapters/chain"
	"govdash/internal/adapters/config"
	errnoop "govdash/internal/adapters/errors/noop"
	"govdash/internal/adapters/errors/sentry"
	"govdash/internal/adapters/kafka"
	pgclient "govdash/internal/adapters/postgres"
	"govdash/internal/adapters/ratelimit"
	redisclient "govdash/internal/adapters/redis"
	"govdash/internal/api"
	"govdash/internal/api/health"
	"govdash/internal/api/stream"
	"govdash/internal/domain/topic"
	"govdash/internal/events"
	"govdash/internal/metrics"
	"govdash/internal/repository/memory"
	pgrepo "govdash/internal/repository/postgres"
	redisrepo "govdash/internal/repository/redis"
	"govdash/internal/services/accounts"
	"govdash/internal/services/proxysetup"
	"govdash/internal/services/timeline"
	"govdash/internal/services/topics"
	"govdash/pkg/errors"
	"govdash/pkg/logger"
)

// Scheduled refreshes across instances hold this lock at most this long
const refreshLockTTL = 2 * time.Minute

// ========================================
// Phase 1: Configuration & Logging
// ========================================

// MustInitConfig loads configuration and initializes logger
func (c *Container) MustInitConfig() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	c.Config = cfg

	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		panic("failed to init logger: " + err.Error())
	}

	c.Log = logger.Get()
	c.Log.Infof("Starting %s %s in %s mode (backend: %s)", cfg.App.Name, c.Version, cfg.App.Env, cfg.Backend.Mode)

	c.ErrorTracker = provideErrorTracker(cfg, c.Version, c.Log)
	logger.SetErrorTracker(c.ErrorTracker)

	metrics.Init()
}

// ========================================
// Phase 2: Infrastructure Layer
// ========================================

// MustInitInfrastructure connects the optional stores
func (c *Container) MustInitInfrastructure() {
	var err error

	if c.Config.Postgres.Enabled() {
		c.Log.Info("Connecting to PostgreSQL...")
		c.PG, err = pgclient.NewClient(c.Config.Postgres)
		if err != nil {
			c.Log.Fatalf("failed to connect postgres: %v", err)
		}

		ctx, cancel := context.WithTimeout(c.Context, 30*time.Second)
		err = c.PG.Migrate(ctx)
		cancel()
		if err != nil {
			c.Log.Fatalf("failed to migrate postgres: %v", err)
		}
		c.Log.Info("✓ PostgreSQL connected")
	} else {
		c.Log.Info("PostgreSQL not configured, topic snapshots are not archived")
	}

	if c.Config.Redis.Enabled() {
		c.Log.Info("Connecting to Redis...")
		c.Redis, err = redisclient.NewClient(c.Config.Redis)
		if err != nil {
			c.Log.Fatalf("failed to connect redis: %v", err)
		}
		c.Log.Info("✓ Redis connected")
	} else {
		c.Log.Info("Redis not configured, proxy setup sessions are kept in memory")
	}

	if c.PG != nil || c.Redis != nil {
		prometheus.MustRegister(provideStoreCollector(c))
	}
}

// ========================================
// Phase 3: Repositories
// ========================================

// MustInitRepositories picks the session store and the snapshot archive
func (c *Container) MustInitRepositories() {
	if c.Redis != nil {
		c.Repos.ProxySessions = redisrepo.NewProxySessionRepository(c.Redis.Client())
	} else {
		c.Repos.ProxySessions = memory.NewProxySessionRepository()
	}

	if c.PG != nil {
		c.Repos.Snapshots = pgrepo.NewTopicSnapshotRepository(c.PG.DB())
		c.pruneSnapshots()
	}

	c.Log.Info("✓ Repositories initialized")
}

// pruneSnapshots drops archived feeds past the retention window
func (c *Container) pruneSnapshots() {
	retention := c.Config.Postgres.SnapshotRetention
	if retention <= 0 {
		return
	}

	ctx, cancel := context.WithTimeout(c.Context, 30*time.Second)
	defer cancel()

	removed, err := c.Repos.Snapshots.Prune(ctx, time.Now().Add(-retention))
	if err != nil {
		c.Log.Warnw("Failed to prune topic snapshots", "error", err)
		return
	}
	c.Log.Infow("✓ Topic snapshots pruned", "removed", removed, "retention", retention)
}

// rehydrateTopics seeds the topics store with the newest archived feed per
// network so a restart serves data before the first refresh completes
func (c *Container) rehydrateTopics() {
	if c.Repos.Snapshots == nil {
		return
	}

	ctx, cancel := context.WithTimeout(c.Context, 10*time.Second)
	defer cancel()

	for _, n := range topic.Networks() {
		snap, err := c.Repos.Snapshots.Latest(ctx, n)
		if errors.Is(err, errors.ErrNotFound) {
			continue
		}
		if err != nil {
			c.Log.Warnw("Failed to load archived topics", "network", n, "error", err)
			continue
		}

		feed, err := snap.Topics()
		if err != nil {
			c.Log.Warnw("Skipping undecodable topic snapshot", "network", n, "snapshot_id", snap.ID, "error", err)
			continue
		}
		if c.Adapters.Store.Seed(n, uint64(snap.RequestID), feed, snap.FetchedAt) {
			c.Log.Infow("✓ Topics restored from archive", "network", n, "topics", len(feed), "fetched_at", snap.FetchedAt)
		}
	}
}

// ========================================
// Phase 4: Adapters & Event Sinks
// ========================================

// MustInitAdapters builds the backend sources, the chain confirmer and the
// event dispatch chain
func (c *Container) MustInitAdapters() {
	cfg := c.Config

	c.Adapters.Backend = backend.NewClient(backend.ClientConfig{
		TopicsPath: cfg.Backend.TopicsPath,
		Timeout:    cfg.Backend.Timeout,
		Limiters:   ratelimit.NewHostLimiters(cfg.Backend.RequestsPerMinute),
	}, c.Log)
	c.Adapters.Mock = backend.NewMockSource()

	endpoints := make(map[topic.Network]string, 2)
	for _, n := range topic.Networks() {
		if rpc := cfg.Chain.RPC(n.String()); rpc != "" {
			endpoints[n] = rpc
		}
	}
	c.Adapters.Confirmer = chain.NewConfirmer(endpoints, cfg.Chain.Confirmations, chain.DialEth, c.Log)

	// Local consumers run ahead of the Kafka sink
	var archive events.SnapshotArchive
	if c.Repos.Snapshots != nil {
		archive = c.Repos.Snapshots
	}
	c.Adapters.Store = events.NewTopicsStore(archive, c.Log)
	c.rehydrateTopics()
	c.Adapters.Hub = stream.NewHub(cfg.HTTP.AllowedOrigins, c.Log)
	c.dispatchTo(c.Adapters.Store, c.Adapters.Hub)

	if cfg.Kafka.Enabled() {
		origin := provideOrigin()
		c.Adapters.KafkaProducer = provideKafkaProducer(cfg, c.Log)
		c.dispatchTo(events.NewKafkaSink(c.Adapters.KafkaProducer, cfg.Kafka.Topic, origin, c.Log))

		if cfg.Kafka.Relay {
			c.Adapters.RelayConsumer = provideRelayConsumer(cfg, origin, c.Log)
			c.Background.Relay = events.NewRelay(origin, events.Fanout{c.Adapters.Store, c.Adapters.Hub}, c.Log)
		}
		c.Log.Infow("✓ Kafka event sink enabled", "topic", cfg.Kafka.Topic, "relay", cfg.Kafka.Relay, "origin", origin)
	}

	c.Log.Info("✓ Adapters initialized")
}

// dispatchTo appends consumers to the shared fan-out
func (c *Container) dispatchTo(d ...events.Dispatcher) {
	*c.Adapters.Dispatcher = append(*c.Adapters.Dispatcher, d...)
}

// ========================================
// Phase 5: Services
// ========================================

// MustInitServices builds the topics fetcher, the wizard and the timeline
func (c *Container) MustInitServices() {
	var err error

	c.Services.Accounts = accounts.NewRegistry(c.Log)

	c.Services.Topics, err = topics.NewService(
		topics.ConfigFromBackend(c.Config.Backend),
		c.Adapters.Backend,
		c.Adapters.Mock,
		c.Adapters.Dispatcher,
		c.Log,
	)
	if err != nil {
		c.Log.Fatalf("failed to create topics service: %v", err)
	}

	c.Services.Proxy = proxysetup.NewService(
		c.Repos.ProxySessions,
		c.Services.Accounts,
		c.Adapters.Dispatcher,
		c.Config.Proxy.SessionTTL,
		c.Log,
	)

	c.Services.Timeline = timeline.NewService(c.Adapters.Store, c.Services.Accounts, c.Log)

	c.Log.Info("✓ Services initialized")
}

// ========================================
// Phase 6: Background Components
// ========================================

// MustInitBackground builds the refresh scheduler and the confirmation watcher
func (c *Container) MustInitBackground() {
	var err error

	c.Background.Scheduler, err = topics.NewScheduler(c.Services.Topics, c.Config.Backend.RefreshSchedule, nil, c.Log)
	if err != nil {
		c.Log.Fatalf("failed to create topics scheduler: %v", err)
	}
	// Relayed instances share results, so only one of them polls per tick
	if c.Redis != nil && c.Background.Relay != nil {
		c.Background.Scheduler.WithLocker(c.Redis, refreshLockTTL)
	}

	c.Background.Watcher = proxysetup.NewWatcher(c.Services.Proxy, c.Adapters.Confirmer, c.Config.Chain.PollInterval, c.Log)
	c.dispatchTo(c.Background.Watcher)

	c.Log.Info("✓ Background components initialized")
}

// ========================================
// Phase 7: Application Layer
// ========================================

// MustInitApplication builds health checks, the router and the HTTP server
func (c *Container) MustInitApplication() {
	cfg := c.Config

	c.Health = health.New(c.Log, cfg.App.Name, c.Version)
	if c.PG != nil {
		c.Health.Register("postgres", c.PG)
	}
	if c.Redis != nil {
		c.Health.Register("redis", c.Redis)
	}

	deps := api.Deps{
		Topics:         c.Services.Topics,
		Store:          c.Adapters.Store,
		Timeline:       c.Services.Timeline,
		Proxy:          c.Services.Proxy,
		Accounts:       c.Services.Accounts,
		Health:         c.Health,
		Stream:         c.Adapters.Hub,
		Tracker:        c.ErrorTracker,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		ServiceName:    cfg.App.Name,
		Version:        c.Version,
	}
	if c.Repos.Snapshots != nil {
		deps.History = c.Repos.Snapshots
	}

	c.HTTP = api.NewServer(api.ServerConfig{
		Addr:         cfg.HTTP.Addr,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}, api.NewRouter(deps, c.Log), c.Log)

	c.Log.Infow("✓ Application initialized", "addr", cfg.HTTP.Addr)
}

// ========================================
// Providers
// ========================================

func provideErrorTracker(cfg *config.Config, release string, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled || cfg.ErrorTracking.SentryDSN == "" {
		log.Info("Error tracking disabled")
		return errnoop.New()
	}

	tracker, err := sentry.New(cfg.ErrorTracking.SentryDSN, cfg.ErrorTracking.Environment, release)
	if err != nil {
		log.Warnf("Failed to initialize Sentry: %v", err)
		return errnoop.New()
	}

	log.Info("Error tracking initialized (Sentry)")
	return tracker
}

// provideStoreCollector scrapes whichever stores are configured
func provideStoreCollector(c *Container) *metrics.CustomCollector {
	var (
		db  *sqlx.DB
		rdb *goredis.Client
	)
	if c.PG != nil {
		db = c.PG.DB()
	}
	if c.Redis != nil {
		rdb = c.Redis.Client()
	}
	return metrics.NewCustomCollector(c.Log.With("component", "store_metrics"), db, rdb, redisrepo.ProxySessionKeyPrefix)
}

func provideKafkaProducer(cfg *config.Config, log *logger.Logger) *kafka.Producer {
	log.Infow("Creating Kafka producer", "brokers", cfg.Kafka.Brokers, "async", cfg.Kafka.Async)
	return kafka.NewProducer(kafka.ProducerConfig{
		Brokers: cfg.Kafka.Brokers,
		Async:   cfg.Kafka.Async,
	}, log)
}

func provideRelayConsumer(cfg *config.Config, origin string, log *logger.Logger) *kafka.Consumer {
	groupID := cfg.Kafka.GroupID
	if groupID == "" {
		// every instance must see every envelope
		groupID = cfg.App.Name + "-relay-" + origin
	}
	log.Infow("Creating Kafka relay consumer", "topic", cfg.Kafka.Topic, "group", groupID)
	return kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers: cfg.Kafka.Brokers,
		GroupID: groupID,
		Topic:   cfg.Kafka.Topic,
	}, log)
}

// provideOrigin names this process on the event bus
func provideOrigin() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "govdash"
	}
	return host + "-" + uuid.NewString()[:8]
}
