package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"govdash/pkg/errors"
)

// Backend modes
const (
	BackendMock = "mock"
	BackendProd = "prod"
)

type Config struct {
	App           AppConfig
	Backend       BackendConfig
	HTTP          HTTPConfig
	Postgres      PostgresConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Chain         ChainConfig
	Proxy         ProxyConfig
	ErrorTracking ErrorTrackingConfig
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"govdash"`
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// BackendConfig describes where governance topics are fetched from
type BackendConfig struct {
	Mode        string        `envconfig:"GOV_BACKEND" default:"prod"`
	MainnetURLs []string      `envconfig:"GOV_BACKEND_MAINNET_URLS" default:"https://content.makerfoundation.com"`
	KovanURLs   []string      `envconfig:"GOV_BACKEND_KOVAN_URLS" default:"https://elb.content.makerfoundation.com:444"`
	TopicsPath  string        `envconfig:"GOV_BACKEND_TOPICS_PATH" default:"/topics"`
	MaxAttempts int           `envconfig:"GOV_BACKEND_MAX_ATTEMPTS" default:"5"`
	Timeout     time.Duration `envconfig:"GOV_BACKEND_TIMEOUT" default:"10s"`

	// Delay between consecutive attempts; zero disables waiting
	BackoffInitial time.Duration `envconfig:"GOV_BACKEND_BACKOFF_INITIAL" default:"250ms"`
	BackoffMax     time.Duration `envconfig:"GOV_BACKEND_BACKOFF_MAX" default:"4s"`

	RequestsPerMinute int    `envconfig:"GOV_BACKEND_REQUESTS_PER_MINUTE" default:"120"`
	RefreshSchedule   string `envconfig:"GOV_BACKEND_REFRESH_SCHEDULE"` // cron spec, empty disables
}

// Candidates returns the ordered list of base URLs for a network
func (c BackendConfig) Candidates(network string) []string {
	var urls []string
	switch network {
	case "mainnet":
		urls = c.MainnetURLs
	case "kovan":
		urls = c.KovanURLs
	}

	out := make([]string, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimRight(strings.TrimSpace(u), "/")
		if u != "" {
			out = append(out, u)
		}
	}
	return out
}

// Validate checks the backend mode and the prod candidate lists
func (c BackendConfig) Validate() error {
	switch c.Mode {
	case BackendMock:
		return nil
	case BackendProd:
	default:
		return errors.Wrapf(errors.ErrInvalidInput, "GOV_BACKEND must be %q or %q, got %q", BackendMock, BackendProd, c.Mode)
	}

	if c.MaxAttempts <= 0 {
		return errors.Wrapf(errors.ErrInvalidInput, "GOV_BACKEND_MAX_ATTEMPTS must be positive, got %d", c.MaxAttempts)
	}
	for _, network := range []string{"mainnet", "kovan"} {
		if len(c.Candidates(network)) == 0 {
			return errors.Wrapf(errors.ErrInvalidInput, "no backend urls configured for %s", network)
		}
	}
	return nil
}

type HTTPConfig struct {
	Addr           string        `envconfig:"HTTP_ADDR" default:":8080"`
	AllowedOrigins []string      `envconfig:"HTTP_ALLOWED_ORIGINS" default:"*"`
	ReadTimeout    time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"15s"`
	WriteTimeout   time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"15s"`
}

type PostgresConfig struct {
	Host     string `envconfig:"POSTGRES_HOST"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" default:"govdash"`
	Password string `envconfig:"POSTGRES_PASSWORD"`
	Database string `envconfig:"POSTGRES_DB" default:"govdash"`
	SSLMode  string `envconfig:"POSTGRES_SSL_MODE" default:"disable"`
	MaxConns int    `envconfig:"POSTGRES_MAX_CONNS" default:"10"`

	// Snapshots older than this are pruned at startup; zero keeps everything
	SnapshotRetention time.Duration `envconfig:"POSTGRES_SNAPSHOT_RETENTION" default:"720h"`
}

// Enabled reports whether a Postgres host is configured
func (c PostgresConfig) Enabled() bool {
	return c.Host != ""
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

// Enabled reports whether a Redis host is configured
func (c RedisConfig) Enabled() bool {
	return c.Host != ""
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type KafkaConfig struct {
	Brokers []string `envconfig:"KAFKA_BROKERS"`
	Topic   string   `envconfig:"KAFKA_TOPIC" default:"govdash.events"`
	GroupID string   `envconfig:"KAFKA_GROUP_ID"` // defaults to a per-instance group
	Relay   bool     `envconfig:"KAFKA_RELAY" default:"false"`
	Async   bool     `envconfig:"KAFKA_ASYNC" default:"false"`
}

// Enabled reports whether any broker is configured
func (c KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

// ChainConfig points the transaction confirmation watcher at JSON-RPC nodes
type ChainConfig struct {
	MainnetRPC    string        `envconfig:"CHAIN_MAINNET_RPC"`
	KovanRPC      string        `envconfig:"CHAIN_KOVAN_RPC"`
	PollInterval  time.Duration `envconfig:"CHAIN_POLL_INTERVAL" default:"4s"`
	Confirmations uint64        `envconfig:"CHAIN_CONFIRMATIONS" default:"1"`
}

// RPC returns the JSON-RPC endpoint for a network, empty if none
func (c ChainConfig) RPC(network string) string {
	switch network {
	case "mainnet":
		return c.MainnetRPC
	case "kovan":
		return c.KovanRPC
	}
	return ""
}

type ProxyConfig struct {
	SessionTTL time.Duration `envconfig:"PROXY_SESSION_TTL" default:"24h"`
}

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"true"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

// Load reads configuration from environment variables
// It first tries to load .env file (useful for local development)
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}

	if err := cfg.Backend.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
