package metrics

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"govdash/pkg/logger"
)

// CustomCollector collects gauges straight from the stores on scrape.
// Either store may be nil when it is not configured.
type CustomCollector struct {
	log       *logger.Logger
	postgres  *sqlx.DB
	redis     *redis.Client
	keyPrefix string

	// Descriptors
	snapshots     *prometheus.Desc
	snapshotAge   *prometheus.Desc
	proxySessions *prometheus.Desc
}

// NewCustomCollector creates a new custom metrics collector. keyPrefix is
// the Redis key prefix of proxy setup sessions.
func NewCustomCollector(log *logger.Logger, postgres *sqlx.DB, redis *redis.Client, keyPrefix string) *CustomCollector {
	return &CustomCollector{
		log:       log,
		postgres:  postgres,
		redis:     redis,
		keyPrefix: keyPrefix,

		snapshots: prometheus.NewDesc(
			"govdash_topic_snapshots",
			"Archived topic snapshots by network",
			[]string{"network"}, nil,
		),
		snapshotAge: prometheus.NewDesc(
			"govdash_topic_snapshot_age_seconds",
			"Seconds since the newest archived snapshot by network",
			[]string{"network"}, nil,
		),
		proxySessions: prometheus.NewDesc(
			"govdash_proxy_sessions",
			"Open proxy setup sessions",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *CustomCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.snapshots
	ch <- c.snapshotAge
	ch <- c.proxySessions
}

// Collect implements prometheus.Collector
func (c *CustomCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if c.postgres != nil {
		c.collectSnapshotStats(ctx, ch)
	}
	if c.redis != nil {
		c.collectProxySessions(ctx, ch)
	}
}

func (c *CustomCollector) collectSnapshotStats(ctx context.Context, ch chan<- prometheus.Metric) {
	type SnapshotStat struct {
		Network string    `db:"network"`
		Count   int       `db:"count"`
		Newest  time.Time `db:"newest"`
	}

	var stats []SnapshotStat
	err := c.postgres.SelectContext(ctx, &stats, `
		SELECT network, COUNT(*) AS count, MAX(fetched_at) AS newest
		FROM topic_snapshots
		GROUP BY network
	`)
	if err != nil {
		c.log.Errorw("Failed to collect snapshot stats", "error", err)
		return
	}

	for _, stat := range stats {
		ch <- prometheus.MustNewConstMetric(
			c.snapshots,
			prometheus.GaugeValue,
			float64(stat.Count),
			stat.Network,
		)
		ch <- prometheus.MustNewConstMetric(
			c.snapshotAge,
			prometheus.GaugeValue,
			time.Since(stat.Newest).Seconds(),
			stat.Network,
		)
	}
}

func (c *CustomCollector) collectProxySessions(ctx context.Context, ch chan<- prometheus.Metric) {
	var (
		cursor uint64
		total  int
	)
	for {
		keys, next, err := c.redis.Scan(ctx, cursor, c.keyPrefix+"*", 500).Result()
		if err != nil {
			c.log.Errorw("Failed to count proxy sessions", "error", err)
			return
		}
		total += len(keys)
		cursor = next
		if cursor == 0 {
			break
		}
	}

	ch <- prometheus.MustNewConstMetric(
		c.proxySessions,
		prometheus.GaugeValue,
		float64(total),
	)
}
