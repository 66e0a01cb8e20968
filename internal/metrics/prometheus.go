package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Topic fetch metrics
	TopicFetchAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "govdash_topic_fetch_attempts_total",
			Help: "Backend requests made while fetching topics",
		},
		[]string{"network", "outcome"}, // outcome: success|http_error|malformed|transport
	)

	TopicFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "govdash_topic_fetches_total",
			Help: "FetchTopics invocations by result",
		},
		[]string{"network", "mode", "result"}, // result: success|failure
	)

	TopicFetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "govdash_topic_fetch_duration_seconds",
			Help:    "FetchTopics duration including every attempt",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"network"},
	)

	// Proxy setup metrics
	ProxyTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "govdash_proxy_transitions_total",
			Help: "Applied proxy setup step transitions",
		},
		[]string{"from", "to"},
	)

	ProxyInvalidTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "govdash_proxy_invalid_transitions_total",
			Help: "Rejected proxy setup step transitions",
		},
		[]string{"from", "to"},
	)

	ProxyResets = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "govdash_proxy_resets_total",
			Help: "Proxy setup sessions cleared",
		},
		[]string{"reason"}, // reason: open|reset|dismiss|close
	)

	ChainChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "govdash_chain_checks_total",
			Help: "Transaction confirmation lookups",
		},
		[]string{"network", "status"}, // status: pending|confirmed|failed|error
	)

	// Event metrics
	EventsDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "govdash_events_dispatched_total",
			Help: "Store events dispatched by type",
		},
		[]string{"type"},
	)

	WebSocketConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "govdash_websocket_connections",
			Help: "Open event stream connections",
		},
	)

	// HTTP metrics
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "govdash_http_requests_total",
			Help: "HTTP API requests",
		},
		[]string{"route", "method", "status"},
	)

	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "govdash_http_request_duration_seconds",
			Help:    "HTTP API request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
)

var initOnce sync.Once

// Init registers all metrics with Prometheus
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			TopicFetchAttempts,
			TopicFetches,
			TopicFetchDuration,
			ProxyTransitions,
			ProxyInvalidTransitions,
			ProxyResets,
			ChainChecks,
			EventsDispatched,
			WebSocketConnections,
			HTTPRequests,
			HTTPDuration,
		)
	})
}

// Handler returns Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordTopicFetch records one FetchTopics invocation
func RecordTopicFetch(network, mode string, duration time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}

	TopicFetches.WithLabelValues(network, mode, result).Inc()
	TopicFetchDuration.WithLabelValues(network).Observe(duration.Seconds())
}

// RecordTransition records an attempted step transition
func RecordTransition(from, to string, err error) {
	if err != nil {
		ProxyInvalidTransitions.WithLabelValues(from, to).Inc()
		return
	}
	ProxyTransitions.WithLabelValues(from, to).Inc()
}

// RecordHTTPRequest records an API request
func RecordHTTPRequest(route, method, status string, duration time.Duration) {
	HTTPRequests.WithLabelValues(route, method, status).Inc()
	HTTPDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}
