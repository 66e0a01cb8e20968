package api

import (
	"bufio"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"govdash/internal/api/health"
	"govdash/internal/metrics"
	"govdash/pkg/errors"
	"govdash/pkg/logger"
)

// Deps bundles everything the router serves. History, Stream and Tracker
// are optional.
type Deps struct {
	Topics   TopicsFetcher
	Store    TopicsReader
	History  SnapshotHistory
	Timeline TimelineBuilder
	Proxy    ProxySetup
	Accounts AccountRegistry
	Health   *health.Handler
	Stream   http.Handler
	Tracker  errors.Tracker

	AllowedOrigins []string
	ServiceName    string
	Version        string
}

// NewRouter wires every route behind CORS and request metrics
func NewRouter(d Deps, log *logger.Logger) http.Handler {
	h := &Handlers{
		topics:   d.Topics,
		store:    d.Store,
		history:  d.History,
		timeline: d.Timeline,
		proxy:    d.Proxy,
		accounts: d.Accounts,
		tracker:  d.Tracker,
		log:      log.With("component", "api"),
	}

	r := mux.NewRouter()
	r.Use(instrument)

	r.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"service": d.ServiceName,
			"version": d.Version,
			"status":  "running",
		})
	}).Methods(http.MethodGet)

	if d.Health != nil {
		r.HandleFunc("/health/live", d.Health.HandleLiveness).Methods(http.MethodGet)
		r.HandleFunc("/health/ready", d.Health.HandleReadiness).Methods(http.MethodGet)
	}
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	if d.Stream != nil {
		r.Handle("/ws", d.Stream)
	}

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/topics", h.getTopics).Methods(http.MethodGet)
	api.HandleFunc("/topics/refresh", h.refreshTopics).Methods(http.MethodPost)
	api.HandleFunc("/topics/history", h.topicsHistory).Methods(http.MethodGet)
	api.HandleFunc("/topics/{key}", h.getTopic).Methods(http.MethodGet)
	api.HandleFunc("/timeline", h.getTimeline).Methods(http.MethodGet)

	api.HandleFunc("/proxy", h.openProxy).Methods(http.MethodPost)
	api.HandleFunc("/proxy/{id}", h.getProxy).Methods(http.MethodGet)
	api.HandleFunc("/proxy/{id}", h.closeProxy).Methods(http.MethodDelete)
	api.HandleFunc("/proxy/{id}/advance", h.advanceProxy).Methods(http.MethodPost)
	api.HandleFunc("/proxy/{id}/reset", h.resetProxy).Methods(http.MethodPost)
	api.HandleFunc("/proxy/{id}/dismiss", h.dismissProxy).Methods(http.MethodPost)

	api.HandleFunc("/accounts", h.listAccounts).Methods(http.MethodGet)
	api.HandleFunc("/accounts", h.registerAccount).Methods(http.MethodPost)
	api.HandleFunc("/accounts/active", h.activeAccount).Methods(http.MethodGet)
	api.HandleFunc("/accounts/active", h.setActiveAccount).Methods(http.MethodPut)

	c := cors.New(cors.Options{
		AllowedOrigins: d.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         600,
	})
	return c.Handler(r)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// Hijack is needed by the websocket upgrade on /ws
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

// instrument records request counts and latency by route template
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		metrics.RecordHTTPRequest(route, r.Method, strconv.Itoa(rec.status), time.Since(start))
	})
}
