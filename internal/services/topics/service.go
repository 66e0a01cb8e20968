package topics

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"govdash/internal/adapters/config"
	"govdash/internal/adapters/retry"
	"govdash/internal/domain/topic"
	"govdash/internal/events"
	"govdash/internal/metrics"
	"govdash/pkg/errors"
	"govdash/pkg/logger"
)

// RemoteBackend performs one request against one candidate base URL
type RemoteBackend interface {
	FetchTopics(ctx context.Context, baseURL string, network topic.Network) (topic.Topics, error)
}

// StaticBackend serves topics without network access
type StaticBackend interface {
	Topics(network topic.Network) (topic.Topics, error)
}

// Config selects the backend mode and the prod candidate lists
type Config struct {
	Mode           string
	Candidates     map[topic.Network][]string
	MaxAttempts    int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

// ConfigFromBackend maps the env backend section onto the fetcher config
func ConfigFromBackend(c config.BackendConfig) Config {
	candidates := make(map[topic.Network][]string, 2)
	for _, n := range topic.Networks() {
		candidates[n] = c.Candidates(n.String())
	}
	return Config{
		Mode:           c.Mode,
		Candidates:     candidates,
		MaxAttempts:    c.MaxAttempts,
		BackoffInitial: c.BackoffInitial,
		BackoffMax:     c.BackoffMax,
	}
}

// Service fetches governance topics and reports each invocation to the
// dispatcher as one TOPICS_REQUEST followed by one terminal event.
type Service struct {
	cfg        Config
	remote     RemoteBackend
	static     StaticBackend
	retry      *retry.Middleware
	dispatcher events.Dispatcher
	seq        atomic.Uint64
	clock      func() time.Time
	log        *logger.Logger
}

// NewService creates the fetcher. remote is required in prod mode and
// static in mock mode.
func NewService(cfg Config, remote RemoteBackend, static StaticBackend, dispatcher events.Dispatcher, log *logger.Logger) (*Service, error) {
	switch cfg.Mode {
	case config.BackendMock:
		if static == nil {
			return nil, errors.Wrap(errors.ErrInvalidInput, "mock backend mode needs a static source")
		}
	case config.BackendProd:
		if remote == nil {
			return nil, errors.Wrap(errors.ErrInvalidInput, "prod backend mode needs a remote client")
		}
		if cfg.MaxAttempts <= 0 {
			return nil, errors.Wrapf(errors.ErrInvalidInput, "max attempts must be positive, got %d", cfg.MaxAttempts)
		}
	default:
		return nil, errors.Wrapf(errors.ErrInvalidInput, "unknown backend mode %q", cfg.Mode)
	}

	if dispatcher == nil {
		dispatcher = events.Discard
	}

	svc := &Service{
		cfg:    cfg,
		remote: remote,
		static: static,
		retry: retry.New(retry.Config{
			MaxAttempts:  cfg.MaxAttempts,
			InitialDelay: cfg.BackoffInitial,
			MaxDelay:     cfg.BackoffMax,
			Strategy:     retry.StrategyExponential,
			Retryable:    retry.Always,
		}),
		dispatcher: dispatcher,
		clock:      time.Now,
		log:        log.With("service", "topics", "mode", cfg.Mode),
	}
	return svc, nil
}

// nextRequestID returns max(last+1, now in Unix milliseconds). Ids follow
// wall-clock time so relayed results from other instances order against
// ours, and stay below 2^53 so they survive the float64 numbers of protobuf
// Struct envelopes.
func (s *Service) nextRequestID() uint64 {
	for {
		last := s.seq.Load()
		next := uint64(s.clock().UnixMilli())
		if next <= last {
			next = last + 1
		}
		if s.seq.CompareAndSwap(last, next) {
			return next
		}
	}
}

// FetchTopics retrieves the topic feed for network. Overlapping calls run
// independently; each carries a larger request id than every earlier call
// so consumers can drop stale results.
func (s *Service) FetchTopics(ctx context.Context, network topic.Network) (topic.Topics, error) {
	id := s.nextRequestID()
	start := time.Now()

	s.dispatch(ctx, events.TopicsRequest, id, network, struct{}{})

	result, err := s.fetch(ctx, network)

	// the terminal event goes out even if the caller gave up
	terminalCtx := context.WithoutCancel(ctx)
	if err != nil {
		s.log.Warnw("Topics fetch failed",
			"network", network,
			"request_id", id,
			"error", err,
		)
		s.dispatch(terminalCtx, events.TopicsFailure, id, network, events.NewFailure(err))
	} else {
		s.log.Infow("Topics fetched",
			"network", network,
			"request_id", id,
			"topics", len(result),
			"duration", time.Since(start),
		)
		s.dispatch(terminalCtx, events.TopicsSuccess, id, network, result)
	}

	metrics.RecordTopicFetch(network.String(), s.cfg.Mode, time.Since(start), err)
	return result, err
}

func (s *Service) fetch(ctx context.Context, network topic.Network) (topic.Topics, error) {
	if !network.Valid() {
		return nil, errors.Wrapf(errors.ErrUnknownNetwork, "%q", network.String())
	}

	if s.cfg.Mode == config.BackendMock {
		return s.static.Topics(network)
	}

	candidates := s.cfg.Candidates[network]
	if len(candidates) == 0 {
		return nil, errors.Wrapf(errors.ErrBackendUnreachable, "no candidates for %s", network)
	}

	var result topic.Topics
	err := s.retry.Do(ctx, func(ctx context.Context, attempt int) error {
		baseURL := candidates[attempt%len(candidates)]

		topics, err := s.remote.FetchTopics(ctx, baseURL, network)
		metrics.TopicFetchAttempts.WithLabelValues(network.String(), outcome(err)).Inc()
		if err != nil {
			s.log.Debugw("Topics attempt failed",
				"network", network,
				"attempt", attempt+1,
				"candidate", baseURL,
				"error", err,
			)
			return err
		}

		result = topics
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrBackendUnreachable, err)
	}
	return result, nil
}

func (s *Service) dispatch(ctx context.Context, t events.Type, id uint64, network topic.Network, payload interface{}) {
	e := events.New(t, payload)
	e.RequestID = id
	e.Network = network.String()

	metrics.EventsDispatched.WithLabelValues(string(t)).Inc()
	s.dispatcher.Dispatch(ctx, e)
}

// outcome labels an attempt for the attempts counter
func outcome(err error) string {
	if err == nil {
		return "success"
	}

	var httpErr *errors.HTTPStatusError
	switch {
	case errors.As(err, &httpErr):
		return "http_error"
	case errors.Is(err, errors.ErrMalformedResponse):
		return "malformed"
	}
	return "transport"
}
