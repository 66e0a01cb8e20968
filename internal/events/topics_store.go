package events

import (
	"context"
	"sync"
	"time"

	"govdash/internal/domain/topic"
	"govdash/pkg/logger"
)

// SnapshotArchive persists successful topic fetches
type SnapshotArchive interface {
	SaveSnapshot(ctx context.Context, network topic.Network, requestID uint64, topics topic.Topics, fetchedAt time.Time) error
}

// TopicsState is what the dashboard knows about one network's topics
type TopicsState struct {
	Network   topic.Network `json:"network"`
	Fetching  bool          `json:"fetching"`
	Topics    topic.Topics  `json:"topics"`
	Error     string        `json:"error,omitempty"`
	RequestID uint64        `json:"request_id"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// TopicsStore folds topics events into per-network state.
//
// FetchTopics has no cancellation between invocations, so two overlapping
// calls for one network may finish in any order. The store keeps the newest
// REQUEST id per network and drops terminal events from older requests.
type TopicsStore struct {
	mu      sync.RWMutex
	newest  map[topic.Network]uint64
	state   map[topic.Network]*TopicsState
	archive SnapshotArchive
	log     *logger.Logger
}

// NewTopicsStore creates a store; archive may be nil
func NewTopicsStore(archive SnapshotArchive, log *logger.Logger) *TopicsStore {
	return &TopicsStore{
		newest:  make(map[topic.Network]uint64),
		state:   make(map[topic.Network]*TopicsState),
		archive: archive,
		log:     log.With("component", "topics_store"),
	}
}

func (s *TopicsStore) Dispatch(ctx context.Context, e Event) {
	if e.Type != TopicsRequest && !e.Type.Terminal() {
		return
	}

	network, err := topic.ParseNetwork(e.Network)
	if err != nil {
		s.log.Warnw("Topics event for unknown network", "network", e.Network, "type", e.Type)
		return
	}

	saved, ok := s.apply(network, e)
	if !ok {
		s.log.Debugw("Discarding stale topics result",
			"network", network,
			"request_id", e.RequestID,
			"type", e.Type,
		)
		return
	}

	// the publishing instance archives its own results
	if saved != nil && s.archive != nil && !e.Relayed {
		if err := s.archive.SaveSnapshot(ctx, network, e.RequestID, saved, e.At); err != nil {
			s.log.Errorw("Failed to archive topics snapshot", "network", network, "error", err)
		}
	}
}

// apply updates state under the lock and returns the topics to archive
func (s *TopicsStore) apply(network topic.Network, e Event) (topic.Topics, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.state[network]
	if !ok {
		st = &TopicsState{Network: network}
		s.state[network] = st
	}

	if e.Type == TopicsRequest {
		if e.RequestID < s.newest[network] {
			return nil, false
		}
		s.newest[network] = e.RequestID
		st.Fetching = true
		st.RequestID = e.RequestID
		st.UpdatedAt = e.At
		return nil, true
	}

	if e.RequestID < s.newest[network] {
		return nil, false
	}

	st.Fetching = false
	st.RequestID = e.RequestID
	st.UpdatedAt = e.At

	switch p := e.Payload.(type) {
	case topic.Topics:
		st.Topics = p
		st.Error = ""
		return p, true
	case FailurePayload:
		st.Error = p.Error
	default:
		st.Error = "unexpected payload"
	}
	return nil, true
}

// Seed installs a previously archived feed as the current state. It is a
// no-op once the network has seen a fetch with the same or a newer id.
func (s *TopicsStore) Seed(network topic.Network, requestID uint64, topics topic.Topics, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.state[network]; ok && s.newest[network] >= requestID {
		return false
	}
	s.newest[network] = requestID
	s.state[network] = &TopicsState{
		Network:   network,
		Topics:    topics,
		RequestID: requestID,
		UpdatedAt: at,
	}
	return true
}

// Get returns a copy of the state for network
func (s *TopicsStore) Get(network topic.Network) (TopicsState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.state[network]
	if !ok {
		return TopicsState{Network: network}, false
	}
	return *st, true
}
