package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"govdash/internal/domain/proxy"
	"govdash/pkg/errors"
)

type entry struct {
	data      []byte
	expiresAt time.Time
}

// ProxySessionRepository implements proxy.Repository in process memory.
// Sessions are stored serialized so callers never share state.
type ProxySessionRepository struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]entry
	now      func() time.Time
}

func NewProxySessionRepository() *ProxySessionRepository {
	return &ProxySessionRepository{
		sessions: make(map[uuid.UUID]entry),
		now:      time.Now,
	}
}

func (r *ProxySessionRepository) Get(_ context.Context, id uuid.UUID) (*proxy.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[id]
	if !ok || (!e.expiresAt.IsZero() && r.now().After(e.expiresAt)) {
		delete(r.sessions, id)
		return nil, errors.Wrapf(errors.ErrSessionNotFound, "session_id=%s", id)
	}

	var session proxy.Session
	if err := json.Unmarshal(e.data, &session); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal proxy session: session_id=%s", id)
	}
	return &session, nil
}

// Save stores a session; a zero ttl keeps it until deleted
func (r *ProxySessionRepository) Save(_ context.Context, session *proxy.Session, ttl time.Duration) error {
	data, err := json.Marshal(session)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal proxy session: session_id=%s", session.ID)
	}

	e := entry{data: data}
	if ttl > 0 {
		e.expiresAt = r.now().Add(ttl)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = e
	return nil
}

func (r *ProxySessionRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return nil
}
