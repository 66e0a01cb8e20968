package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"govdash/internal/domain/proxy"
	"govdash/pkg/errors"
)

// ProxySessionKeyPrefix prefixes every proxy setup session key
const ProxySessionKeyPrefix = "proxy_setup:"

// ProxySessionRepository implements proxy.Repository using Redis
type ProxySessionRepository struct {
	client *redis.Client
}

// NewProxySessionRepository creates a new proxy session repository
func NewProxySessionRepository(client *redis.Client) *ProxySessionRepository {
	return &ProxySessionRepository{
		client: client,
	}
}

// Get retrieves a session by id
func (r *ProxySessionRepository) Get(ctx context.Context, id uuid.UUID) (*proxy.Session, error) {
	data, err := r.client.Get(ctx, r.getKey(id)).Bytes()
	if err == redis.Nil {
		return nil, errors.Wrapf(errors.ErrSessionNotFound, "session_id=%s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get proxy session from redis: session_id=%s", id)
	}

	var session proxy.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal proxy session: session_id=%s", id)
	}

	return &session, nil
}

// Save stores a session with TTL
func (r *ProxySessionRepository) Save(ctx context.Context, session *proxy.Session, ttl time.Duration) error {
	data, err := json.Marshal(session)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal proxy session: session_id=%s", session.ID)
	}

	if err := r.client.Set(ctx, r.getKey(session.ID), data, ttl).Err(); err != nil {
		return errors.Wrapf(err, "failed to save proxy session to redis: session_id=%s", session.ID)
	}

	return nil
}

// Delete removes a session
func (r *ProxySessionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.client.Del(ctx, r.getKey(id)).Err(); err != nil {
		return errors.Wrapf(err, "failed to delete proxy session from redis: session_id=%s", id)
	}

	return nil
}

func (r *ProxySessionRepository) getKey(id uuid.UUID) string {
	return ProxySessionKeyPrefix + id.String()
}
