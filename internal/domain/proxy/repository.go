package proxy

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines storage for proxy setup sessions
type Repository interface {
	// Get retrieves a session, ErrSessionNotFound if missing or expired
	Get(ctx context.Context, id uuid.UUID) (*Session, error)

	// Save stores a session with TTL
	Save(ctx context.Context, session *Session, ttl time.Duration) error

	// Delete removes a session
	Delete(ctx context.Context, id uuid.UUID) error
}
