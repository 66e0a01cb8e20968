package proxy

import (
	"time"

	"github.com/google/uuid"

	"govdash/internal/domain/topic"
)

// Session is one open proxy setup modal
type Session struct {
	ID        uuid.UUID     `json:"id"`
	Network   topic.Network `json:"network"`
	State     State         `json:"state"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// NewSession creates a session on the intro screen
func NewSession(network topic.Network) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        uuid.New(),
		Network:   network,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Machine rebuilds the step machine from the stored state
func (s *Session) Machine() (*Machine, error) {
	return Restore(s.State)
}

// Apply stores the machine's state back on the session
func (s *Session) Apply(m *Machine) {
	s.State = m.State()
	s.UpdatedAt = time.Now().UTC()
}
