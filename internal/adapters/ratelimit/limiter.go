package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"govdash/pkg/errors"
)

// Limiter paces calls to a single upstream
type Limiter struct {
	limiter *rate.Limiter
	name    string
}

// NewLimiter creates a new rate limiter
// requestsPerMinute: maximum number of requests allowed per minute
func NewLimiter(name string, requestsPerMinute int) *Limiter {
	// Convert to requests per second
	rps := float64(requestsPerMinute) / 60.0

	// Allow burst of 10% of per-minute limit
	burst := requestsPerMinute / 10
	if burst < 1 {
		burst = 1
	}

	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		name:    name,
	}
}

// Wait blocks until the rate limiter allows the request
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return errors.Wrapf(err, "rate limiter %s", l.name)
	}
	return nil
}

// Allow checks if a request is allowed without blocking
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}

// HostLimiters keeps one limiter per backend host, created on first use.
// A non-positive rate disables limiting.
type HostLimiters struct {
	mu                sync.Mutex
	limiters          map[string]*Limiter
	requestsPerMinute int
}

func NewHostLimiters(requestsPerMinute int) *HostLimiters {
	return &HostLimiters{
		limiters:          make(map[string]*Limiter),
		requestsPerMinute: requestsPerMinute,
	}
}

// Wait blocks until host may be called again
func (h *HostLimiters) Wait(ctx context.Context, host string) error {
	if h == nil || h.requestsPerMinute <= 0 {
		return nil
	}
	return h.get(host).Wait(ctx)
}

func (h *HostLimiters) get(host string) *Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()

	l, ok := h.limiters[host]
	if !ok {
		l = NewLimiter(host, h.requestsPerMinute)
		h.limiters[host] = l
	}
	return l
}
