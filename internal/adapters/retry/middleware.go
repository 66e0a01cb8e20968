package retry

import (
	"context"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	"govdash/pkg/errors"
)

// Strategy defines the retry strategy
type Strategy string

const (
	// StrategyExponential uses exponential backoff
	StrategyExponential Strategy = "exponential"
	// StrategyLinear uses linear backoff
	StrategyLinear Strategy = "linear"
	// StrategyFixed uses fixed delay
	StrategyFixed Strategy = "fixed"
)

// Classifier decides whether a failed attempt is worth another try
type Classifier func(err error) bool

// Config contains retry configuration
type Config struct {
	MaxAttempts  int
	InitialDelay time.Duration // zero retries immediately
	MaxDelay     time.Duration
	Strategy     Strategy
	Multiplier   float64 // For exponential backoff
	Retryable    Classifier
}

// Middleware runs a function until it succeeds, fails permanently or runs
// out of attempts
type Middleware struct {
	config Config
}

// New creates a new retry middleware
func New(config Config) *Middleware {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 4
	}
	if config.InitialDelay < 0 {
		config.InitialDelay = 0
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 5 * time.Second
	}
	if config.Multiplier <= 0 {
		config.Multiplier = 2.0
	}
	if config.Strategy == "" {
		config.Strategy = StrategyExponential
	}
	if config.Retryable == nil {
		config.Retryable = IsRetryable
	}

	return &Middleware{config: config}
}

// Do calls fn with a zero-based attempt number until it returns nil. The
// last error is returned wrapped once attempts are exhausted; a
// non-retryable error or a cancelled ctx stops early.
func (m *Middleware) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	var lastErr error

	for attempt := 0; attempt < m.config.MaxAttempts; attempt++ {
		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}

		lastErr = err

		if ctx.Err() != nil {
			return errors.Wrap(lastErr, "retry cancelled")
		}
		if !m.config.Retryable(err) {
			return err
		}

		// Don't sleep after last attempt
		if attempt == m.config.MaxAttempts-1 {
			break
		}

		if err := m.sleep(ctx, m.calculateDelay(attempt)); err != nil {
			return errors.Wrap(lastErr, "retry cancelled")
		}
	}

	return errors.Wrapf(lastErr, "gave up after %d attempts", m.config.MaxAttempts)
}

// sleep waits for delay with context cancellation support
func (m *Middleware) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// calculateDelay calculates the backoff delay based on the strategy
func (m *Middleware) calculateDelay(attempt int) time.Duration {
	var delay time.Duration

	switch m.config.Strategy {
	case StrategyExponential:
		// Exponential: delay = initial * (multiplier ^ attempt)
		delay = time.Duration(float64(m.config.InitialDelay) * math.Pow(m.config.Multiplier, float64(attempt)))

	case StrategyLinear:
		// Linear: delay = initial * (1 + attempt)
		delay = m.config.InitialDelay * time.Duration(1+attempt)

	default:
		delay = m.config.InitialDelay
	}

	// Cap at max delay
	if delay > m.config.MaxDelay {
		delay = m.config.MaxDelay
	}

	return delay
}

// Always retries every error. Per-attempt timeouts surface as
// context.DeadlineExceeded too, so the caller's own cancellation is left to
// Do, which checks ctx after every attempt.
func Always(err error) bool {
	return err != nil
}

// IsRetryable determines if an error is worth retrying against the same host
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Context errors are not retryable
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// Network timeouts are retryable
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	// HTTP status codes that are retryable
	var httpErr interface{ StatusCode() int }
	if errors.As(err, &httpErr) {
		code := httpErr.StatusCode()
		return code == http.StatusTooManyRequests ||
			code == http.StatusRequestTimeout ||
			code >= 500
	}

	errStr := strings.ToLower(err.Error())
	for _, msg := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"no such host",
		"timeout",
		"temporary failure",
		"too many requests",
	} {
		if strings.Contains(errStr, msg) {
			return true
		}
	}

	return false
}
