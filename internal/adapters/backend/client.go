package backend

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"govdash/internal/adapters/ratelimit"
	"govdash/internal/domain/topic"
	"govdash/pkg/errors"
	"govdash/pkg/logger"
)

const (
	maxBodyBytes  = 8 << 20
	maxErrorBytes = 512
)

// ClientConfig configures the governance content backend client
type ClientConfig struct {
	TopicsPath string
	Timeout    time.Duration
	Limiters   *ratelimit.HostLimiters
	HTTPClient *http.Client
}

// Client fetches topic feeds from one backend base URL per call
type Client struct {
	http     *http.Client
	path     string
	limiters *ratelimit.HostLimiters
	log      *logger.Logger
}

func NewClient(cfg ClientConfig, log *logger.Logger) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	path := cfg.TopicsPath
	if path == "" {
		path = "/topics"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	return &Client{
		http:     hc,
		path:     path,
		limiters: cfg.Limiters,
		log:      log.With("component", "backend_client"),
	}
}

// TopicsURL builds the request URL for a candidate base URL
func (c *Client) TopicsURL(baseURL string, network topic.Network) (*url.URL, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + c.path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "backend url %q: %v", baseURL, err)
	}
	q := u.Query()
	q.Set("network", network.String())
	u.RawQuery = q.Encode()
	return u, nil
}

// FetchTopics performs a single GET against baseURL. Statuses outside 2xx
// return *errors.HTTPStatusError; undecodable or invalid bodies return an
// error wrapping ErrMalformedResponse.
func (c *Client) FetchTopics(ctx context.Context, baseURL string, network topic.Network) (topic.Topics, error) {
	u, err := c.TopicsURL(baseURL, network)
	if err != nil {
		return nil, err
	}

	if err := c.limiters.Wait(ctx, u.Host); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "GET %s", u.Redacted())
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBytes))
		return nil, &errors.HTTPStatusError{
			Code:   res.StatusCode,
			Status: res.Status,
			Body:   strings.TrimSpace(string(body)),
		}
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}

	topics, err := topic.Decode(body)
	if err != nil {
		c.log.Debugw("Backend returned malformed topics",
			"url", u.Redacted(),
			"error", err,
		)
		return nil, err
	}
	return topics, nil
}
