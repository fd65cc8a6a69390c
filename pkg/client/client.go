// Package client provides the core Canvas HTTP client: request
// scheduling through the shared rate limiter, the rate-limit retry
// policy, and the caller-facing single-request and batch operations.
package client

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/campusops/canvas-client/pkg/ratelimit"
	"github.com/campusops/canvas-client/pkg/scheduler"
	"github.com/campusops/canvas-client/pkg/transport"
)

// Client is the main Canvas API client. One Client owns one Scheduler;
// every logical operation issued through it shares that scheduler's
// concurrency and spacing budget.
type Client struct {
	scheduler *scheduler.Scheduler
	tracker   *ratelimit.Tracker
	config    Config
	logger    zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the Canvas instance root, e.g. "https://school.instructure.com".
	BaseURL string

	// Token is the bearer credential attached to every request.
	Token string

	// Redis client for cross-process budget state. Optional.
	Redis *redis.Client

	// MaxConcurrent is the maximum simultaneous in-flight exchanges.
	MaxConcurrent int

	// MinSpacing is the minimum gap between exchange starts.
	MinSpacing time.Duration

	// Transport overrides the production HTTP transport (for testing).
	Transport transport.Transport
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL, token string) Config {
	return Config{
		BaseURL:       baseURL,
		Token:         token,
		MaxConcurrent: 10,
		MinSpacing:    200 * time.Millisecond,
	}
}

// New creates a new Canvas client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("access token is required")
	}

	logger := log.With().Str("component", "canvas-client").Logger()

	tr := cfg.Transport
	if tr == nil {
		tr = transport.NewHTTPTransport()
	}

	tracker := ratelimit.NewTracker(cfg.Redis, logger)

	sched := scheduler.New(tr, tracker, scheduler.Config{
		MaxConcurrent: cfg.MaxConcurrent,
		MinSpacing:    cfg.MinSpacing,
	})

	return &Client{
		scheduler: sched,
		tracker:   tracker,
		config:    cfg,
		logger:    logger,
	}, nil
}

// NewRequest builds an authorized request for a full URL or an
// instance-relative endpoint like "/api/v1/courses".
func (c *Client) NewRequest(method, url string, body any) *transport.RequestConfig {
	if strings.HasPrefix(url, "/") {
		url = c.config.BaseURL + url
	}
	return transport.NewRequest(method, url, c.config.Token, body)
}

// Do performs a single request with a fresh retry ledger. A nil result
// means the request failed after exhausting its retry budget or hit a
// non-retriable error.
func (c *Client) Do(ctx context.Context, cfg *transport.RequestConfig) *transport.ResponseEnvelope {
	return c.Process(ctx, cfg, NewRetryLedger())
}

// Get performs a GET against an instance-relative endpoint.
func (c *Client) Get(ctx context.Context, endpoint string) *transport.ResponseEnvelope {
	return c.Do(ctx, c.NewRequest("GET", endpoint, nil))
}

// DoBatch runs a heterogeneous set of requests concurrently through the
// shared scheduler. All requests share the caller's ledger; results are
// positional, nil marking the requests that failed.
func (c *Client) DoBatch(ctx context.Context, cfgs []*transport.RequestConfig, ledger *RetryLedger) []*transport.ResponseEnvelope {
	if ledger == nil {
		ledger = NewRetryLedger()
	}

	results := make([]*transport.ResponseEnvelope, len(cfgs))
	var wg sync.WaitGroup
	for i, cfg := range cfgs {
		wg.Add(1)
		go func(i int, cfg *transport.RequestConfig) {
			defer wg.Done()
			results[i] = c.Process(ctx, cfg, ledger)
		}(i, cfg)
	}
	wg.Wait()

	return results
}

// Tracker returns the budget tracker.
func (c *Client) Tracker() *ratelimit.Tracker {
	return c.tracker
}

// BaseURL returns the configured Canvas instance root.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}
