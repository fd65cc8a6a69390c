// Package scheduler admits HTTP exchanges under two process-wide
// constraints: a maximum number of in-flight exchanges and a minimum
// spacing between exchange start times. One Scheduler instance is meant
// to be shared by every logical operation in the process; it is the
// single point enforcing the server-side rate budget.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/campusops/canvas-client/pkg/ratelimit"
	"github.com/campusops/canvas-client/pkg/transport"
)

// Prometheus metrics for scheduler admission control.
var (
	canvasInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "canvas_exchanges_in_flight",
		Help: "Number of exchanges currently outstanding",
	})

	canvasSubmittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "canvas_exchanges_submitted_total",
		Help: "Total exchanges submitted to the scheduler",
	})

	canvasSpacingWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "canvas_spacing_wait_seconds",
		Help:    "Time spent waiting for the minimum inter-request spacing",
		Buckets: []float64{0.01, 0.05, 0.1, 0.2, 0.5, 1, 2},
	})
)

// Config holds scheduler admission parameters.
type Config struct {
	// MaxConcurrent is the maximum number of simultaneous exchanges.
	MaxConcurrent int

	// MinSpacing is the minimum gap between successive exchange starts.
	MinSpacing time.Duration
}

// DefaultConfig returns the default admission parameters.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent: 10,
		MinSpacing:    200 * time.Millisecond,
	}
}

// Scheduler serializes admission of exchanges onto a Transport. Ordering
// is first-submitted, first-admitted; no priority lanes exist.
type Scheduler struct {
	transport transport.Transport
	tracker   *ratelimit.Tracker
	sem       semaphore
	cfg       Config
	logger    zerolog.Logger

	mu        sync.Mutex
	nextStart time.Time
}

// New creates a scheduler over the given transport. tracker may be nil
// when budget observation is not wanted.
func New(t transport.Transport, tracker *ratelimit.Tracker, cfg Config) *Scheduler {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 10
	}
	if cfg.MinSpacing <= 0 {
		cfg.MinSpacing = 200 * time.Millisecond
	}

	return &Scheduler{
		transport: t,
		tracker:   tracker,
		sem:       newSemaphore(cfg.MaxConcurrent),
		cfg:       cfg,
		logger:    log.With().Str("component", "scheduler").Logger(),
	}
}

// Submit admits one exchange and blocks until its envelope is available.
// At any instant at most MaxConcurrent exchanges are outstanding and no
// two exchanges start closer together than MinSpacing.
func (s *Scheduler) Submit(ctx context.Context, cfg *transport.RequestConfig) *transport.ResponseEnvelope {
	canvasSubmittedTotal.Inc()

	if err := s.sem.acquire(ctx); err != nil {
		s.logger.Warn().Err(err).Str("url", cfg.URL).Msg("Admission aborted before start")
		return &transport.ResponseEnvelope{Headers: map[string]string{}}
	}
	defer s.sem.release()

	canvasInFlight.Inc()
	defer canvasInFlight.Dec()

	s.pace(ctx)

	env := s.transport.Exchange(ctx, cfg)

	if s.tracker != nil && !env.TransportFailed() {
		s.tracker.Observe(ctx, env.Headers)
	}

	return env
}

// InFlight returns the number of exchanges currently outstanding.
func (s *Scheduler) InFlight() int {
	return s.sem.inUse()
}

// pace reserves the next start slot and sleeps until it arrives. The
// reservation is made under the lock so concurrent submitters observe
// strictly increasing start times MinSpacing apart.
func (s *Scheduler) pace(ctx context.Context) {
	s.mu.Lock()
	now := time.Now()
	start := s.nextStart
	if start.Before(now) {
		start = now
	}
	s.nextStart = start.Add(s.cfg.MinSpacing)
	s.mu.Unlock()

	wait := time.Until(start)
	if wait <= 0 {
		return
	}

	canvasSpacingWaitSeconds.Observe(wait.Seconds())
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
