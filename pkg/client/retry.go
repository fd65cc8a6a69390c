package client

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/campusops/canvas-client/pkg/transport"
)

// Prometheus metrics for retry operations.
var (
	canvasRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "canvas_rate_limit_retries_total",
		Help: "Total resubmissions triggered by rate-limit rejections",
	})

	canvasRetryBackoffSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "canvas_retry_backoff_seconds",
		Help:    "Backoff duration before rate-limit resubmissions",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})

	canvasRetryExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "canvas_retry_exhausted_total",
		Help: "Total requests abandoned after the retry ceiling",
	})

	canvasErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "canvas_errors_total",
		Help: "Total failed exchanges by class",
	}, []string{"class"})
)

// Process submits cfg through the scheduler and applies the rate-limit
// retry policy. It returns nil when the request ultimately failed: after
// the retry ceiling, on a non-retriable rejection, or on a transport
// failure. A nil result is a per-request outcome, never a fault.
//
// The loop is explicit and bounded so an adversarial rate-limit storm
// costs no stack depth.
func (c *Client) Process(ctx context.Context, cfg *transport.RequestConfig, ledger *RetryLedger) *transport.ResponseEnvelope {
	for {
		env := c.scheduler.Submit(ctx, cfg)

		if env.TransportFailed() {
			canvasErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			c.logger.Error().
				Str("url", cfg.URL).
				Str("method", cfg.Method).
				Msg("Transport failure, request dropped")
			return nil
		}

		if isRateLimited(env) {
			attempt := ledger.Bump(cfg.URL)
			if attempt > MaxRateLimitRetries {
				canvasRetryExhaustedTotal.Inc()
				canvasErrorsTotal.WithLabelValues(string(ErrorClassRateLimit)).Inc()
				c.logger.Warn().
					Str("url", cfg.URL).
					Int("attempts", attempt-1).
					Msg("Rate-limit retries exhausted, request abandoned")
				return nil
			}

			delay := backoffDelay(env.Headers)
			canvasRetriesTotal.Inc()
			canvasRetryBackoffSeconds.Observe(delay.Seconds())
			c.logger.Debug().
				Str("url", cfg.URL).
				Int("attempt", attempt).
				Dur("backoff", delay).
				Str("remaining", env.Header("x-rate-limit-remaining")).
				Msg("Rate limited, resubmitting after backoff")

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				c.logger.Warn().Str("url", cfg.URL).Msg("Context done during backoff")
				return nil
			}
			continue
		}

		if class := classify(env); class == ErrorClassForbidden || class == ErrorClassClient || class == ErrorClassServer {
			canvasErrorsTotal.WithLabelValues(string(class)).Inc()
			c.logger.Warn().
				Str("url", cfg.URL).
				Int("status", env.Status).
				Str("class", string(class)).
				Str("message", serverMessage(env)).
				Msg("Non-retriable error response")
			return nil
		}

		return env
	}
}

// backoffDelay computes the resubmission delay from the rejecting
// response's budget headers. Given remaining budget R and request cost C:
//
//	R < 0:               |R| * 150ms   (already overdrawn)
//	R > 0 and C present: ceil((300/R) * 500 * C) ms
//	otherwise:           1000ms
//
// The result is a heuristic; the retry loop re-checks the response on
// every attempt regardless of how long it waited.
func backoffDelay(headers map[string]string) time.Duration {
	remaining, okR := parseFloatHeader(headers, "x-rate-limit-remaining")
	cost, okC := parseFloatHeader(headers, "x-request-cost")

	switch {
	case okR && remaining < 0:
		return time.Duration(math.Abs(remaining)*150) * time.Millisecond
	case okR && okC && remaining > 0:
		return time.Duration(math.Ceil(300/remaining*500*cost)) * time.Millisecond
	default:
		return time.Second
	}
}

func parseFloatHeader(headers map[string]string, name string) (float64, bool) {
	raw, ok := headers[name]
	if !ok {
		return 0, false
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}
