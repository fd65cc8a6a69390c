// Package transport is the sole point of contact with the network. It
// executes a single HTTP exchange and always returns a normalized
// ResponseEnvelope, even when the exchange fails at the transport level.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for transport operations.
var (
	canvasRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "canvas_requests_total",
		Help: "Total Canvas API exchanges by method and status",
	}, []string{"method", "status"})

	canvasRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "canvas_request_duration_seconds",
		Help:    "Canvas API exchange duration in seconds by method",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"method"})

	canvasTransportFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "canvas_transport_failures_total",
		Help: "Total exchanges that never produced an HTTP response",
	})
)

// RequestConfig describes one HTTP exchange. It is immutable once
// constructed; a retry resubmits the same RequestConfig unchanged.
type RequestConfig struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    any
}

// NewRequest builds a RequestConfig carrying a bearer credential and a
// JSON content type. Callers that need extra headers add them before
// first submission, never after.
func NewRequest(method, url, token string, body any) *RequestConfig {
	headers := map[string]string{
		"Content-Type": "application/json",
		"Accept":       "application/json",
	}
	if token != "" {
		headers["Authorization"] = "Bearer " + token
	}
	return &RequestConfig{
		URL:     url,
		Method:  method,
		Headers: headers,
		Body:    body,
	}
}

// ResponseEnvelope is the normalized result of one exchange. Status 0
// means the exchange never produced an HTTP response (network error,
// unreachable host); Data is the decoded JSON body when the server sent
// one, Raw the undecoded bytes.
type ResponseEnvelope struct {
	Status  int
	Headers map[string]string
	Data    any
	Raw     []byte
}

// TransportFailed reports whether the exchange failed before an HTTP
// response was produced.
func (e *ResponseEnvelope) TransportFailed() bool {
	return e.Status == 0
}

// OK reports whether the response carries a 2xx status.
func (e *ResponseEnvelope) OK() bool {
	return e.Status >= 200 && e.Status < 300
}

// Header returns the value of a header by its lower-cased name.
func (e *ResponseEnvelope) Header(name string) string {
	return e.Headers[strings.ToLower(name)]
}

// Transport executes one HTTP exchange. Implementations must never
// return a fault: every failure is converted into an envelope with
// Status 0 so the scheduler above only ever sees envelopes.
type Transport interface {
	Exchange(ctx context.Context, cfg *RequestConfig) *ResponseEnvelope
}

// HTTPTransport is the production Transport over net/http.
type HTTPTransport struct {
	client *http.Client
	logger zerolog.Logger
}

// NewHTTPTransport creates a transport with a 30 second per-exchange timeout.
func NewHTTPTransport() *HTTPTransport {
	return &HTTPTransport{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: log.With().Str("component", "transport").Logger(),
	}
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (t *HTTPTransport) SetHTTPClient(client *http.Client) {
	t.client = client
}

// Exchange performs the HTTP exchange described by cfg.
func (t *HTTPTransport) Exchange(ctx context.Context, cfg *RequestConfig) *ResponseEnvelope {
	startTime := time.Now()
	defer func() {
		canvasRequestDuration.WithLabelValues(cfg.Method).Observe(time.Since(startTime).Seconds())
	}()

	var bodyReader io.Reader
	if cfg.Body != nil {
		payload, err := json.Marshal(cfg.Body)
		if err != nil {
			t.logger.Error().Err(err).Str("url", cfg.URL).Msg("Request body marshal failed")
			return t.failureEnvelope(cfg)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, cfg.Method, cfg.URL, bodyReader)
	if err != nil {
		t.logger.Error().Err(err).Str("url", cfg.URL).Msg("Request construction failed")
		return t.failureEnvelope(cfg)
	}
	for name, value := range cfg.Headers {
		req.Header.Set(name, value)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		t.logger.Error().Err(err).
			Str("method", cfg.Method).
			Str("url", cfg.URL).
			Msg("HTTP exchange failed")
		return t.failureEnvelope(cfg)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.logger.Error().Err(err).Str("url", cfg.URL).Msg("Response body read failed")
		return t.failureEnvelope(cfg)
	}

	canvasRequestsTotal.WithLabelValues(cfg.Method, fmt.Sprintf("%d", resp.StatusCode)).Inc()

	return &ResponseEnvelope{
		Status:  resp.StatusCode,
		Headers: lowerHeaders(resp.Header),
		Data:    decodeBody(raw),
		Raw:     raw,
	}
}

// failureEnvelope converts a transport-level fault into an envelope with
// absent status, headers and data. Faults never escape the transport.
func (t *HTTPTransport) failureEnvelope(cfg *RequestConfig) *ResponseEnvelope {
	canvasTransportFailuresTotal.Inc()
	canvasRequestsTotal.WithLabelValues(cfg.Method, "transport_error").Inc()
	return &ResponseEnvelope{Headers: map[string]string{}}
}

// lowerHeaders flattens an http.Header into a map keyed by lower-cased
// header name. Multi-valued headers keep their first value.
func lowerHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		if len(values) > 0 {
			out[strings.ToLower(name)] = values[0]
		}
	}
	return out
}

// decodeBody parses the response body as JSON. A body that is not valid
// JSON yields nil Data; callers still see the raw bytes.
func decodeBody(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil
	}
	return data
}
