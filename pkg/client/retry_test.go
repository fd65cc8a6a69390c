package client

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/campusops/canvas-client/pkg/transport"
)

// scriptedTransport returns queued envelopes per URL, falling back to
// the last one when the queue runs dry.
type scriptedTransport struct {
	mu        sync.Mutex
	responses map[string][]*transport.ResponseEnvelope
	calls     map[string]int
}

func newScriptedTransport() *scriptedTransport {
	return &scriptedTransport{
		responses: make(map[string][]*transport.ResponseEnvelope),
		calls:     make(map[string]int),
	}
}

func (s *scriptedTransport) script(url string, envs ...*transport.ResponseEnvelope) {
	s.responses[url] = envs
}

func (s *scriptedTransport) Exchange(ctx context.Context, cfg *transport.RequestConfig) *transport.ResponseEnvelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[cfg.URL]++
	queue := s.responses[cfg.URL]
	if len(queue) == 0 {
		return &transport.ResponseEnvelope{Status: 200, Headers: map[string]string{}}
	}
	env := queue[0]
	if len(queue) > 1 {
		s.responses[cfg.URL] = queue[1:]
	}
	return env
}

func (s *scriptedTransport) callCount(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[url]
}

// rateLimitedEnvelope builds a 403 rejection with budget headers tuned
// so the computed backoff stays around a millisecond.
func rateLimitedEnvelope() *transport.ResponseEnvelope {
	return &transport.ResponseEnvelope{
		Status: 403,
		Headers: map[string]string{
			"x-rate-limit-remaining": "300",
			"x-request-cost":         "0.001",
		},
		Raw: []byte("403 Forbidden (Rate Limit Exceeded)"),
	}
}

func newTestClient(t *testing.T, tr transport.Transport) *Client {
	t.Helper()
	c, err := New(Config{
		BaseURL:       "https://canvas.example.com",
		Token:         "test-token",
		MaxConcurrent: 10,
		MinSpacing:    time.Millisecond,
		Transport:     tr,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestProcess_Passthrough(t *testing.T) {
	tr := newScriptedTransport()
	url := "https://canvas.example.com/api/v1/courses"
	tr.script(url, &transport.ResponseEnvelope{
		Status:  200,
		Headers: map[string]string{},
		Data:    []any{map[string]any{"id": float64(1)}},
	})

	c := newTestClient(t, tr)
	env := c.Process(context.Background(), c.NewRequest("GET", url, nil), NewRetryLedger())

	if env == nil {
		t.Fatal("Process returned nil for a successful exchange")
	}
	if env.Status != 200 {
		t.Errorf("Status = %d, want 200", env.Status)
	}
	if tr.callCount(url) != 1 {
		t.Errorf("call count = %d, want 1", tr.callCount(url))
	}
}

func TestProcess_RetriesThenSucceeds(t *testing.T) {
	tr := newScriptedTransport()
	url := "https://canvas.example.com/api/v1/courses"
	tr.script(url,
		rateLimitedEnvelope(),
		rateLimitedEnvelope(),
		&transport.ResponseEnvelope{Status: 200, Headers: map[string]string{}},
	)

	c := newTestClient(t, tr)
	ledger := NewRetryLedger()
	env := c.Process(context.Background(), c.NewRequest("GET", url, nil), ledger)

	if env == nil {
		t.Fatal("Process returned nil, want eventual success")
	}
	if env.Status != 200 {
		t.Errorf("Status = %d, want 200", env.Status)
	}
	if got := ledger.Count(url); got != 2 {
		t.Errorf("ledger count = %d, want 2", got)
	}
	if tr.callCount(url) != 3 {
		t.Errorf("call count = %d, want 3", tr.callCount(url))
	}
}

func TestProcess_RetryCeiling(t *testing.T) {
	tr := newScriptedTransport()
	url := "https://canvas.example.com/api/v1/courses"
	// Every attempt is rejected; the queue fallback repeats the last entry.
	tr.script(url, rateLimitedEnvelope())

	c := newTestClient(t, tr)
	ledger := NewRetryLedger()
	env := c.Process(context.Background(), c.NewRequest("GET", url, nil), ledger)

	if env != nil {
		t.Errorf("Process = %v, want nil after exhausting retries", env)
	}
	if got := ledger.Count(url); got != MaxRateLimitRetries+1 {
		t.Errorf("ledger count = %d, want %d", got, MaxRateLimitRetries+1)
	}
	// Initial attempt plus MaxRateLimitRetries resubmissions.
	if got := tr.callCount(url); got != MaxRateLimitRetries+1 {
		t.Errorf("call count = %d, want %d", got, MaxRateLimitRetries+1)
	}
}

func TestProcess_PlainForbiddenNotRetried(t *testing.T) {
	tr := newScriptedTransport()
	url := "https://canvas.example.com/api/v1/courses"
	tr.script(url, &transport.ResponseEnvelope{
		Status:  403,
		Headers: map[string]string{},
		Data:    map[string]any{"message": "user not authorized"},
	})

	c := newTestClient(t, tr)
	ledger := NewRetryLedger()
	env := c.Process(context.Background(), c.NewRequest("GET", url, nil), ledger)

	if env != nil {
		t.Error("Process should return nil for a non-marker 403")
	}
	if got := ledger.Count(url); got != 0 {
		t.Errorf("ledger count = %d, want 0 for non-retriable error", got)
	}
	if tr.callCount(url) != 1 {
		t.Errorf("call count = %d, want 1", tr.callCount(url))
	}
}

func TestProcess_TransportFailureNotRetried(t *testing.T) {
	tr := newScriptedTransport()
	url := "https://canvas.example.com/api/v1/courses"
	tr.script(url, &transport.ResponseEnvelope{Headers: map[string]string{}})

	c := newTestClient(t, tr)
	env := c.Process(context.Background(), c.NewRequest("GET", url, nil), NewRetryLedger())

	if env != nil {
		t.Error("Process should return nil for a transport failure")
	}
	if tr.callCount(url) != 1 {
		t.Errorf("call count = %d, want 1 (never retried)", tr.callCount(url))
	}
}

func TestBackoffDelay(t *testing.T) {
	tests := []struct {
		name     string
		headers  map[string]string
		expected time.Duration
	}{
		{
			name: "negative remaining scales with overdraft",
			headers: map[string]string{
				"x-rate-limit-remaining": "-10",
			},
			expected: 1500 * time.Millisecond,
		},
		{
			name: "positive remaining with cost",
			headers: map[string]string{
				"x-rate-limit-remaining": "300",
				"x-request-cost":         "1",
			},
			expected: 500 * time.Millisecond,
		},
		{
			name: "small remaining grows the delay",
			headers: map[string]string{
				"x-rate-limit-remaining": "30",
				"x-request-cost":         "1",
			},
			expected: 5000 * time.Millisecond,
		},
		{
			name: "missing cost falls back to default",
			headers: map[string]string{
				"x-rate-limit-remaining": "300",
			},
			expected: time.Second,
		},
		{
			name:     "no headers falls back to default",
			headers:  map[string]string{},
			expected: time.Second,
		},
		{
			name: "zero remaining falls back to default",
			headers: map[string]string{
				"x-rate-limit-remaining": "0",
				"x-request-cost":         "1",
			},
			expected: time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := backoffDelay(tt.headers); got != tt.expected {
				t.Errorf("backoffDelay() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBackoffDelay_Monotonic(t *testing.T) {
	// For fixed cost, the delay must not decrease as remaining shrinks
	// toward zero.
	cost := "1"
	var prev time.Duration
	for _, remaining := range []string{"600", "300", "100", "30", "10", "1"} {
		delay := backoffDelay(map[string]string{
			"x-rate-limit-remaining": remaining,
			"x-request-cost":         cost,
		})
		if delay < prev {
			t.Errorf("delay %v at remaining=%s is below previous %v", delay, remaining, prev)
		}
		prev = delay
	}

	// Once negative, the delay grows linearly in the overdraft.
	d1 := backoffDelay(map[string]string{"x-rate-limit-remaining": "-2"})
	d2 := backoffDelay(map[string]string{"x-rate-limit-remaining": "-4"})
	if d2 != 2*d1 {
		t.Errorf("overdraft delays %v and %v are not linear", d1, d2)
	}
}
