package client

import (
	"context"
	"testing"
	"time"

	"github.com/campusops/canvas-client/pkg/transport"
)

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError bool
		errorMsg    string
	}{
		{
			name: "valid config",
			config: Config{
				BaseURL: "https://school.instructure.com",
				Token:   "token",
			},
			expectError: false,
		},
		{
			name: "missing base URL",
			config: Config{
				Token: "token",
			},
			expectError: true,
			errorMsg:    "base URL is required",
		},
		{
			name: "missing token",
			config: Config{
				BaseURL: "https://school.instructure.com",
			},
			expectError: true,
			errorMsg:    "access token is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.config)

			if tt.expectError {
				if err == nil {
					t.Fatal("Expected error but got nil")
				}
				if tt.errorMsg != "" && err.Error() != tt.errorMsg {
					t.Errorf("Error message = %q, want %q", err.Error(), tt.errorMsg)
				}
			} else {
				if err != nil {
					t.Fatalf("Unexpected error: %v", err)
				}
				if c == nil {
					t.Error("Client is nil")
				}
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("https://school.instructure.com", "token")

	if cfg.MaxConcurrent != 10 {
		t.Errorf("MaxConcurrent = %d, want 10", cfg.MaxConcurrent)
	}
	if cfg.MinSpacing != 200*time.Millisecond {
		t.Errorf("MinSpacing = %v, want 200ms", cfg.MinSpacing)
	}
}

func TestNewRequest_RelativeEndpoint(t *testing.T) {
	c := newTestClient(t, newScriptedTransport())

	cfg := c.NewRequest("GET", "/api/v1/courses", nil)
	if cfg.URL != "https://canvas.example.com/api/v1/courses" {
		t.Errorf("URL = %q, want base-prefixed endpoint", cfg.URL)
	}
	if cfg.Headers["Authorization"] != "Bearer test-token" {
		t.Errorf("Authorization = %q, want bearer credential", cfg.Headers["Authorization"])
	}

	cfg = c.NewRequest("GET", "https://other.example.com/x", nil)
	if cfg.URL != "https://other.example.com/x" {
		t.Errorf("URL = %q, absolute URLs must pass through untouched", cfg.URL)
	}
}

func TestDoBatch(t *testing.T) {
	tr := newScriptedTransport()
	urlA := "https://canvas.example.com/api/v1/courses/10"
	urlB := "https://canvas.example.com/api/v1/courses/20"
	urlC := "https://canvas.example.com/api/v1/courses/30"
	tr.script(urlA, &transport.ResponseEnvelope{Status: 200, Headers: map[string]string{}, Data: map[string]any{"id": float64(10)}})
	tr.script(urlB, &transport.ResponseEnvelope{Status: 404, Headers: map[string]string{}})
	tr.script(urlC, &transport.ResponseEnvelope{Status: 200, Headers: map[string]string{}, Data: map[string]any{"id": float64(30)}})

	c := newTestClient(t, tr)
	ledger := NewRetryLedger()
	results := c.DoBatch(context.Background(), []*transport.RequestConfig{
		c.NewRequest("GET", urlA, nil),
		c.NewRequest("GET", urlB, nil),
		c.NewRequest("GET", urlC, nil),
	}, ledger)

	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}
	if results[0] == nil || results[0].Status != 200 {
		t.Error("result[0] should be the successful envelope for urlA")
	}
	if results[1] != nil {
		t.Error("result[1] should be nil for the 404")
	}
	if results[2] == nil || results[2].Status != 200 {
		t.Error("result[2] should be the successful envelope for urlC")
	}
}

func TestRetryLedger(t *testing.T) {
	ledger := NewRetryLedger()
	url := "https://canvas.example.com/api/v1/courses?page=3"

	if got := ledger.Count(url); got != 0 {
		t.Errorf("initial count = %d, want 0", got)
	}
	for i := 1; i <= 3; i++ {
		if got := ledger.Bump(url); got != i {
			t.Errorf("Bump() = %d, want %d", got, i)
		}
	}
	if got := ledger.Count("https://canvas.example.com/other"); got != 0 {
		t.Errorf("count for untouched URL = %d, want 0", got)
	}
}
