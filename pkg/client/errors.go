package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/campusops/canvas-client/pkg/transport"
)

// Common errors returned by the client.
var (
	// ErrFirstPageFailed is returned when the initial page of a
	// multi-page fetch cannot be obtained.
	ErrFirstPageFailed = errors.New("first page fetch failed")
)

// rateLimitMarker is the case-sensitive substring Canvas places in the
// body of a 403 that rejects a request for budget reasons. A 403 without
// it is an ordinary authorization failure.
const rateLimitMarker = "Rate Limit Exceeded"

// ErrorClass represents a classification of exchange failures.
type ErrorClass string

const (
	// ErrorClassRateLimit represents a 403 carrying the rate-limit marker.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassForbidden represents a 403 without the marker.
	ErrorClassForbidden ErrorClass = "forbidden"

	// ErrorClassClient represents other 4xx responses.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx responses.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents transport-level failures.
	ErrorClassNetwork ErrorClass = "network"
)

// APIError describes a non-retriable Canvas error response.
type APIError struct {
	StatusCode int
	Class      ErrorClass
	Message    string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("canvas %s error (status %d): %s", e.Class, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("canvas %s error (status %d)", e.Class, e.StatusCode)
}

// classify categorizes an envelope for observability and handling.
func classify(env *transport.ResponseEnvelope) ErrorClass {
	switch {
	case env.TransportFailed():
		return ErrorClassNetwork
	case isRateLimited(env):
		return ErrorClassRateLimit
	case env.Status == http.StatusForbidden:
		return ErrorClassForbidden
	case env.Status >= 400 && env.Status < 500:
		return ErrorClassClient
	case env.Status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// isRateLimited reports whether the envelope is a budget rejection: a
// 403 whose body contains the marker. The body may be a plain string or
// a structured object; structured bodies are matched on their JSON text.
func isRateLimited(env *transport.ResponseEnvelope) bool {
	if env.Status != http.StatusForbidden {
		return false
	}
	if len(env.Raw) > 0 {
		return strings.Contains(string(env.Raw), rateLimitMarker)
	}
	switch body := env.Data.(type) {
	case nil:
		return false
	case string:
		return strings.Contains(body, rateLimitMarker)
	default:
		text, err := json.Marshal(body)
		if err != nil {
			return false
		}
		return strings.Contains(string(text), rateLimitMarker)
	}
}

// serverMessage extracts a human-readable error message from a Canvas
// error body, if one is present.
func serverMessage(env *transport.ResponseEnvelope) string {
	switch body := env.Data.(type) {
	case string:
		return body
	case map[string]any:
		if msg, ok := body["message"].(string); ok {
			return msg
		}
		if errs, ok := body["errors"]; ok {
			text, err := json.Marshal(errs)
			if err == nil {
				return string(text)
			}
		}
	}
	if len(env.Raw) > 0 {
		return string(env.Raw)
	}
	return ""
}
