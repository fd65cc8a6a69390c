// Package metrics documents the Prometheus metrics exposed by the
// Canvas client. Metrics are defined next to the code that records them
// (transport, scheduler, ratelimit, client) via promauto; this package
// holds the registry reference and the catalog.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registerer used by all packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Catalog
//
// Transport (pkg/transport):
//   - canvas_requests_total{method, status} (Counter): exchanges by method and HTTP status
//   - canvas_request_duration_seconds{method} (Histogram): exchange duration
//   - canvas_transport_failures_total (Counter): exchanges with no HTTP response
//
// Scheduler (pkg/scheduler):
//   - canvas_exchanges_in_flight (Gauge): currently outstanding exchanges
//   - canvas_exchanges_submitted_total (Counter): exchanges submitted
//   - canvas_spacing_wait_seconds (Histogram): waits imposed by the minimum spacing
//
// Budget tracking (pkg/ratelimit):
//   - canvas_budget_remaining (Gauge): last observed x-rate-limit-remaining
//   - canvas_request_cost (Histogram): observed x-request-cost values
//   - canvas_budget_observations_total (Counter): responses carrying budget headers
//
// Retry controller (pkg/client):
//   - canvas_rate_limit_retries_total (Counter): resubmissions after rejections
//   - canvas_retry_backoff_seconds (Histogram): computed backoff delays
//   - canvas_retry_exhausted_total (Counter): requests abandoned at the ceiling
//   - canvas_errors_total{class} (Counter): failed exchanges by class
//
// Example queries:
//
//   # Requests blocked per second on the rate budget
//   rate(canvas_rate_limit_retries_total[5m])
//
//   # Budget headroom
//   canvas_budget_remaining
//
//   # P95 exchange latency
//   histogram_quantile(0.95, rate(canvas_request_duration_seconds_bucket[5m]))
