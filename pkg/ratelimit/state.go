// Package ratelimit tracks the Canvas request budget advertised through
// the x-rate-limit-remaining and x-request-cost response headers. The
// tracker is observational: it feeds metrics, logging and an optional
// Redis mirror so cooperating processes see one view of the budget. The
// retry backoff itself reads the rejecting response's headers directly.
package ratelimit

import (
	"time"
)

// Redis keys for shared budget state.
const (
	RedisKeyRemaining  = "canvas:rate_limit:remaining"
	RedisKeyLastCost   = "canvas:rate_limit:last_cost"
	RedisKeyLastUpdate = "canvas:rate_limit:last_update"
)

// Canvas refills the budget toward 700; a request is rejected when the
// bucket would go negative. Thresholds below are fractions of that pool.
const (
	// BudgetFull is the upper bound of the Canvas leaky bucket.
	BudgetFull = 700.0

	// BudgetCritical marks a budget close to rejection territory.
	BudgetCritical = 50.0

	// BudgetWarning marks a budget low enough to expect throttling soon.
	BudgetWarning = 150.0

	// BudgetHealthy marks normal operation.
	BudgetHealthy = 300.0
)

// BudgetState is the last observed request-budget state. When mirrored
// to Redis it is shared across all engine processes.
type BudgetState struct {
	// Remaining is the budget left in the server's bucket, from the
	// x-rate-limit-remaining header. May go negative after a rejection.
	Remaining float64 `json:"remaining"`

	// LastCost is the cost of the most recent request, from the
	// x-request-cost header.
	LastCost float64 `json:"last_cost"`

	// LastUpdate is when this state was last refreshed from headers.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is true while Remaining >= BudgetHealthy.
	IsHealthy bool `json:"is_healthy"`
}

// IsStale returns true if the state is older than maxAge.
func (s *BudgetState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// IsCritical returns true when the budget is nearly exhausted (or
// already overdrawn).
func (s *BudgetState) IsCritical() bool {
	return s.Remaining < BudgetCritical
}

// IsWarning returns true when the budget is low but not yet critical.
func (s *BudgetState) IsWarning() bool {
	return s.Remaining < BudgetWarning && !s.IsCritical()
}

// UpdateHealth recomputes IsHealthy from Remaining.
func (s *BudgetState) UpdateHealth() {
	s.IsHealthy = s.Remaining >= BudgetHealthy
}
