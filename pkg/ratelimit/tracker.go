package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for budget tracking.
var (
	canvasBudgetRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "canvas_budget_remaining",
		Help: "Last observed x-rate-limit-remaining value",
	})

	canvasRequestCost = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "canvas_request_cost",
		Help:    "Observed x-request-cost values",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 25},
	})

	canvasBudgetObservationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "canvas_budget_observations_total",
		Help: "Total responses carrying rate-limit budget headers",
	})
)

// Tracker records budget headers from every response that carries them.
// With a Redis client configured the state is mirrored so that multiple
// engine processes hitting the same Canvas instance share one budget
// view; without one the state is process-local.
type Tracker struct {
	redis  *redis.Client
	logger zerolog.Logger

	mu    sync.RWMutex
	state BudgetState
}

// NewTracker creates a budget tracker. redisClient may be nil for
// process-local tracking.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:  redisClient,
		logger: logger,
		state: BudgetState{
			Remaining: BudgetFull,
			IsHealthy: true,
		},
	}
}

// Observe parses budget headers from one response. Responses without an
// x-rate-limit-remaining header are ignored.
func (t *Tracker) Observe(ctx context.Context, headers map[string]string) {
	remainStr, ok := headers["x-rate-limit-remaining"]
	if !ok {
		return
	}

	remaining, err := strconv.ParseFloat(remainStr, 64)
	if err != nil {
		t.logger.Warn().Str("value", remainStr).Msg("Unparseable x-rate-limit-remaining header")
		return
	}

	var cost float64
	if costStr, ok := headers["x-request-cost"]; ok {
		if c, err := strconv.ParseFloat(costStr, 64); err == nil {
			cost = c
			canvasRequestCost.Observe(c)
		}
	}

	now := time.Now()
	t.mu.Lock()
	t.state = BudgetState{
		Remaining:  remaining,
		LastCost:   cost,
		LastUpdate: now,
	}
	t.state.UpdateHealth()
	state := t.state
	t.mu.Unlock()

	canvasBudgetRemaining.Set(remaining)
	canvasBudgetObservationsTotal.Inc()

	if t.redis != nil {
		if err := t.mirror(ctx, state); err != nil {
			t.logger.Warn().Err(err).Msg("Failed to mirror budget state to Redis")
		}
	}

	switch {
	case state.IsCritical():
		t.logger.Warn().
			Float64("remaining", remaining).
			Float64("cost", cost).
			Msg("Canvas request budget critical")
	case state.IsWarning():
		t.logger.Info().
			Float64("remaining", remaining).
			Float64("cost", cost).
			Msg("Canvas request budget low")
	default:
		t.logger.Debug().
			Float64("remaining", remaining).
			Float64("cost", cost).
			Msg("Canvas request budget updated")
	}
}

// mirror writes the state to Redis atomically.
func (t *Tracker) mirror(ctx context.Context, state BudgetState) error {
	lastUpdateJSON, err := json.Marshal(state.LastUpdate)
	if err != nil {
		return fmt.Errorf("marshal last update: %w", err)
	}

	pipe := t.redis.Pipeline()
	pipe.Set(ctx, RedisKeyRemaining, state.Remaining, 0)
	pipe.Set(ctx, RedisKeyLastCost, state.LastCost, 0)
	pipe.Set(ctx, RedisKeyLastUpdate, lastUpdateJSON, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store budget state in redis: %w", err)
	}
	return nil
}

// State returns the current budget state. With Redis configured the
// shared state is preferred; the process-local copy is the fallback.
func (t *Tracker) State(ctx context.Context) (*BudgetState, error) {
	if t.redis == nil {
		t.mu.RLock()
		defer t.mu.RUnlock()
		state := t.state
		return &state, nil
	}

	remaining, err := t.redis.Get(ctx, RedisKeyRemaining).Float64()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get remaining: %w", err)
	}
	if err == redis.Nil {
		// No shared observations yet: assume a full bucket.
		return &BudgetState{
			Remaining:  BudgetFull,
			LastUpdate: time.Now(),
			IsHealthy:  true,
		}, nil
	}

	lastCost, err := t.redis.Get(ctx, RedisKeyLastCost).Float64()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get last cost: %w", err)
	}

	lastUpdateStr, err := t.redis.Get(ctx, RedisKeyLastUpdate).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get last update: %w", err)
	}

	var lastUpdate time.Time
	if lastUpdateStr != "" {
		if err := json.Unmarshal([]byte(lastUpdateStr), &lastUpdate); err != nil {
			return nil, fmt.Errorf("parse last update: %w", err)
		}
	}

	state := &BudgetState{
		Remaining:  remaining,
		LastCost:   lastCost,
		LastUpdate: lastUpdate,
	}
	state.UpdateHealth()
	return state, nil
}
