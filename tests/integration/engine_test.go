//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/campusops/canvas-client/internal/testutil"
	"github.com/campusops/canvas-client/pkg/client"
	"github.com/campusops/canvas-client/pkg/pagination"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) *redis.Client {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "start Redis container")

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err, "resolve Redis endpoint")

	redisClient := redis.NewClient(&redis.Options{Addr: endpoint})
	require.NoError(t, redisClient.Ping(ctx).Err(), "ping Redis")

	t.Cleanup(func() {
		redisClient.Close()
		container.Terminate(context.Background())
	})

	return redisClient
}

func TestEngine_EndToEnd(t *testing.T) {
	redisClient := setupRedis(t)

	mock := testutil.NewMockCanvas()
	defer mock.Close()

	coursePath := "/api/v1/courses/101/enrollments"
	mock.SetCollection(coursePath, testutil.GenerateItems(35))
	mock.RejectNext(coursePath, 2)

	engine, err := client.New(client.Config{
		BaseURL:       mock.URL(),
		Token:         "integration-token",
		Redis:         redisClient,
		MaxConcurrent: 10,
		MinSpacing:    time.Millisecond,
	})
	require.NoError(t, err)

	fetcher := pagination.NewFetcher(engine, pagination.Options{
		PerPage:    10,
		MaxBatch:   40,
		BatchDelay: time.Millisecond,
	})

	ctx := context.Background()
	items, err := fetcher.FetchAll(ctx, coursePath)
	require.NoError(t, err)
	assert.Len(t, items, 35, "all pages despite injected rejections")

	// The mock advertises budget headers on every served page; the
	// tracker must have mirrored the latest observation into Redis.
	state, err := engine.Tracker().State(ctx)
	require.NoError(t, err)
	assert.Equal(t, 650.0, state.Remaining)
	assert.True(t, state.IsHealthy)
}

func TestEngine_MultiKeyEndToEnd(t *testing.T) {
	mock := testutil.NewMockCanvas()
	defer mock.Close()

	mock.SetCollection("/api/v1/courses/10/assignments", testutil.GenerateItems(5))
	mock.SetBookmarkCollection("/api/v1/courses/20/assignments", testutil.GenerateItems(25))

	engine, err := client.New(client.Config{
		BaseURL:       mock.URL(),
		Token:         "integration-token",
		MaxConcurrent: 10,
		MinSpacing:    time.Millisecond,
	})
	require.NoError(t, err)

	agg := pagination.NewAggregator(engine, pagination.Options{
		PerPage:    10,
		MaxBatch:   40,
		BatchDelay: time.Millisecond,
	})

	results, err := agg.FetchAllForKeys(context.Background(), "/api/v1/courses/{key}/assignments", []string{"10", "20"})
	require.NoError(t, err)
	assert.Len(t, results["10"], 5)
	assert.Len(t, results["20"], 25)
}
