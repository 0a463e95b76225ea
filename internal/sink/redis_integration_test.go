//go:build integration

package sink

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container and returns its address.
func setupRedis(ctx context.Context, t *testing.T) string {
	t.Helper()

	container, err := testcontainers.Run(ctx,
		"redis:7-alpine",
		testcontainers.WithExposedPorts("6379/tcp"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}
	testcontainers.CleanupContainer(t, container)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	return host + ":" + port.Port()
}

func TestRedis_RecordAndList(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)

	addr := setupRedis(ctx, t)

	r, err := DialRedis(ctx, addr, "", "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	for i := range 3 {
		require.NoError(t, r.Record(ctx, testSummary(i)))
	}

	entries, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "id-0", entries[0].ID)
	assert.Equal(t, "id-2", entries[2].ID)
	assert.Equal(t, int64(1500), entries[1].ElapsedMS)
	assert.Equal(t, "sha256:abc", entries[1].Digest)
	assert.InDelta(t, 1.25, entries[1].AverageSpeed, 1e-9)
}

func TestRedis_CustomPrefix(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)

	addr := setupRedis(ctx, t)
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	r := NewRedis(rdb, "game")
	t.Cleanup(func() { _ = r.Close() })

	require.NoError(t, r.Record(ctx, testSummary(1)))

	n, err := rdb.Exists(ctx, "game:transfer:id-1").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	card, err := rdb.ZCard(ctx, "game:transfers").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), card)
}

func TestDialRedis_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	_, err := DialRedis(ctx, "127.0.0.1:1", "", "")
	require.Error(t, err)
}
