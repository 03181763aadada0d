package storage

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

func TestRedisStorageIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	defer func() { _ = redisContainer.Terminate(ctx) }()

	host, err := redisContainer.Host(ctx)
	require.NoError(t, err)

	port, err := redisContainer.MappedPort(ctx, "6379")
	require.NoError(t, err)

	store := NewRedisStorage(RedisOptions{Addr: host + ":" + port.Port()}, nil)
	defer func() { _ = store.Close() }()

	require.True(t, store.Available(ctx))

	t.Run("Increment applies TTL atomically", func(t *testing.T) {
		key := "it:rl:user:1000"
		for i := int64(1); i <= 5; i++ {
			count, err := store.IncrementAndExpire(ctx, key, time.Second)
			require.NoError(t, err)
			assert.Equal(t, i, count)
		}

		client := redis.NewClient(&redis.Options{Addr: host + ":" + port.Port()})
		defer func() { _ = client.Close() }()

		ttl, err := client.PTTL(ctx, key).Result()
		require.NoError(t, err)
		assert.Greater(t, ttl, time.Duration(0))
		assert.LessOrEqual(t, ttl, time.Second)
	})

	t.Run("Script executes atomically under concurrency", func(t *testing.T) {
		script := `
			local v = redis.call('INCR', KEYS[1])
			return {1, v}
		`
		done := make(chan error, 10)
		for i := 0; i < 10; i++ {
			go func() {
				for j := 0; j < 20; j++ {
					if _, err := store.EvalScript(ctx, script, []string{"it:scripted"}); err != nil {
						done <- err
						return
					}
				}
				done <- nil
			}()
		}
		for i := 0; i < 10; i++ {
			require.NoError(t, <-done)
		}

		value, err := store.Get(ctx, "it:scripted")
		require.NoError(t, err)
		assert.Equal(t, int64(200), value)
	})

	t.Run("CompareAndSet detects interleaved writes", func(t *testing.T) {
		key := "it:cas"
		require.NoError(t, store.Set(ctx, key, 1, time.Minute))

		ok, err := store.CompareAndSet(ctx, key, 1, 2)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = store.CompareAndSet(ctx, key, 1, 3)
		require.NoError(t, err)
		assert.False(t, ok)

		value, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, int64(2), value)
	})
}
