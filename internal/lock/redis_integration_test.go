//go:build integration

package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func setupRedis(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	url, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	return url
}

func TestRedisLocker_Integration(t *testing.T) {
	url := setupRedis(t)
	ctx := context.Background()

	client, err := NewRedisClient(ctx, url)
	require.NoError(t, err)
	defer client.Close()

	first := NewRedisLocker(client, 5*time.Second, nil)
	second := NewRedisLocker(client, 5*time.Second, nil)

	t.Run("second instance waits for the first", func(t *testing.T) {
		release, err := first.Acquire(ctx, "enrollment")
		require.NoError(t, err)

		short, cancel := context.WithTimeout(ctx, 150*time.Millisecond)
		defer cancel()
		_, err = second.Acquire(short, "enrollment")
		assert.ErrorIs(t, err, ErrNotAcquired)

		release()

		again, err := second.Acquire(ctx, "enrollment")
		require.NoError(t, err)
		again()
	})

	t.Run("stale release does not drop a newer holder", func(t *testing.T) {
		expiring := NewRedisLocker(client, 100*time.Millisecond, nil)
		stale, err := expiring.Acquire(ctx, "lease")
		require.NoError(t, err)

		time.Sleep(200 * time.Millisecond)

		current, err := second.Acquire(ctx, "lease")
		require.NoError(t, err)
		defer current()

		stale()

		exists, err := client.Exists(ctx, keyPrefix+"lease").Result()
		require.NoError(t, err)
		assert.Equal(t, int64(1), exists)
	})

	t.Run("bad url", func(t *testing.T) {
		_, err := NewRedisClient(ctx, "not-a-url")
		assert.Error(t, err)
	})
}
