package data

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/hrm-scheduler/internal/testutil"
)

func TestRedisCacheRepo_SetGetIncr(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	client := testutil.SetupTestRedis(t)
	defer client.Close()

	repo := NewRedisCacheRepo(client, "test:")
	ctx := context.Background()

	t.Run("set and get", func(t *testing.T) {
		value := []byte(`{"total":3}`)
		ttl := 5 * time.Minute

		require.NoError(t, repo.Set(ctx, "stats:1", value, ttl))

		got, err := repo.Get(ctx, "stats:1")
		require.NoError(t, err)
		assert.Equal(t, value, got)

		actualTTL := client.TTL(ctx, "test:stats:1").Val()
		assert.True(t, actualTTL > 0 && actualTTL <= ttl)
	})

	t.Run("missing key returns nil", func(t *testing.T) {
		got, err := repo.Get(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("incr starts at one", func(t *testing.T) {
		n, err := repo.Incr(ctx, "version")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		n, err = repo.Incr(ctx, "version")
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
	})

	t.Run("empty key rejected", func(t *testing.T) {
		assert.Error(t, repo.Set(ctx, "", []byte("x"), time.Minute))
		_, err := repo.Get(ctx, "")
		assert.Error(t, err)
		_, err = repo.Incr(ctx, "")
		assert.Error(t, err)
	})

	t.Run("health", func(t *testing.T) {
		assert.NoError(t, repo.Health(ctx))
	})
}
