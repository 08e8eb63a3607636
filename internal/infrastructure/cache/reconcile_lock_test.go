package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestReconcileLock_NilClientAlwaysAcquires(t *testing.T) {
	lock := NewReconcileLock(nil, time.Second, zap.NewNop())

	ok, release, err := lock.Acquire(context.Background(), "pending-1")
	require.NoError(t, err)
	assert.True(t, ok)
	release()

	ok, _, err = lock.Acquire(context.Background(), "pending-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReconcileLock_UnreachableRedisFailsOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	lock := NewReconcileLock(client, time.Second, zap.NewNop())
	ok, release, err := lock.Acquire(context.Background(), "pending-1")
	require.NoError(t, err)
	assert.True(t, ok)
	release()
}
