package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// unlockScript deletes the key only if it still holds our token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// ReconcileLock is a best-effort in-flight guard per pending payment. It only
// saves work; correctness comes from the database re-checks.
type ReconcileLock struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewReconcileLock returns a lock backed by client. A nil client yields a lock
// that always succeeds.
func NewReconcileLock(client *redis.Client, ttl time.Duration, logger *zap.Logger) *ReconcileLock {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &ReconcileLock{client: client, ttl: ttl, logger: logger}
}

// Acquire tries to take the lock for key. It returns false when another
// handler holds it. Redis errors fail open so an outage never blocks callbacks.
func (l *ReconcileLock) Acquire(ctx context.Context, key string) (bool, func(), error) {
	if l == nil || l.client == nil {
		return true, func() {}, nil
	}

	redisKey := "reconcile:" + key
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
	if err != nil {
		l.logger.Warn("Reconcile lock unavailable, continuing without it",
			zap.String("key", redisKey),
			zap.Error(err))
		return true, func() {}, nil
	}
	if !ok {
		return false, func() {}, nil
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := unlockScript.Run(ctx, l.client, []string{redisKey}, token).Err(); err != nil && err != redis.Nil {
			l.logger.Warn("Failed to release reconcile lock", zap.String("key", redisKey), zap.Error(err))
		}
	}
	return true, release, nil
}
