package operators

import (
	"context"
	"time"
)

type fixedWindow interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// RedisLimiter throttles PIN attempts per operator with a fixed window.
type RedisLimiter struct {
	client fixedWindow
	limit  int64
	window time.Duration
}

func NewRedisLimiter(client fixedWindow, limit int64, window time.Duration) *RedisLimiter {
	if limit <= 0 {
		limit = 5
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RedisLimiter{client: client, limit: limit, window: window}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	ok, _, err := l.client.FixedWindowAllow(ctx, "pin:"+key, l.limit, l.window)
	return ok, err
}
