package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Limiter throttles how fast jobs are claimed
type Limiter interface {
	Wait(ctx context.Context) error
}

// Unlimited never throttles
type Unlimited struct{}

// Wait returns immediately
func (Unlimited) Wait(context.Context) error { return nil }

// NewLocalLimiter allows limit claims per window in this process
func NewLocalLimiter(limit int, window time.Duration) *rate.Limiter {
	if limit <= 0 {
		limit = 10
	}
	if window <= 0 {
		window = time.Second
	}
	return rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit)
}

// RedisLimiter shares a fixed-window claim budget across every worker
// process using a Redis counter per window.
type RedisLimiter struct {
	rdb    *goredis.Client
	prefix string
	limit  int
	window time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewRedisLimiter allows limit claims per window across all workers sharing prefix
func NewRedisLimiter(rdb *goredis.Client, prefix string, limit int, window time.Duration, logger *slog.Logger) *RedisLimiter {
	if limit <= 0 {
		limit = 10
	}
	if window <= 0 {
		window = time.Second
	}
	// window keys count whole milliseconds
	window = max(window.Truncate(time.Millisecond), time.Millisecond)
	if prefix == "" {
		prefix = "ratelimit:jobs"
	}
	return &RedisLimiter{
		rdb:    rdb,
		prefix: prefix,
		limit:  limit,
		window: window,
		logger: logger,
		now:    time.Now,
	}
}

func (l *RedisLimiter) windowKey(now time.Time) (string, time.Time) {
	idx := now.UnixMilli() / l.window.Milliseconds()
	next := time.UnixMilli((idx + 1) * l.window.Milliseconds())
	return fmt.Sprintf("%s:%d", l.prefix, idx), next
}

// Allow takes one slot from the current window
func (l *RedisLimiter) Allow(ctx context.Context) (bool, time.Time, error) {
	key, next := l.windowKey(l.now())

	cnt, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, next, err
	}
	if cnt == 1 {
		// first hit in this window
		_ = l.rdb.Expire(ctx, key, 2*l.window).Err()
	}
	return int(cnt) <= l.limit, next, nil
}

// Wait blocks until a slot is free. Redis errors fail open.
func (l *RedisLimiter) Wait(ctx context.Context) error {
	for {
		ok, next, err := l.Allow(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.logger.Warn("Rate limiter unavailable, continuing without limit",
				slog.Any("error", err),
			)
			return nil
		}
		if ok {
			return nil
		}

		select {
		case <-time.After(time.Until(next)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
