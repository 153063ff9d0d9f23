package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds rate limiter tuning parameters.
type Config struct {
	EnableIPThrottle  bool
	MaxFailedConnects int
	Cooldown          time.Duration
}

// Limiter enforces per-target and per-IP budgets for failed connects.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// CheckConnect returns ErrRateLimited when target or ip has used up its
// failure budget for the current window.
func (l *Limiter) CheckConnect(ctx context.Context, target, ip string) error {
	if err := l.checkCounter(ctx, targetKey(target)); err != nil {
		return err
	}
	if l.config.EnableIPThrottle && ip != "" {
		if err := l.checkCounter(ctx, ipKey(ip)); err != nil {
			return err
		}
	}
	return nil
}

// RecordFailure counts one failed connect. It returns ErrRateLimited when
// this failure exhausted the budget.
func (l *Limiter) RecordFailure(ctx context.Context, target, ip string) error {
	count, err := l.incrementWithTTL(ctx, targetKey(target), l.config.Cooldown)
	if err != nil {
		return err
	}
	limited := count > int64(l.config.MaxFailedConnects)

	if l.config.EnableIPThrottle && ip != "" {
		count, err = l.incrementWithTTL(ctx, ipKey(ip), l.config.Cooldown)
		if err != nil {
			return err
		}
		limited = limited || count > int64(l.config.MaxFailedConnects)
	}

	if limited {
		return ErrRateLimited
	}
	return nil
}

// Reset clears the target counter after a successful connect.
func (l *Limiter) Reset(ctx context.Context, target string) error {
	if err := l.redis.Del(ctx, targetKey(target)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Failures returns the current failure count for target.
func (l *Limiter) Failures(ctx context.Context, target string) (int, error) {
	count, err := l.redis.Get(ctx, targetKey(target)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

func (l *Limiter) checkCounter(ctx context.Context, key string) error {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if count >= int64(l.config.MaxFailedConnects) {
		return ErrRateLimited
	}

	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}

func targetKey(target string) string { return "gct:" + target }

func ipKey(ip string) string { return "gci:" + ip }
