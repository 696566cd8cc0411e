package repository

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// LoginAttemptRepository counts failed logins per identifier within a window.
type LoginAttemptRepository interface {
	// Locked reports whether identifier exhausted its attempts, and for how long.
	Locked(ctx context.Context, identifier string) (bool, time.Duration, error)
	RecordFailure(ctx context.Context, identifier string) (int64, error)
	Reset(ctx context.Context, identifier string) error
}

type redisLoginAttemptRepository struct {
	client      redis.Cmdable
	maxFailures int64
	window      time.Duration
}

// NewLoginAttemptRepository returns a Redis-backed counter. A non-positive
// maxFailures disables locking.
func NewLoginAttemptRepository(client redis.Cmdable, maxFailures int, window time.Duration) LoginAttemptRepository {
	return &redisLoginAttemptRepository{client: client, maxFailures: int64(maxFailures), window: window}
}

func loginFailureKey(identifier string) string {
	return "auth:login_failures:" + identifier
}

func (r *redisLoginAttemptRepository) Locked(ctx context.Context, identifier string) (bool, time.Duration, error) {
	if r.maxFailures <= 0 {
		return false, 0, nil
	}
	key := loginFailureKey(identifier)
	count, err := r.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, err
	}
	if count < r.maxFailures {
		return false, 0, nil
	}
	ttl, err := r.client.TTL(ctx, key).Result()
	if err != nil {
		return true, r.window, err
	}
	if ttl < 0 {
		ttl = r.window
		if err := r.client.Expire(ctx, key, r.window).Err(); err != nil {
			return true, ttl, err
		}
	}
	return true, ttl, nil
}

// RecordFailure increments the counter. The window starts at the first
// failure; a counter found without an expiry (a lost EXPIRE) gets one again
// so it can never lock an identifier out for good.
func (r *redisLoginAttemptRepository) RecordFailure(ctx context.Context, identifier string) (int64, error) {
	key := loginFailureKey(identifier)
	var (
		incr *redis.IntCmd
		ttl  *redis.DurationCmd
	)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		ttl = pipe.TTL(ctx, key)
		return nil
	})
	if err != nil {
		return 0, err
	}
	count := incr.Val()
	if ttl.Val() < 0 {
		if err := r.client.Expire(ctx, key, r.window).Err(); err != nil {
			return count, err
		}
	}
	return count, nil
}

func (r *redisLoginAttemptRepository) Reset(ctx context.Context, identifier string) error {
	return r.client.Del(ctx, loginFailureKey(identifier)).Err()
}
