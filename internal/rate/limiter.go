// Package rate enforces a per-identifier budget of failed login attempts
// using Redis counters with a cooldown TTL.
package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrRateLimited is returned when an identifier or IP has exhausted
	// its attempt budget for the current cooldown window.
	ErrRateLimited = errors.New("too many attempts")

	// ErrUnavailable is returned when Redis cannot be reached.
	ErrUnavailable = errors.New("rate limiter unavailable")
)

// Config holds limiter tuning parameters.
type Config struct {
	MaxAttempts int
	Cooldown    time.Duration
}

// Limiter counts failed login attempts per username and per IP.
// Counters expire after the cooldown window and are cleared on success.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a Limiter backed by the given Redis client.
func New(client redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{
		redis:  client,
		config: cfg,
	}
}

// Allow reports whether the username+IP pair is still within its attempt
// budget. Missing keys count as zero, so the check does not reveal
// account existence.
func (l *Limiter) Allow(ctx context.Context, username, ip string) error {
	if err := l.check(ctx, userKey(username)); err != nil {
		return err
	}
	if ip != "" {
		return l.check(ctx, ipKey(ip))
	}
	return nil
}

// RecordFailure counts one failed attempt against the username+IP pair.
func (l *Limiter) RecordFailure(ctx context.Context, username, ip string) error {
	if err := l.increment(ctx, userKey(username)); err != nil {
		return err
	}
	if ip != "" {
		return l.increment(ctx, ipKey(ip))
	}
	return nil
}

// Reset clears the counters for the username+IP pair after a successful
// login.
func (l *Limiter) Reset(ctx context.Context, username, ip string) error {
	keys := []string{userKey(username)}
	if ip != "" {
		keys = append(keys, ipKey(ip))
	}
	if err := l.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (l *Limiter) check(ctx context.Context, key string) error {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count >= int64(l.config.MaxAttempts) {
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) increment(ctx context.Context, key string) error {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Cooldown).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return nil
}

func userKey(username string) string {
	return "login:u:" + username
}

func ipKey(ip string) string {
	return "login:ip:" + ip
}
