package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testLimiter(t *testing.T, maxAttempts int, cooldown time.Duration) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, Config{MaxAttempts: maxAttempts, Cooldown: cooldown}), mr
}

func TestAllowUnknownIdentifier(t *testing.T) {
	limiter, _ := testLimiter(t, 3, time.Minute)

	if err := limiter.Allow(context.Background(), "alice", "10.0.0.1"); err != nil {
		t.Fatalf("allow on fresh identifier: %v", err)
	}
}

func TestBudgetExhaustion(t *testing.T) {
	limiter, _ := testLimiter(t, 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := limiter.Allow(ctx, "alice", "10.0.0.1"); err != nil {
			t.Fatalf("allow attempt %d: %v", i, err)
		}
		if err := limiter.RecordFailure(ctx, "alice", "10.0.0.1"); err != nil {
			t.Fatalf("record failure %d: %v", i, err)
		}
	}

	if err := limiter.Allow(ctx, "alice", "10.0.0.1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("got %v, want ErrRateLimited", err)
	}

	// Another user's budget is untouched.
	if err := limiter.Allow(ctx, "bob", "10.0.0.2"); err != nil {
		t.Fatalf("allow for unrelated user: %v", err)
	}
}

func TestIPBudgetSharedAcrossUsernames(t *testing.T) {
	limiter, _ := testLimiter(t, 2, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := limiter.RecordFailure(ctx, "alice", "10.0.0.9"); err != nil {
			t.Fatalf("record failure: %v", err)
		}
	}

	if err := limiter.Allow(ctx, "mallory", "10.0.0.9"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("got %v, want ErrRateLimited on shared IP", err)
	}
}

func TestCooldownExpiry(t *testing.T) {
	limiter, mr := testLimiter(t, 1, time.Minute)
	ctx := context.Background()

	if err := limiter.RecordFailure(ctx, "alice", ""); err != nil {
		t.Fatalf("record failure: %v", err)
	}
	if err := limiter.Allow(ctx, "alice", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("got %v, want ErrRateLimited", err)
	}

	mr.FastForward(2 * time.Minute)

	if err := limiter.Allow(ctx, "alice", ""); err != nil {
		t.Fatalf("allow after cooldown: %v", err)
	}
}

func TestResetClearsCounters(t *testing.T) {
	limiter, _ := testLimiter(t, 1, time.Minute)
	ctx := context.Background()

	if err := limiter.RecordFailure(ctx, "alice", "10.0.0.1"); err != nil {
		t.Fatalf("record failure: %v", err)
	}
	if err := limiter.Reset(ctx, "alice", "10.0.0.1"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := limiter.Allow(ctx, "alice", "10.0.0.1"); err != nil {
		t.Fatalf("allow after reset: %v", err)
	}
}
