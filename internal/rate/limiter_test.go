package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return New(rdb, cfg), mr
}

func TestFailedConnectsTripThrottle(t *testing.T) {
	l, _ := newTestLimiter(t, Config{MaxFailedConnects: 3, Cooldown: time.Minute})
	ctx := context.Background()
	target := "ssh/10.0.0.5:22/pi"

	for i := 0; i < 3; i++ {
		if err := l.CheckConnect(ctx, target, ""); err != nil {
			t.Fatalf("attempt %d: unexpected throttle: %v", i, err)
		}
		if err := l.RecordFailure(ctx, target, ""); err != nil {
			t.Fatalf("failure %d: %v", i, err)
		}
	}

	if err := l.CheckConnect(ctx, target, ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if err := l.CheckConnect(ctx, "ssh/10.0.0.6:22/pi", ""); err != nil {
		t.Fatalf("other target must not be throttled: %v", err)
	}
}

func TestRecordFailureReportsExhaustion(t *testing.T) {
	l, _ := newTestLimiter(t, Config{MaxFailedConnects: 1, Cooldown: time.Minute})
	ctx := context.Background()

	if err := l.RecordFailure(ctx, "t", ""); err != nil {
		t.Fatalf("first failure: %v", err)
	}
	if err := l.RecordFailure(ctx, "t", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestWindowExpires(t *testing.T) {
	l, mr := newTestLimiter(t, Config{MaxFailedConnects: 1, Cooldown: time.Minute})
	ctx := context.Background()

	_ = l.RecordFailure(ctx, "t", "")
	if err := l.CheckConnect(ctx, "t", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected throttle, got %v", err)
	}

	mr.FastForward(61 * time.Second)
	if err := l.CheckConnect(ctx, "t", ""); err != nil {
		t.Fatalf("expected window to expire, got %v", err)
	}
}

func TestResetClearsTarget(t *testing.T) {
	l, _ := newTestLimiter(t, Config{MaxFailedConnects: 2, Cooldown: time.Minute})
	ctx := context.Background()

	_ = l.RecordFailure(ctx, "t", "")
	if n, err := l.Failures(ctx, "t"); err != nil || n != 1 {
		t.Fatalf("Failures = %d, %v; want 1", n, err)
	}
	if err := l.Reset(ctx, "t"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if n, err := l.Failures(ctx, "t"); err != nil || n != 0 {
		t.Fatalf("Failures after reset = %d, %v; want 0", n, err)
	}
}

func TestIPThrottleSpansTargets(t *testing.T) {
	l, _ := newTestLimiter(t, Config{EnableIPThrottle: true, MaxFailedConnects: 2, Cooldown: time.Minute})
	ctx := context.Background()

	_ = l.RecordFailure(ctx, "a", "192.0.2.1")
	_ = l.RecordFailure(ctx, "b", "192.0.2.1")

	if err := l.CheckConnect(ctx, "c", "192.0.2.1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected IP throttle, got %v", err)
	}
	if err := l.CheckConnect(ctx, "c", "192.0.2.2"); err != nil {
		t.Fatalf("other IP must pass: %v", err)
	}
}

func TestIPThrottleDisabledIgnoresIP(t *testing.T) {
	l, _ := newTestLimiter(t, Config{MaxFailedConnects: 1, Cooldown: time.Minute})
	ctx := context.Background()

	_ = l.RecordFailure(ctx, "a", "192.0.2.1")
	if err := l.CheckConnect(ctx, "b", "192.0.2.1"); err != nil {
		t.Fatalf("IP throttle disabled, got %v", err)
	}
}

func TestRedisUnavailable(t *testing.T) {
	l, mr := newTestLimiter(t, Config{MaxFailedConnects: 1, Cooldown: time.Minute})
	mr.Close()

	if err := l.CheckConnect(context.Background(), "t", ""); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
	if err := l.RecordFailure(context.Background(), "t", ""); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}
