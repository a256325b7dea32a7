package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisLedger(t *testing.T) (*RedisLedger, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return NewRedisLedger(rdb, ""), mr
}

func TestRedisLedger_CountsDownThenBlocks(t *testing.T) {
	ledger, mr := newTestRedisLedger(t)
	ctx := context.Background()
	key := Key{Identifier: "bride@example.com", Type: LimitEmail}
	limit := Limit{MaxAttempts: 3, Window: time.Hour}

	for i := 1; i <= 3; i++ {
		check, err := ledger.CheckAndIncrement(ctx, key, limit)
		if err != nil {
			t.Fatalf("attempt %d: unexpected error: %v", i, err)
		}
		if check.Blocked {
			t.Fatalf("attempt %d: expected not blocked", i)
		}
		if check.AttemptsRemaining != 3-i {
			t.Errorf("attempt %d: expected %d remaining, got %d", i, 3-i, check.AttemptsRemaining)
		}
	}

	before := time.Now()
	check, err := ledger.CheckAndIncrement(ctx, key, limit)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !check.Blocked {
		t.Fatal("Expected fourth attempt to be blocked")
	}
	if check.ResetTime == nil {
		t.Fatal("Expected reset time on blocked check")
	}
	if check.ResetTime.Before(before) || check.ResetTime.After(time.Now().Add(limit.Window)) {
		t.Errorf("Reset time %v outside expected range", check.ResetTime)
	}

	if ttl := mr.TTL("signup:rl:email:bride@example.com"); ttl != time.Hour {
		t.Errorf("Expected TTL armed once to the window, got %v", ttl)
	}
}

func TestRedisLedger_ResetsAfterWindow(t *testing.T) {
	ledger, mr := newTestRedisLedger(t)
	ctx := context.Background()
	key := Key{Identifier: GlobalIdentifier, Type: LimitGlobal}
	limit := Limit{MaxAttempts: 1, Window: time.Minute}

	ledger.CheckAndIncrement(ctx, key, limit)
	check, _ := ledger.CheckAndIncrement(ctx, key, limit)
	if !check.Blocked {
		t.Fatal("Expected second attempt to be blocked")
	}

	mr.FastForward(time.Minute)

	check, err := ledger.CheckAndIncrement(ctx, key, limit)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if check.Blocked {
		t.Error("Expected fresh window after expiry")
	}
}

func TestRedisLedger_RearmsMissingTTL(t *testing.T) {
	ledger, mr := newTestRedisLedger(t)
	ctx := context.Background()

	mr.Set("signup:rl:ip:10.0.0.1", "2")

	check, err := ledger.CheckAndIncrement(ctx, Key{Identifier: "10.0.0.1", Type: LimitIP}, Limit{MaxAttempts: 5, Window: time.Hour})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if check.AttemptsRemaining != 2 {
		t.Errorf("Expected 2 remaining, got %d", check.AttemptsRemaining)
	}
	if ttl := mr.TTL("signup:rl:ip:10.0.0.1"); ttl != time.Hour {
		t.Errorf("Expected TTL re-armed, got %v", ttl)
	}
}

func TestRedisLedger_Concurrent(t *testing.T) {
	ledger, _ := newTestRedisLedger(t)
	ctx := context.Background()
	key := Key{Identifier: "203.0.113.9", Type: LimitIP}
	limit := Limit{MaxAttempts: 5, Window: time.Hour}

	var allowed int64
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			check, err := ledger.CheckAndIncrement(ctx, key, limit)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if !check.Blocked {
				atomic.AddInt64(&allowed, 1)
			}
		}()
	}
	wg.Wait()

	if allowed != int64(limit.MaxAttempts) {
		t.Errorf("Expected exactly %d allowed, got %d", limit.MaxAttempts, allowed)
	}
}

func TestRedisLedger_Unavailable(t *testing.T) {
	ledger, mr := newTestRedisLedger(t)
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := ledger.CheckAndIncrement(ctx, Key{Identifier: "a", Type: LimitIP}, Limit{MaxAttempts: 1, Window: time.Minute})
	if !errors.Is(err, ErrLedgerUnavailable) {
		t.Errorf("Expected ErrLedgerUnavailable, got %v", err)
	}
}

func TestRedisLedger_KeyPrefix(t *testing.T) {
	_, mr := newTestRedisLedger(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	ledger := NewRedisLedger(rdb, "staging:rl:")
	if _, err := ledger.CheckAndIncrement(context.Background(), Key{Identifier: GlobalIdentifier, Type: LimitGlobal}, Limit{MaxAttempts: 100, Window: time.Minute}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !mr.Exists("staging:rl:global:global") {
		t.Errorf("Expected prefixed key, got %v", mr.Keys())
	}
	if mr.Exists("signup:rl:global:global") {
		t.Error("Expected default prefix unused")
	}
}
