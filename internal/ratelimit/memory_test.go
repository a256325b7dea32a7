package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 6, 20, 15, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestMemoryLedger_CountsDownThenBlocks(t *testing.T) {
	clock := newFakeClock()
	ledger := NewMemoryLedger(WithClock(clock.Now))
	ctx := context.Background()
	key := Key{Identifier: "203.0.113.7", Type: LimitIP}
	limit := Limit{MaxAttempts: 5, Window: time.Hour}

	for i := 1; i <= limit.MaxAttempts; i++ {
		check, err := ledger.CheckAndIncrement(ctx, key, limit)
		if err != nil {
			t.Fatalf("attempt %d: unexpected error: %v", i, err)
		}
		if check.Blocked {
			t.Fatalf("attempt %d: expected not blocked", i)
		}
		if want := limit.MaxAttempts - i; check.AttemptsRemaining != want {
			t.Errorf("attempt %d: expected %d remaining, got %d", i, want, check.AttemptsRemaining)
		}
		if check.ResetTime != nil {
			t.Errorf("attempt %d: expected no reset time while allowed", i)
		}
	}

	check, err := ledger.CheckAndIncrement(ctx, key, limit)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !check.Blocked {
		t.Fatal("Expected attempt N+1 to be blocked")
	}
	if check.AttemptsRemaining != 0 {
		t.Errorf("Expected 0 remaining, got %d", check.AttemptsRemaining)
	}
	if check.ResetTime == nil || !check.ResetTime.Equal(clock.Now().Add(time.Hour)) {
		t.Errorf("Expected reset at window end, got %v", check.ResetTime)
	}
}

func TestMemoryLedger_BlockedCallsStillConsumeBudget(t *testing.T) {
	clock := newFakeClock()
	ledger := NewMemoryLedger(WithClock(clock.Now))
	ctx := context.Background()
	key := Key{Identifier: "x@example.com", Type: LimitEmail}
	limit := Limit{MaxAttempts: 1, Window: time.Minute}

	for i := 0; i < 3; i++ {
		if _, err := ledger.CheckAndIncrement(ctx, key, limit); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	clock.Advance(30 * time.Second)
	check, _ := ledger.CheckAndIncrement(ctx, key, limit)
	if !check.Blocked {
		t.Error("Expected key to stay blocked inside the window")
	}
	if !check.ResetTime.Equal(clock.Now().Add(30 * time.Second)) {
		t.Errorf("Expected reset time anchored to window start, got %v", check.ResetTime)
	}
}

func TestMemoryLedger_ResetsAfterWindow(t *testing.T) {
	clock := newFakeClock()
	ledger := NewMemoryLedger(WithClock(clock.Now))
	ctx := context.Background()
	key := Key{Identifier: GlobalIdentifier, Type: LimitGlobal}
	limit := Limit{MaxAttempts: 2, Window: time.Minute}

	for i := 0; i < 4; i++ {
		ledger.CheckAndIncrement(ctx, key, limit)
	}

	// the boundary itself belongs to the next window
	clock.Advance(time.Minute)
	check, err := ledger.CheckAndIncrement(ctx, key, limit)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if check.Blocked {
		t.Fatal("Expected fresh window after expiry")
	}
	if check.AttemptsRemaining != 1 {
		t.Errorf("Expected count reset to 1 (1 remaining), got %d remaining", check.AttemptsRemaining)
	}
}

func TestMemoryLedger_KeysAreIndependent(t *testing.T) {
	ledger := NewMemoryLedger()
	ctx := context.Background()
	limit := Limit{MaxAttempts: 1, Window: time.Hour}

	ledger.CheckAndIncrement(ctx, Key{Identifier: "a", Type: LimitIP}, limit)
	check, _ := ledger.CheckAndIncrement(ctx, Key{Identifier: "a", Type: LimitEmail}, limit)
	if check.Blocked {
		t.Error("Expected same identifier under another type to have its own window")
	}
	check, _ = ledger.CheckAndIncrement(ctx, Key{Identifier: "b", Type: LimitIP}, limit)
	if check.Blocked {
		t.Error("Expected different identifier to have its own window")
	}
}

func TestMemoryLedger_ConcurrentCallersNeverOvershoot(t *testing.T) {
	ledger := NewMemoryLedger()
	ctx := context.Background()
	key := Key{Identifier: "198.51.100.1", Type: LimitIP}
	limit := Limit{MaxAttempts: 10, Window: time.Hour}

	var allowed int64
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
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
	close(start)
	wg.Wait()

	if allowed != int64(limit.MaxAttempts) {
		t.Errorf("Expected exactly %d allowed, got %d", limit.MaxAttempts, allowed)
	}
}

func TestMemoryLedger_ConcurrentWithSweep(t *testing.T) {
	clock := newFakeClock()
	ledger := NewMemoryLedger(WithClock(clock.Now))
	ctx := context.Background()
	key := Key{Identifier: "sweep", Type: LimitIP}
	limit := Limit{MaxAttempts: 50, Window: time.Hour}

	var allowed int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			check, _ := ledger.CheckAndIncrement(ctx, key, limit)
			if !check.Blocked {
				atomic.AddInt64(&allowed, 1)
			}
			ledger.Sweep()
		}()
	}
	wg.Wait()

	if allowed != int64(limit.MaxAttempts) {
		t.Errorf("Expected sweeps of live windows to lose no increments, got %d allowed", allowed)
	}
}

func TestMemoryLedger_Sweep(t *testing.T) {
	clock := newFakeClock()
	ledger := NewMemoryLedger(WithClock(clock.Now))
	ctx := context.Background()

	ledger.CheckAndIncrement(ctx, Key{Identifier: "short", Type: LimitGlobal}, Limit{MaxAttempts: 1, Window: time.Minute})
	ledger.CheckAndIncrement(ctx, Key{Identifier: "long", Type: LimitIP}, Limit{MaxAttempts: 1, Window: time.Hour})

	clock.Advance(2 * time.Minute)
	if removed := ledger.Sweep(); removed != 1 {
		t.Errorf("Expected 1 expired window removed, got %d", removed)
	}
	if ledger.Len() != 1 {
		t.Errorf("Expected 1 live window, got %d", ledger.Len())
	}
}

func TestMemoryLedger_CancelledContext(t *testing.T) {
	ledger := NewMemoryLedger()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ledger.CheckAndIncrement(ctx, Key{Identifier: "a", Type: LimitIP}, Limit{MaxAttempts: 1, Window: time.Minute})
	if !errors.Is(err, ErrLedgerUnavailable) {
		t.Errorf("Expected ErrLedgerUnavailable, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled in chain, got %v", err)
	}
}
