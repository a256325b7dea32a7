package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// windowStoreStub mimics the SQL upsert in memory
type windowStoreStub struct {
	mu      sync.Mutex
	rows    map[string]*stubRow
	failure error
}

type stubRow struct {
	count int64
	start time.Time
}

func newWindowStoreStub() *windowStoreStub {
	return &windowStoreStub{rows: make(map[string]*stubRow)}
}

func (s *windowStoreStub) IncrementRateLimitWindow(_ context.Context, identifier, limitType string, window time.Duration, now time.Time) (int64, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failure != nil {
		return 0, time.Time{}, s.failure
	}
	k := limitType + ":" + identifier
	row, ok := s.rows[k]
	if !ok {
		row = &stubRow{count: 0, start: now}
		s.rows[k] = row
	} else if !row.start.Add(window).After(now) {
		row.count = 0
		row.start = now
	}
	row.count++
	return row.count, row.start, nil
}

func (s *windowStoreStub) DeleteExpiredRateLimitWindows(_ context.Context, maxWindow time.Duration, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failure != nil {
		return 0, s.failure
	}
	var n int64
	for k, row := range s.rows {
		if !row.start.Add(maxWindow).After(now) {
			delete(s.rows, k)
			n++
		}
	}
	return n, nil
}

func TestPostgresLedger_EvaluatesStoreResult(t *testing.T) {
	store := newWindowStoreStub()
	ledger := NewPostgresLedger(store)
	clock := newFakeClock()
	ledger.now = clock.Now
	ctx := context.Background()
	key := Key{Identifier: "bride@example.com", Type: LimitEmail}
	limit := Limit{MaxAttempts: 3, Window: time.Hour}

	for i := 1; i <= 3; i++ {
		check, err := ledger.CheckAndIncrement(ctx, key, limit)
		if err != nil {
			t.Fatalf("attempt %d: unexpected error: %v", i, err)
		}
		if check.Blocked || check.AttemptsRemaining != 3-i {
			t.Fatalf("attempt %d: unexpected check %+v", i, check)
		}
	}

	check, _ := ledger.CheckAndIncrement(ctx, key, limit)
	if !check.Blocked {
		t.Fatal("Expected fourth attempt to be blocked")
	}
	if !check.ResetTime.Equal(clock.Now().Add(time.Hour)) {
		t.Errorf("Expected reset at window end, got %v", check.ResetTime)
	}

	clock.Advance(time.Hour)
	check, _ = ledger.CheckAndIncrement(ctx, key, limit)
	if check.Blocked || check.AttemptsRemaining != 2 {
		t.Errorf("Expected fresh window after expiry, got %+v", check)
	}
}

func TestPostgresLedger_StoreFailure(t *testing.T) {
	store := newWindowStoreStub()
	store.failure = errors.New("connection reset by peer")
	ledger := NewPostgresLedger(store)

	_, err := ledger.CheckAndIncrement(context.Background(), Key{Identifier: "a", Type: LimitIP}, Limit{MaxAttempts: 1, Window: time.Minute})
	if !errors.Is(err, ErrLedgerUnavailable) {
		t.Errorf("Expected ErrLedgerUnavailable, got %v", err)
	}

	_, err = ledger.Sweep(context.Background(), time.Hour)
	if !errors.Is(err, ErrLedgerUnavailable) {
		t.Errorf("Expected ErrLedgerUnavailable from sweep, got %v", err)
	}
}

func TestPostgresLedger_Sweep(t *testing.T) {
	store := newWindowStoreStub()
	ledger := NewPostgresLedger(store)
	clock := newFakeClock()
	ledger.now = clock.Now
	ctx := context.Background()

	ledger.CheckAndIncrement(ctx, Key{Identifier: "a", Type: LimitIP}, Limit{MaxAttempts: 5, Window: time.Hour})
	clock.Advance(30 * time.Minute)
	ledger.CheckAndIncrement(ctx, Key{Identifier: "b", Type: LimitIP}, Limit{MaxAttempts: 5, Window: time.Hour})
	clock.Advance(30 * time.Minute)

	n, err := ledger.Sweep(ctx, time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 expired row, got %d", n)
	}
}
