package ratelimit_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/weddingdesk/api/internal/ratelimit"
	testutil "github.com/weddingdesk/api/internal/testing"
)

func TestPostgresLedger_Integration(t *testing.T) {
	tdb := testutil.SetupTestDB(t)
	ledger := ratelimit.NewPostgresLedger(tdb.Queries)
	ctx := context.Background()

	key := ratelimit.Key{Identifier: "203.0.113.7", Type: ratelimit.LimitIP}
	limit := ratelimit.Limit{MaxAttempts: 5, Window: time.Hour}

	for i := 1; i <= 5; i++ {
		check, err := ledger.CheckAndIncrement(ctx, key, limit)
		if err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
		if check.Blocked || check.AttemptsRemaining != 5-i {
			t.Fatalf("attempt %d: unexpected check %+v", i, check)
		}
	}

	check, err := ledger.CheckAndIncrement(ctx, key, limit)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !check.Blocked || check.ResetTime == nil {
		t.Fatalf("Expected sixth attempt blocked with reset time, got %+v", check)
	}

	row, err := tdb.Queries.GetRateLimitWindow(ctx, key.Identifier, string(key.Type))
	if err != nil {
		t.Fatalf("GetRateLimitWindow: %v", err)
	}
	if row.Count != 6 {
		t.Errorf("Expected blocked attempts to be counted, got %d", row.Count)
	}
	if !check.ResetTime.Equal(row.WindowStart.Add(limit.Window)) {
		t.Errorf("Expected reset at window end %v, got %v", row.WindowStart.Add(limit.Window), check.ResetTime)
	}
}

func TestPostgresLedger_IntegrationConcurrent(t *testing.T) {
	tdb := testutil.SetupTestDB(t)
	ledger := ratelimit.NewPostgresLedger(tdb.Queries)

	key := ratelimit.Key{Identifier: ratelimit.GlobalIdentifier, Type: ratelimit.LimitGlobal}
	limit := ratelimit.Limit{MaxAttempts: 10, Window: time.Minute}

	var allowed int64
	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			check, err := ledger.CheckAndIncrement(context.Background(), key, limit)
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

func TestPostgresLedger_IntegrationSweep(t *testing.T) {
	tdb := testutil.SetupTestDB(t)
	ctx := context.Background()

	old := time.Now().UTC().Add(-3 * time.Hour)
	if _, _, err := tdb.Queries.IncrementRateLimitWindow(ctx, "old@example.com", "email", time.Hour, old); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, _, err := tdb.Queries.IncrementRateLimitWindow(ctx, "new@example.com", "email", time.Hour, time.Now().UTC()); err != nil {
		t.Fatalf("seed: %v", err)
	}

	n, err := ratelimit.NewPostgresLedger(tdb.Queries).Sweep(ctx, time.Hour)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 expired window removed, got %d", n)
	}
	if _, err := tdb.Queries.GetRateLimitWindow(ctx, "new@example.com", "email"); err != nil {
		t.Errorf("Expected live window kept: %v", err)
	}
}
