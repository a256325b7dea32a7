package ratelimit

import (
	"context"
	"time"
)

// WindowStore performs the atomic window upsert in SQL. It must reset an
// expired window and increment in the same statement and return the
// post-increment state.
type WindowStore interface {
	IncrementRateLimitWindow(ctx context.Context, identifier, limitType string, window time.Duration, now time.Time) (count int64, windowStart time.Time, err error)
	DeleteExpiredRateLimitWindows(ctx context.Context, maxWindow time.Duration, now time.Time) (int64, error)
}

// PostgresLedger persists windows in a table; the row lock taken by the
// upsert serializes concurrent callers of one key.
type PostgresLedger struct {
	store WindowStore
	now   func() time.Time
}

// NewPostgresLedger creates a ledger backed by store
func NewPostgresLedger(store WindowStore) *PostgresLedger {
	return &PostgresLedger{store: store, now: time.Now}
}

// CheckAndIncrement implements Ledger
func (p *PostgresLedger) CheckAndIncrement(ctx context.Context, key Key, limit Limit) (Check, error) {
	count, start, err := p.store.IncrementRateLimitWindow(ctx, key.Identifier, string(key.Type), limit.Window, p.now().UTC())
	if err != nil {
		return Check{}, unavailable("postgres upsert", err)
	}
	return evaluate(count, start, limit), nil
}

// Sweep deletes rows whose window ended more than maxWindow ago. maxWindow
// must be at least the longest configured window or live rows are lost.
func (p *PostgresLedger) Sweep(ctx context.Context, maxWindow time.Duration) (int64, error) {
	n, err := p.store.DeleteExpiredRateLimitWindows(ctx, maxWindow, p.now().UTC())
	if err != nil {
		return 0, unavailable("postgres sweep", err)
	}
	return n, nil
}

// StartJanitor runs Sweep every interval until ctx is done. Errors are
// passed to onErr, which may be nil.
func (p *PostgresLedger) StartJanitor(ctx context.Context, every, maxWindow time.Duration, onErr func(error)) {
	if every <= 0 {
		return
	}

	ticker := time.NewTicker(every)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := p.Sweep(ctx, maxWindow); err != nil && onErr != nil {
					onErr(err)
				}
			}
		}
	}()
}
