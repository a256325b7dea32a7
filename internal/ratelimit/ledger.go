// Package ratelimit holds the signup rate-limit ledger: an atomic,
// fixed-window attempt counter keyed by (identifier, limit type).
//
// Every CheckAndIncrement call costs one attempt, blocked or not. A window
// resets hard at window_start + window; there is no sliding decay.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// LimitType names a rate-limit tier
type LimitType string

const (
	LimitIP     LimitType = "ip"
	LimitEmail  LimitType = "email"
	LimitGlobal LimitType = "global"
)

// GlobalIdentifier is the identifier shared by every request on the global tier
const GlobalIdentifier = "global"

// ErrLedgerUnavailable is returned when the backend cannot answer a check.
// It is never reported as a Check.
var ErrLedgerUnavailable = errors.New("rate limit ledger unavailable")

// Key identifies one counter
type Key struct {
	Identifier string
	Type       LimitType
}

func (k Key) String() string {
	return string(k.Type) + ":" + k.Identifier
}

// Limit is the budget applied to a key
type Limit struct {
	MaxAttempts int
	Window      time.Duration
}

// Validate reports whether the limit is usable
func (l Limit) Validate() error {
	if l.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive, got %d", l.MaxAttempts)
	}
	if l.Window <= 0 {
		return fmt.Errorf("window must be positive, got %s", l.Window)
	}
	return nil
}

// Check is the outcome of one check-and-increment
type Check struct {
	Blocked           bool
	AttemptsRemaining int
	// ResetTime is set only when Blocked
	ResetTime *time.Time
}

// Ledger is the single atomic operation the admission gate needs.
// Concurrent calls for the same key must behave as one serialized
// read-modify-write.
type Ledger interface {
	CheckAndIncrement(ctx context.Context, key Key, limit Limit) (Check, error)
}

// evaluate derives a Check from the post-increment window state
func evaluate(count int64, windowStart time.Time, limit Limit) Check {
	remaining := int64(limit.MaxAttempts) - count
	if remaining < 0 {
		remaining = 0
	}
	check := Check{
		Blocked:           count > int64(limit.MaxAttempts),
		AttemptsRemaining: int(remaining),
	}
	if check.Blocked {
		reset := windowStart.Add(limit.Window)
		check.ResetTime = &reset
	}
	return check
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrLedgerUnavailable, op, err)
}
