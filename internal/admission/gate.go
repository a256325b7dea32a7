// Package admission decides whether a validated signup may reach account
// provisioning. It runs the IP, email and global rate-limit tiers in that
// order and stops at the first tier that blocks.
package admission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/weddingdesk/api/internal/logging"
	"github.com/weddingdesk/api/internal/metrics"
	"github.com/weddingdesk/api/internal/ratelimit"
	"github.com/weddingdesk/api/internal/utils"
)

// Rejection reasons, also used as the 429 response code
const (
	ReasonIPRateLimited    = "ip_rate_limited"
	ReasonEmailRateLimited = "email_rate_limited"
	ReasonOverloaded       = "service_overloaded"
)

// DefaultLedgerTimeout bounds a single ledger call
const DefaultLedgerTimeout = 2 * time.Second

// Tier is one rate-limit check in the gate
type Tier struct {
	Type   ratelimit.LimitType
	Limit  ratelimit.Limit
	Reason string
}

// DefaultTiers returns the production tiers in check order
func DefaultTiers() []Tier {
	return []Tier{
		{Type: ratelimit.LimitIP, Limit: ratelimit.Limit{MaxAttempts: 5, Window: 60 * time.Minute}, Reason: ReasonIPRateLimited},
		{Type: ratelimit.LimitEmail, Limit: ratelimit.Limit{MaxAttempts: 3, Window: 60 * time.Minute}, Reason: ReasonEmailRateLimited},
		{Type: ratelimit.LimitGlobal, Limit: ratelimit.Limit{MaxAttempts: 100, Window: time.Minute}, Reason: ReasonOverloaded},
	}
}

// RateLimitExceeded is returned by Admit when a tier blocks the request
type RateLimitExceeded struct {
	Tier       ratelimit.LimitType
	Reason     string
	RetryAfter *time.Time
}

func (e *RateLimitExceeded) Error() string {
	if e.RetryAfter != nil {
		return fmt.Sprintf("rate limit exceeded: %s until %s", e.Reason, e.RetryAfter.UTC().Format(time.RFC3339))
	}
	return "rate limit exceeded: " + e.Reason
}

// Gate runs the tiers against a ledger. It holds no window state itself.
type Gate struct {
	ledger  ratelimit.Ledger
	tiers   []Tier
	timeout time.Duration
	logger  *logging.Logger
	stats   *metrics.AdmissionStats
}

// Option configures a Gate
type Option func(*Gate)

// WithTimeout sets the per-call ledger timeout
func WithTimeout(d time.Duration) Option {
	return func(g *Gate) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithLogger sets the logger used for degraded tiers
func WithLogger(logger *logging.Logger) Option {
	return func(g *Gate) { g.logger = logger }
}

// WithStats sets where decisions are tallied
func WithStats(stats *metrics.AdmissionStats) Option {
	return func(g *Gate) { g.stats = stats }
}

// NewGate creates a gate. A nil or empty tiers slice means DefaultTiers.
func NewGate(ledger ratelimit.Ledger, tiers []Tier, opts ...Option) *Gate {
	if len(tiers) == 0 {
		tiers = DefaultTiers()
	}
	g := &Gate{
		ledger:  ledger,
		tiers:   append([]Tier(nil), tiers...),
		timeout: DefaultLedgerTimeout,
		logger:  logging.Nop(),
		stats:   metrics.NewAdmissionStats(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Tiers returns a copy of the configured tiers
func (g *Gate) Tiers() []Tier {
	return append([]Tier(nil), g.tiers...)
}

// Admit returns nil when every tier passes, or a *RateLimitExceeded for the
// first tier that blocks. Each tier consumes budget whether or not a later
// tier blocks. A tier whose ledger call fails is skipped and reported as
// degraded; Admit never returns the ledger error.
func (g *Gate) Admit(ctx context.Context, clientIP, email string) error {
	for _, tier := range g.tiers {
		key := ratelimit.Key{Identifier: identifierFor(tier.Type, clientIP, email), Type: tier.Type}

		start := time.Now()
		check, err := g.check(ctx, key, tier.Limit)
		elapsed := time.Since(start).Seconds()

		if err != nil {
			metrics.RecordAdmission(string(tier.Type), metrics.OutcomeDegraded, elapsed)
			metrics.RecordLedgerError(string(tier.Type))
			g.stats.RecordDegraded(string(tier.Type), err)
			g.logger.Warn("Rate limit ledger unavailable, admitting tier unchecked", map[string]interface{}{
				"tier":       string(tier.Type),
				"identifier": redactIdentifier(key),
				"timeout":    errors.Is(err, context.DeadlineExceeded),
				"error":      err.Error(),
			})
			continue
		}

		if check.Blocked {
			metrics.RecordAdmission(string(tier.Type), metrics.OutcomeBlocked, elapsed)
			g.stats.RecordTier(string(tier.Type), metrics.OutcomeBlocked)
			g.stats.RecordDecision(false)
			return &RateLimitExceeded{Tier: tier.Type, Reason: tier.Reason, RetryAfter: check.ResetTime}
		}

		metrics.RecordAdmission(string(tier.Type), metrics.OutcomeAllowed, elapsed)
		g.stats.RecordTier(string(tier.Type), metrics.OutcomeAllowed)
	}

	g.stats.RecordDecision(true)
	return nil
}

func (g *Gate) check(ctx context.Context, key ratelimit.Key, limit ratelimit.Limit) (ratelimit.Check, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	check, err := g.ledger.CheckAndIncrement(ctx, key, limit)
	if err == nil && !check.Blocked && ctx.Err() != nil {
		// a late allow counts as a timeout; a late block is still honored
		err = fmt.Errorf("%w: %w", ratelimit.ErrLedgerUnavailable, ctx.Err())
	}
	return check, err
}

func identifierFor(t ratelimit.LimitType, clientIP, email string) string {
	switch t {
	case ratelimit.LimitIP:
		return clientIP
	case ratelimit.LimitEmail:
		return email
	default:
		return ratelimit.GlobalIdentifier
	}
}

func redactIdentifier(key ratelimit.Key) string {
	if key.Type == ratelimit.LimitEmail {
		return utils.RedactEmail(key.Identifier)
	}
	return key.Identifier
}
