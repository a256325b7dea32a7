package initialization

import (
	"context"
	"fmt"

	"github.com/weddingdesk/api/internal/admission"
	"github.com/weddingdesk/api/internal/logging"
	"github.com/weddingdesk/api/internal/ratelimit"
)

/* RequiredTables must exist once the schema is applied */
var RequiredTables = []string{"users", "signup_rate_limits"}

/* TableChecker reports whether a table exists */
type TableChecker interface {
	TableExists(ctx context.Context, table string) (bool, error)
}

/* Validator validates configuration and data */
type Validator struct {
	logger *logging.Logger
}

/* NewValidator creates a new validator instance */
func NewValidator(logger *logging.Logger) *Validator {
	return &Validator{
		logger: logger,
	}
}

/* ValidationResult represents the result of validation */
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

func newResult() ValidationResult {
	return ValidationResult{
		Valid:    true,
		Errors:   []string{},
		Warnings: []string{},
	}
}

func (r *ValidationResult) fail(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Valid = false
}

func (r *ValidationResult) warn(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

/* ValidateSchema checks that every required table exists */
func (v *Validator) ValidateSchema(ctx context.Context, tables TableChecker) ValidationResult {
	result := newResult()

	for _, table := range RequiredTables {
		exists, err := tables.TableExists(ctx, table)
		if err != nil {
			result.fail("Failed to check table '%s': %v", table, err)
			continue
		}
		if !exists {
			result.fail("Required table '%s' not found", table)
		}
	}

	return result
}

/* ValidatePolicy checks the admission tiers. Every limit type must appear
 * exactly once with a usable limit. */
func (v *Validator) ValidatePolicy(tiers []admission.Tier) ValidationResult {
	result := newResult()

	seen := make(map[ratelimit.LimitType]bool)
	for i, tier := range tiers {
		if seen[tier.Type] {
			result.fail("Tier %d: duplicate limit type '%s'", i+1, tier.Type)
		}
		seen[tier.Type] = true

		if err := tier.Limit.Validate(); err != nil {
			result.fail("Tier %d (%s): %v", i+1, tier.Type, err)
		}
		if tier.Reason == "" {
			result.fail("Tier %d (%s): reason is required", i+1, tier.Type)
		}
	}

	for _, t := range []ratelimit.LimitType{ratelimit.LimitIP, ratelimit.LimitEmail, ratelimit.LimitGlobal} {
		if !seen[t] {
			result.warn("No '%s' tier configured; that limit is not enforced", t)
		}
	}

	if len(tiers) > 0 && tiers[0].Type != ratelimit.LimitIP {
		result.warn("First tier is '%s'; a single source can exhaust later tiers before the ip tier runs", tiers[0].Type)
	}

	return result
}

/* Log writes the result's errors and warnings */
func (v *Validator) Log(name string, result ValidationResult) {
	for _, msg := range result.Errors {
		v.logger.Error("Validation error", fmt.Errorf("%s", msg), map[string]interface{}{"check": name})
	}
	for _, msg := range result.Warnings {
		v.logger.Warn("Validation warning", map[string]interface{}{"check": name, "warning": msg})
	}
}
