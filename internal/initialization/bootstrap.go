package initialization

import (
	"context"
	"fmt"
	"time"

	"github.com/weddingdesk/api/internal/admission"
	"github.com/weddingdesk/api/internal/logging"
)

// SchemaStore is the database surface bootstrap needs; *db.Queries implements it
type SchemaStore interface {
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	TableExists(ctx context.Context, table string) (bool, error)
}

// Bootstrap brings the database and admission policy to a usable state
type Bootstrap struct {
	store     SchemaStore
	tiers     []admission.Tier
	health    *HealthChecker
	logger    *logging.Logger
	validator *Validator
	retry     RetryConfig
}

// NewBootstrap creates a new bootstrap instance. health may be nil.
func NewBootstrap(store SchemaStore, tiers []admission.Tier, health *HealthChecker, logger *logging.Logger) *Bootstrap {
	return &Bootstrap{
		store:     store,
		tiers:     tiers,
		health:    health,
		logger:    logger,
		validator: NewValidator(logger),
		retry:     DefaultRetryConfig(),
	}
}

// WithRetry overrides the retry policy used for database steps
func (b *Bootstrap) WithRetry(cfg RetryConfig) *Bootstrap {
	b.retry = cfg
	return b
}

// Initialize performs all initialization tasks in order. Database and schema
// failures abort; validation and health problems are logged only, except an
// invalid admission policy, which aborts.
func (b *Bootstrap) Initialize(ctx context.Context) error {
	metrics := NewBootstrapMetrics()
	defer func() {
		metrics.Finish()
		metrics.LogMetrics(b.logger)
	}()

	b.logger.Info("Starting application bootstrap sequence", nil)

	// Step 1: admission policy
	policyStart := time.Now()
	policy := b.validator.ValidatePolicy(b.tiers)
	b.validator.Log("policy", policy)
	metrics.TrackStep("policy", time.Since(policyStart), policy.Valid)
	if !policy.Valid {
		return fmt.Errorf("invalid admission policy: %v", policy.Errors)
	}

	if b.store != nil {
		// Step 2: database reachable (with retry)
		stepStart := time.Now()
		if err := Retry(ctx, b.logger, b.retry, "database ping", b.store.Ping); err != nil {
			metrics.TrackStep("database", time.Since(stepStart), false)
			return fmt.Errorf("failed to reach database: %w", err)
		}
		metrics.TrackStep("database", time.Since(stepStart), true)

		// Step 3: schema (with retry)
		schemaStart := time.Now()
		if err := Retry(ctx, b.logger, b.retry, "schema migration", b.store.Migrate); err != nil {
			metrics.TrackStep("schema", time.Since(schemaStart), false)
			return fmt.Errorf("failed to apply schema: %w", err)
		}
		metrics.TrackStep("schema", time.Since(schemaStart), true)

		// Step 4: schema validation
		validationStart := time.Now()
		schema := b.validator.ValidateSchema(ctx, b.store)
		b.validator.Log("schema", schema)
		metrics.TrackStep("validation", time.Since(validationStart), schema.Valid)
	}

	// Step 5: health check
	if b.health != nil {
		healthStart := time.Now()
		healthStatus := b.health.CheckAll(ctx)
		metrics.TrackStep("health_check", time.Since(healthStart), healthStatus.Overall)
		if !healthStatus.Overall {
			b.logger.Warn("Health check completed with issues", map[string]interface{}{
				"status": healthStatus.Status,
				"checks": healthStatus.Checks,
			})
		} else {
			b.logger.Info("Health check passed", map[string]interface{}{
				"status": healthStatus.Status,
			})
		}
	}

	b.logger.Info("Application bootstrap completed successfully", nil)
	return nil
}
