package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/weddingdesk/api/internal/accounts"
	"github.com/weddingdesk/api/internal/admission"
	"github.com/weddingdesk/api/internal/config"
	"github.com/weddingdesk/api/internal/db"
	"github.com/weddingdesk/api/internal/handlers"
	"github.com/weddingdesk/api/internal/initialization"
	"github.com/weddingdesk/api/internal/logging"
	"github.com/weddingdesk/api/internal/metrics"
	"github.com/weddingdesk/api/internal/middleware"
	"github.com/weddingdesk/api/internal/ratelimit"
)

// set with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logging.NewLogger("error", "json", "stderr").Error("Invalid configuration", err, nil)
		os.Exit(1)
	}

	// Initialize logger
	logger := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	logger.Info("Starting WeddingDesk API server", map[string]interface{}{
		"version":        version,
		"ledger_backend": cfg.RateLimit.Backend,
	})

	// Connect to database
	database, err := sql.Open("pgx", cfg.Database.DSN())
	if err != nil {
		logger.Error("Failed to open database", err, nil)
		os.Exit(1)
	}
	defer database.Close()

	// Configure connection pool
	database.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	database.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	database.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	queries := db.NewQueries(database)

	rootCtx, stop := context.WithCancel(context.Background())
	defer stop()

	health := initialization.NewHealthChecker(logger, 2*time.Second)
	health.Register("database", queries, true)

	ledger, closeLedger := newLedger(rootCtx, cfg, queries, health, logger)
	defer closeLedger()

	// Bootstrap: policy, database, schema
	initCtx, initCancel := context.WithTimeout(rootCtx, 30*time.Second)
	err = initialization.NewBootstrap(queries, cfg.Tiers(), health, logger).Initialize(initCtx)
	initCancel()
	if err != nil {
		logger.Error("Failed to bootstrap application", err, nil)
		os.Exit(1)
	}

	gate := admission.NewGate(ledger, cfg.Tiers(),
		admission.WithTimeout(cfg.RateLimit.LedgerTimeout),
		admission.WithLogger(logger),
		admission.WithStats(metrics.GetGlobalStats()),
	)
	provisioner := accounts.NewService(queries, cfg.Signup.BcryptCost, cfg.Signup.ProvisionTimeout)

	router := handlers.NewRouter(handlers.RouterConfig{
		Signup: handlers.NewSignupHandlers(gate, provisioner, logger, cfg.Signup.MaxBodyBytes),
		Health: handlers.NewHealthHandlers(health, version),
		Stats:  handlers.NewAdmissionStatsHandlers(metrics.GetGlobalStats()),
		Logger: logger,
		CORS: middleware.CORSOptions{
			AllowedOrigins: cfg.CORS.AllowedOrigins,
			AllowedMethods: cfg.CORS.AllowedMethods,
			AllowedHeaders: cfg.CORS.AllowedHeaders,
		},
		TrustedIPHeader: cfg.Signup.TrustedIPHeader,
		MaxBodyBytes:    cfg.Signup.MaxBodyBytes,
	})

	// Create HTTP server
	addr := cfg.Server.Host + ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Server starting", map[string]interface{}{
			"address": addr,
		})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", err, nil)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server", nil)
	stop()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", err, nil)
	}

	logger.Info("Server stopped", nil)
}

// newLedger builds the configured rate-limit backend and starts its expiry
// sweep. The returned func releases backend resources.
func newLedger(ctx context.Context, cfg *config.Config, queries *db.Queries, health *initialization.HealthChecker, logger *logging.Logger) (ratelimit.Ledger, func()) {
	switch cfg.RateLimit.Backend {
	case config.BackendMemory:
		ledger := ratelimit.NewMemoryLedger()
		ledger.StartJanitor(ctx, cfg.RateLimit.JanitorInterval)
		logger.Warn("Using in-process rate-limit ledger; limits are not shared between instances", nil)
		return ledger, func() {}

	case config.BackendRedis:
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    cfg.Redis.Addrs,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ledger := ratelimit.NewRedisLedger(client, cfg.Redis.KeyPrefix)
		// an unreachable ledger fails open, so it only degrades health
		health.Register("ratelimit_ledger", ledger, false)
		return ledger, func() {
			if err := client.Close(); err != nil {
				logger.Warn("Failed to close redis client", map[string]interface{}{"error": err.Error()})
			}
		}

	default:
		ledger := ratelimit.NewPostgresLedger(queries)
		ledger.StartJanitor(ctx, cfg.RateLimit.JanitorInterval, cfg.LongestWindow(), func(err error) {
			logger.Warn("Rate-limit window sweep failed", map[string]interface{}{"error": err.Error()})
		})
		return ledger, func() {}
	}
}
