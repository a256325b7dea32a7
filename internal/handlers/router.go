package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/weddingdesk/api/internal/logging"
	"github.com/weddingdesk/api/internal/metrics"
	"github.com/weddingdesk/api/internal/middleware"
)

// Signup routes. The second path mirrors the serverless function URL the
// web client used before the API existed.
const (
	SignupPath         = "/api/v1/auth/signup"
	FunctionSignupPath = "/functions/v1/signup"
)

// RouterConfig collects what NewRouter mounts. Nil handlers are skipped.
type RouterConfig struct {
	Signup          *SignupHandlers
	Health          *HealthHandlers
	Stats           *AdmissionStatsHandlers
	Logger          *logging.Logger
	CORS            middleware.CORSOptions
	TrustedIPHeader string
	MaxBodyBytes    int64
}

// NewRouter builds the HTTP handler for the service
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	router := mux.NewRouter()

	// Apply middleware (order matters)
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.ClientIPMiddleware(cfg.TrustedIPHeader))
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))

	if cfg.Health != nil {
		router.HandleFunc("/health", cfg.Health.Health).Methods("GET")
	}
	router.Handle("/metrics", metrics.Handler()).Methods("GET")

	if cfg.Signup != nil {
		// Signup answers every method itself so that non-POST gets a JSON 405
		limit := middleware.RequestSizeMiddleware(cfg.MaxBodyBytes)
		for _, path := range []string{SignupPath, FunctionSignupPath} {
			router.Handle(path, limit(http.HandlerFunc(cfg.Signup.Signup)))
		}
	}

	if cfg.Stats != nil {
		statsRouter := router.PathPrefix("/api/v1/admission").Subrouter()
		statsRouter.HandleFunc("/stats", cfg.Stats.GetStats).Methods("GET")
		statsRouter.HandleFunc("/stats/reset", cfg.Stats.ResetStats).Methods("POST")
	}

	return middleware.CORSHandler(cfg.CORS, router)
}
