package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/vitaliisemenov/execution-bridge/internal/api/middleware"
)

// RouterConfig holds router configuration for the execution-bridge HTTP
// surface: the five endpoints of §6, plus the ambient middleware chain.
type RouterConfig struct {
	EnableRateLimit   bool
	EnableCompression bool
	EnableCORS        bool
	EnableMetrics     bool

	RateLimitPerMinute int
	RateLimitBurst     int

	CORSConfig middleware.CORSConfig

	Logger *slog.Logger

	Handlers *ExecutionHandlers

	// PoolHealth backs the readiness probe; nil means always ready.
	PoolHealth PoolHealthChecker
}

// DefaultRouterConfig returns default router configuration.
func DefaultRouterConfig(logger *slog.Logger) RouterConfig {
	return RouterConfig{
		EnableRateLimit:    true,
		EnableCompression:  true,
		EnableCORS:         true,
		EnableMetrics:      true,
		RateLimitPerMinute: 600,
		RateLimitBurst:     100,
		CORSConfig:         middleware.DefaultCORSConfig(),
		Logger:             logger,
	}
}

// NewRouter builds the execution-bridge router.
//
// The middleware stack is applied in order:
//  1. RequestID (always)
//  2. Logging (always)
//  3. Metrics (if enabled)
//  4. CORS (if enabled)
//  5. Compression (if enabled)
//  6. RateLimit, Validation (route group level)
func NewRouter(config RouterConfig) *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.RequestIDMiddleware)
	router.Use(middleware.LoggingMiddleware(config.Logger))

	if config.EnableMetrics {
		router.Use(middleware.MetricsMiddleware)
	}
	if config.EnableCORS {
		router.Use(middleware.CORSMiddleware(config.CORSConfig))
	}
	if config.EnableCompression {
		router.Use(middleware.CompressionMiddleware)
	}

	router.HandleFunc("/health", HealthCheckHandler(config.Logger)).Methods(http.MethodGet)
	router.HandleFunc("/ready", ReadinessHandler(config.Logger, config.PoolHealth)).Methods(http.MethodGet)

	setupExecutionRoutes(router, config)

	return router
}

// setupExecutionRoutes wires the five endpoints of §6 under /api/v1.
func setupExecutionRoutes(router *mux.Router, config RouterConfig) {
	v1 := router.PathPrefix("/api/v1").Subrouter()
	if config.EnableRateLimit {
		v1.Use(middleware.RateLimitMiddleware(config.RateLimitPerMinute, config.RateLimitBurst))
	}
	v1.Use(middleware.ValidationMiddleware)

	h := config.Handlers
	v1.HandleFunc("/executions", h.ListExecutions).Methods(http.MethodGet)
	v1.HandleFunc("/execution/{id}", h.GetExecution).Methods(http.MethodGet)
	v1.HandleFunc("/executions", h.CreateExecution).Methods(http.MethodPost)
	v1.HandleFunc("/executions/batch", h.CreateExecutionBatch).Methods(http.MethodPost)
	v1.HandleFunc("/execution/{id}", h.UpdateFill).Methods(http.MethodPut)
}

// HealthCheckHandler reports liveness: the process is up and serving.
func HealthCheckHandler(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := map[string]interface{}{"status": "healthy"}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set(middleware.APIVersionHeader, "1.0.0")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(response); err != nil {
			logger.Error("api: failed to encode health response", "error", err)
		}
	}
}

// PoolHealthChecker reports whether the connection pool has headroom, for
// the readiness probe. *poolmonitor.Monitor satisfies this.
type PoolHealthChecker interface {
	Healthy() bool
}

// ReadinessHandler reports readiness: unready when poolHealth is non-nil and
// reports an unhealthy pool; always ready when poolHealth is nil.
func ReadinessHandler(logger *slog.Logger, poolHealth PoolHealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		body := map[string]interface{}{"status": "ready"}
		if poolHealth != nil && !poolHealth.Healthy() {
			status = http.StatusServiceUnavailable
			body["status"] = "not_ready"
			body["reason"] = "connection pool near saturation"
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if err := json.NewEncoder(w).Encode(body); err != nil {
			logger.Error("api: failed to encode readiness response", "error", err)
		}
	}
}
