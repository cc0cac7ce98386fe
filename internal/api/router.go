// Package api exposes the lookup service over HTTP.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/maltedev/storefront-sku-lookup/internal/api/middleware"
	"github.com/maltedev/storefront-sku-lookup/internal/scraper"
)

type RouterConfig struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
	MaxBatchSize   int

	EnableRateLimiting bool
	RateLimit          middleware.Limit
}

func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		AllowedOrigins:     []string{"*"},
		RequestTimeout:     10 * time.Minute,
		MaxBatchSize:       50,
		EnableRateLimiting: true,
		RateLimit:          middleware.Limit{Requests: 30, Window: time.Minute},
	}
}

type Dependencies struct {
	Logger         *slog.Logger
	Scraper        scraper.Scraper
	RateLimitStore middleware.RateLimitStore
}

func NewRouter(deps Dependencies, config RouterConfig) *chi.Mux {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(chimiddleware.Timeout(config.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: config.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "X-Batch-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		MaxAge:         300,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	var store middleware.RateLimitStore
	var rateLimiter *middleware.RateLimiter
	if config.EnableRateLimiting {
		store = deps.RateLimitStore
		if store == nil {
			store = middleware.NewMemoryRateLimitStore()
		}
		rateLimiter = middleware.NewRateLimiter(store, config.RateLimit, logger)
	}

	h := NewHandlers(deps.Scraper, config.MaxBatchSize, store, logger)

	r.Get("/", h.Index)
	r.Get("/health", h.Health)

	r.Group(func(r chi.Router) {
		if rateLimiter != nil {
			r.Use(rateLimiter.Middleware("lookup"))
		}
		r.Get("/search", h.SearchQuery)
		r.Post("/search", h.SearchBody)
		r.Get("/buscar", h.Buscar)
	})

	return r
}
