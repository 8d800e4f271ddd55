package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/cartiva/pricing-api/internal/platform/httpx"
	"github.com/cartiva/pricing-api/internal/services"
)

// RouteRegistrar registers a set of routes against the provided router.
type RouteRegistrar func(r chi.Router)

type routerConfig struct {
	basePath    string
	middlewares []func(http.Handler) http.Handler
	health      *HealthHandlers

	discounts  RouteRegistrar
	priceBands RouteRegistrar
	orders     RouteRegistrar
	sweeper    *services.Sweeper

	internalMiddlewares []func(http.Handler) http.Handler
}

// Option customises the router configuration before construction.
type Option func(*routerConfig)

const (
	defaultAPIPrefix = "/api/v1"
	defaultTimeout   = 30 * time.Second
)

// DefaultMiddlewares returns the baseline middleware chain, for callers that
// want to extend it rather than replace it.
func DefaultMiddlewares() []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Timeout(defaultTimeout),
	}
}

// WithMiddlewares replaces the default middleware chain.
func WithMiddlewares(mws ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) { cfg.middlewares = mws }
}

// WithHealth sets the probe handlers.
func WithHealth(h *HealthHandlers) Option {
	return func(cfg *routerConfig) { cfg.health = h }
}

// WithDiscountRoutes mounts the discount routes under /discounts.
func WithDiscountRoutes(registrar RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.discounts = registrar }
}

// WithPriceBandRoutes mounts the price band routes under /products.
func WithPriceBandRoutes(registrar RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.priceBands = registrar }
}

// WithOrderRoutes mounts the order pricing routes under /orders.
func WithOrderRoutes(registrar RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.orders = registrar }
}

// WithSweeper exposes a manual sweep trigger under /internal/sweep.
func WithSweeper(sweeper *services.Sweeper) Option {
	return func(cfg *routerConfig) { cfg.sweeper = sweeper }
}

// WithInternalMiddlewares guards the /internal group, e.g. with an auth proxy check.
func WithInternalMiddlewares(mws ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) { cfg.internalMiddlewares = mws }
}

// NewRouter constructs the chi router with shared middleware and route groups.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		basePath:    defaultAPIPrefix,
		middlewares: DefaultMiddlewares(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	r := chi.NewRouter()
	if cfg.health == nil {
		cfg.health = NewHealthHandlers(nil)
	}
	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("route_not_found", fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	r.Route(cfg.basePath, func(api chi.Router) {
		if cfg.discounts != nil {
			api.Route("/discounts", func(group chi.Router) { cfg.discounts(group) })
		}
		if cfg.priceBands != nil {
			api.Route("/products", func(group chi.Router) { cfg.priceBands(group) })
		}
		if cfg.orders != nil {
			api.Route("/orders", func(group chi.Router) { cfg.orders(group) })
		}
	})

	r.Route("/internal", func(internal chi.Router) {
		for _, mw := range cfg.internalMiddlewares {
			if mw != nil {
				internal.Use(mw)
			}
		}
		internal.Post("/sweep", sweepHandler(cfg.sweeper))
	})

	return r
}

// sweepHandler triggers one sweep synchronously, for operators and jobs that
// cannot wait for the next tick.
func sweepHandler(sweeper *services.Sweeper) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sweeper == nil {
			httpx.WriteError(r.Context(), w, httpx.NewError("sweep_unavailable", "sweeping is disabled", http.StatusServiceUnavailable))
			return
		}
		if err := sweeper.Sweep(r.Context()); err != nil {
			httpx.WriteError(r.Context(), w, httpx.NewError("sweep_failed", "sweep did not complete", http.StatusInternalServerError))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "swept"})
	}
}
