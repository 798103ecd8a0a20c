package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/PauloRGNDev/lovableshop-starter/internal/platform/httpx"
)

// RouteRegistrar registers a set of routes against the provided router.
type RouteRegistrar func(r chi.Router)

// RouteGroup names a sub-tree mounted under the API base path.
type RouteGroup string

const (
	GroupPublic   RouteGroup = "public"
	GroupAuth     RouteGroup = "auth"
	GroupMe       RouteGroup = "me"
	GroupCart     RouteGroup = "cart"
	GroupCheckout RouteGroup = "checkout"
	GroupOrders   RouteGroup = "orders"
	GroupAdmin    RouteGroup = "admin"
	GroupWebhooks RouteGroup = "webhooks"
	GroupInternal RouteGroup = "internal"
)

// storefrontGroups is the mount order. Groups without a registrar answer 501.
var storefrontGroups = []RouteGroup{
	GroupPublic,
	GroupAuth,
	GroupMe,
	GroupCart,
	GroupCheckout,
	GroupOrders,
	GroupAdmin,
	GroupWebhooks,
	GroupInternal,
}

const (
	defaultAPIPrefix   = "/api/v1"
	defaultTimeout     = 30 * time.Second
	defaultMaxBodySize = 1 << 20
)

type mountedGroup struct {
	registrar   RouteRegistrar
	middlewares []func(http.Handler) http.Handler
}

type routerConfig struct {
	basePath    string
	middlewares []func(http.Handler) http.Handler
	health      *HealthHandlers
	groups      map[RouteGroup]*mountedGroup
}

func (c *routerConfig) group(name RouteGroup) *mountedGroup {
	g, ok := c.groups[name]
	if !ok {
		g = &mountedGroup{}
		c.groups[name] = g
	}
	return g
}

// Option customises the router configuration before construction.
type Option func(*routerConfig)

// NewRouter builds the storefront router: health probes at the root and every route group
// under /api/v1.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		basePath: defaultAPIPrefix,
		middlewares: []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Timeout(defaultTimeout),
			middleware.RequestSize(defaultMaxBodySize),
		},
		groups: make(map[RouteGroup]*mountedGroup, len(storefrontGroups)),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	r := chi.NewRouter()
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
		for _, name := range storefrontGroups {
			mounted := cfg.groups[name]
			api.Route("/"+string(name), func(sub chi.Router) {
				if mounted == nil || mounted.registrar == nil {
					registerNotImplemented(sub, name)
					return
				}
				for _, mw := range mounted.middlewares {
					if mw != nil {
						sub.Use(mw)
					}
				}
				mounted.registrar(sub)
			})
		}
	})

	return r
}

// WithMiddlewares appends global middleware.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithHealthHandlers overrides the /healthz and /readyz handlers.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.health = h
	}
}

// WithRoutes mounts reg under the named group.
func WithRoutes(group RouteGroup, reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.group(group).registrar = reg
	}
}

// WithGroupMiddlewares wraps one group. Middleware only runs when the group has routes.
func WithGroupMiddlewares(group RouteGroup, mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		g := cfg.group(group)
		g.middlewares = append(g.middlewares, mw...)
	}
}

func registerNotImplemented(r chi.Router, name RouteGroup) {
	handler := func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("not_implemented", fmt.Sprintf("%s routes not implemented", name), http.StatusNotImplemented))
	}
	r.HandleFunc("/*", handler)
	r.HandleFunc("/", handler)
}
