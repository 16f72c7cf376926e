// Package router wires handlers and middleware into an echo instance.
package router

import (
	"context"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/segment-reservation/internal/config"
	"github.com/iliyamo/segment-reservation/internal/domain"
	"github.com/iliyamo/segment-reservation/internal/handler"
	"github.com/iliyamo/segment-reservation/internal/logger"
	"github.com/iliyamo/segment-reservation/internal/middleware"
)

// Options carries everything the middleware chain needs. Redis may be nil,
// which disables rate limiting and caching.
type Options struct {
	JWTSecret    string
	Capabilities domain.Capabilities
	Redis        *redis.Client
	RateLimit    config.RateLimitConfig
	Cache        config.CacheConfig
	Health       func(ctx context.Context) error
	Log          *logger.Logger
}

// New builds the echo server with every route registered.
func New(h *handler.Handler, opts Options) *echo.Echo {
	if opts.Capabilities == nil {
		opts.Capabilities = domain.DefaultCapabilities()
	}
	if opts.Log == nil {
		opts.Log = logger.Discard()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(opts.Log))

	RegisterRoutes(e, opts)
	v1 := e.Group("/v1", middleware.JWTAuth(opts.JWTSecret))
	r := &registrar{g: v1, caps: opts.Capabilities}
	RegisterBooking(r, h, opts)
	RegisterOperations(r, h, opts)
	return e
}

// RegisterRoutes registers endpoints that need no authentication.
func RegisterRoutes(e *echo.Echo, opts Options) {
	e.GET("/healthz", handler.Health(opts.Health))
}

// registrar mounts a route behind the capability gate of its operation.
type registrar struct {
	g    *echo.Group
	caps domain.Capabilities
}

func (r *registrar) add(method, path string, op domain.Operation, h echo.HandlerFunc, mw ...echo.MiddlewareFunc) {
	chain := append([]echo.MiddlewareFunc{middleware.RequireCapability(r.caps, op)}, mw...)
	r.g.Add(method, path, h, chain...)
}
