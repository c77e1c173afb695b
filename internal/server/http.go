// Package server assembles the HTTP router and middleware chain and runs the fasthttp server.
package server

import (
	"context"
	"time"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"territory-service/internal/server/middleware"
	"territory-service/internal/server/response"
)

// RouteRegistrar is a handler group that adds its routes to a router.
type RouteRegistrar interface {
	Register(r *router.Router, g middleware.Guards)
}

// Deps holds everything the HTTP surface needs.
type Deps struct {
	// Handlers register their routes in order.
	Handlers []RouteRegistrar
	Guards   middleware.Guards
	// Tracer defaults to the global tracer provider.
	Tracer        trace.Tracer
	Requests      middleware.RequestRecorder
	AllowedOrigin string
	// TrustedProxies may set X-Forwarded-For; other peers are identified by their address.
	TrustedProxies middleware.TrustedProxies
	Logger         *zap.Logger
}

// NewHandler returns the root request handler: CORS, then telemetry, then the router.
func NewHandler(deps Deps) fasthttp.RequestHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Guards.Logger == nil {
		deps.Guards.Logger = logger
	}
	r := router.New()
	r.SaveMatchedRoutePath = true
	r.PanicHandler = func(rc *fasthttp.RequestCtx, v interface{}) {
		logger.Error("panic in handler", zap.Any("panic", v), zap.ByteString("path", rc.Path()))
		response.Status(rc, fasthttp.StatusInternalServerError, "internal", "internal server error")
	}
	r.NotFound = func(rc *fasthttp.RequestCtx) {
		response.Status(rc, fasthttp.StatusNotFound, "not_found", "not found")
	}
	r.GET("/api/health", func(rc *fasthttp.RequestCtx) {
		response.JSON(rc, fasthttp.StatusOK, map[string]string{"status": "ok"})
	})
	for _, h := range deps.Handlers {
		h.Register(r, deps.Guards)
	}
	return middleware.CORS(deps.AllowedOrigin, middleware.Telemetry(deps.Tracer, deps.Requests, deps.TrustedProxies, logger, r.Handler))
}

// Server runs a fasthttp server.
type Server struct {
	srv    *fasthttp.Server
	addr   string
	logger *zap.Logger
}

// New returns a Server listening on addr with handler.
func New(addr string, handler fasthttp.RequestHandler, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		srv: &fasthttp.Server{
			Handler:      handler,
			Name:         "territory-service",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		addr:   addr,
		logger: logger,
	}
}

// ListenAndServe blocks serving HTTP until Shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", zap.String("addr", s.addr))
	return s.srv.ListenAndServe(s.addr)
}

// Shutdown stops accepting connections and waits for in-flight requests until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.srv.ShutdownWithContext(ctx)
}
