package middleware

import (
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"territory-service/internal/ratelimit"
)

// Guards bundles the per-route wrappers handlers choose from when registering routes.
type Guards struct {
	Tokens  TokenValidator
	Limiter ratelimit.Limiter
	Logger  *zap.Logger
}

// Auth wraps h with bearer authentication.
func (g Guards) Auth(h fasthttp.RequestHandler) fasthttp.RequestHandler {
	return RequireAuth(g.Tokens, h)
}

// Limit wraps h with per-IP rate limiting under scope.
func (g Guards) Limit(scope string, h fasthttp.RequestHandler) fasthttp.RequestHandler {
	return RateLimit(g.Limiter, scope, g.Logger, h)
}

// ActorID returns the authenticated user id of rc, or "" when RequireAuth did not run.
func ActorID(rc *fasthttp.RequestCtx) string {
	id, _ := GetUserID(Context(rc))
	return id
}
