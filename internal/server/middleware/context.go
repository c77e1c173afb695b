// Package middleware holds the fasthttp middleware chain: CORS, request context, telemetry,
// bearer authentication and rate limiting.
package middleware

import (
	"context"

	"github.com/valyala/fasthttp"
)

type contextKey struct{ name string }

var (
	userIDKey   = contextKey{"user_id"}
	tokenIDKey  = contextKey{"token_id"}
	clientIPKey = contextKey{"client_ip"}
)

// stdContextKey is the fasthttp user value holding the request's context.Context.
const stdContextKey = "std_ctx"

// WithIdentity returns a context with user_id and token_id set.
func WithIdentity(ctx context.Context, userID, tokenID string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	ctx = context.WithValue(ctx, tokenIDKey, tokenID)
	return ctx
}

// GetUserID returns the user_id from context and true if set; otherwise "", false.
func GetUserID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(userIDKey).(string)
	return v, ok && v != ""
}

// GetTokenID returns the token_id from context and true if set.
func GetTokenID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(tokenIDKey).(string)
	return v, ok && v != ""
}

// WithClientIP returns a context carrying the client IP.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

// ClientIP returns the client IP from context, or "unknown". It satisfies audit.IPExtractor.
func ClientIP(ctx context.Context) string {
	if v, ok := ctx.Value(clientIPKey).(string); ok && v != "" {
		return v
	}
	return "unknown"
}

// Context returns the context.Context attached to rc by the middleware chain, or Background.
func Context(rc *fasthttp.RequestCtx) context.Context {
	if ctx, ok := rc.UserValue(stdContextKey).(context.Context); ok {
		return ctx
	}
	return context.Background()
}

// SetContext attaches ctx to rc for downstream handlers.
func SetContext(rc *fasthttp.RequestCtx, ctx context.Context) {
	rc.SetUserValue(stdContextKey, ctx)
}
