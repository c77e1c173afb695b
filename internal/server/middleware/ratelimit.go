package middleware

import (
	"math"
	"strconv"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"territory-service/internal/ratelimit"
	"territory-service/internal/server/response"
)

// RateLimit bounds requests per client IP under scope. A nil limiter disables limiting; a limiter
// error lets the request through.
func RateLimit(limiter ratelimit.Limiter, scope string, logger *zap.Logger, next fasthttp.RequestHandler) fasthttp.RequestHandler {
	if limiter == nil {
		return next
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(rc *fasthttp.RequestCtx) {
		ctx := Context(rc)
		res, err := limiter.Allow(ctx, scope+":"+ClientIP(ctx))
		if err != nil {
			logger.Warn("rate limiter unavailable", zap.String("scope", scope), zap.Error(err))
			next(rc)
			return
		}
		rc.Response.Header.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		rc.Response.Header.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		if !res.Allowed {
			rc.Response.Header.Set("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
			response.Status(rc, fasthttp.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		next(rc)
	}
}
