package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "territory-service/http"

// RequestRecorder records request counts and latency.
type RequestRecorder interface {
	RecordRequest(ctx context.Context, method, route string, status int, elapsed time.Duration)
}

// Telemetry builds the request context (client IP, extracted W3C trace context), starts a server
// span, and after the handler records the request metric and a log line. It must be the outermost
// middleware after CORS so downstream handlers see the context. Forwarding headers count only
// from proxies in trusted.
func Telemetry(tracer trace.Tracer, rec RequestRecorder, trusted TrustedProxies, logger *zap.Logger, next fasthttp.RequestHandler) fasthttp.RequestHandler {
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(rc *fasthttp.RequestCtx) {
		start := time.Now()
		h := http.Header{}
		rc.Request.Header.VisitAll(func(k, v []byte) {
			h.Set(string(k), string(v))
		})
		ctx := otel.GetTextMapPropagator().Extract(context.Background(), propagation.HeaderCarrier(h))
		ctx = WithClientIP(ctx, clientIPFrom(rc, trusted))

		method := string(rc.Method())
		ctx, span := tracer.Start(ctx, method, trace.WithSpanKind(trace.SpanKindServer))
		SetContext(rc, ctx)

		next(rc)

		route := matchedRoute(rc)
		status := rc.Response.StatusCode()
		elapsed := time.Since(start)
		span.SetName(method + " " + route)
		span.SetAttributes(
			attribute.String("http.request.method", method),
			attribute.String("http.route", route),
			attribute.Int("http.response.status_code", status),
		)
		if status >= fasthttp.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
		span.End()
		if rec != nil {
			rec.RecordRequest(ctx, method, route, status, elapsed)
		}
		userID, _ := GetUserID(Context(rc))
		logger.Info("request",
			zap.String("method", method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("duration", elapsed),
			zap.String("client_ip", ClientIP(ctx)),
			zap.String("user_id", userID))
	}
}

// matchedRoute returns the route template the router matched, so metrics do not carry user ids.
func matchedRoute(rc *fasthttp.RequestCtx) string {
	if v, ok := rc.UserValue(router.MatchedRoutePathParam).(string); ok && v != "" {
		return v
	}
	return "unmatched"
}
