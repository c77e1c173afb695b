package middleware

import (
	"github.com/valyala/fasthttp"
)

// CORS sets the cross-origin headers and answers preflight requests. allowedOrigin "*" allows any origin.
func CORS(allowedOrigin string, next fasthttp.RequestHandler) fasthttp.RequestHandler {
	if allowedOrigin == "" {
		allowedOrigin = "*"
	}
	return func(rc *fasthttp.RequestCtx) {
		headers := &rc.Response.Header
		origin := string(rc.Request.Header.Peek("Origin"))
		switch {
		case allowedOrigin == "*":
			headers.Set("Access-Control-Allow-Origin", "*")
		case origin == allowedOrigin:
			headers.Set("Access-Control-Allow-Origin", origin)
			headers.Set("Vary", "Origin")
		}
		headers.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		headers.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if rc.IsOptions() {
			rc.SetStatusCode(fasthttp.StatusNoContent)
			return
		}
		next(rc)
	}
}
