package middleware

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/fasthttp/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"territory-service/internal/membership/domain"
	"territory-service/internal/ratelimit"
	"territory-service/internal/security"
)

func request(method, path string) *fasthttp.RequestCtx {
	rc := &fasthttp.RequestCtx{}
	rc.Request.Header.SetMethod(method)
	rc.Request.SetRequestURI(path)
	return rc
}

// requestFrom builds a request arriving on a connection from remote.
func requestFrom(remote, method, path string) *fasthttp.RequestCtx {
	var req fasthttp.Request
	req.Header.SetMethod(method)
	req.SetRequestURI(path)
	rc := &fasthttp.RequestCtx{}
	rc.Init(&req, &net.TCPAddr{IP: net.ParseIP(remote), Port: 40000}, nil)
	return rc
}

func TestContextHelpers(t *testing.T) {
	ctx := WithIdentity(context.Background(), "u1", "t1")
	uid, ok := GetUserID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "u1", uid)
	tid, ok := GetTokenID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "t1", tid)

	_, ok = GetUserID(context.Background())
	assert.False(t, ok)
	assert.Equal(t, "unknown", ClientIP(context.Background()))
	assert.Equal(t, "10.0.0.1", ClientIP(WithClientIP(context.Background(), "10.0.0.1")))

	rc := request("GET", "/")
	assert.NotNil(t, Context(rc))
	SetContext(rc, ctx)
	assert.Equal(t, "u1", ActorID(rc))
}

func TestParseTrustedProxies(t *testing.T) {
	proxies, err := ParseTrustedProxies(" 10.0.0.0/8, 192.168.1.7,,2001:db8::/32")
	require.NoError(t, err)
	require.Len(t, proxies, 3)
	assert.Equal(t, "10.0.0.0/8", proxies[0].String())
	assert.Equal(t, "192.168.1.7/32", proxies[1].String())

	empty, err := ParseTrustedProxies("")
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = ParseTrustedProxies("10.0.0.0/8,not-an-ip")
	assert.Error(t, err)
}

func TestClientIPFrom(t *testing.T) {
	trusted, err := ParseTrustedProxies("10.0.0.0/8")
	require.NoError(t, err)

	tests := []struct {
		name     string
		remote   string
		xff      string
		realIP   string
		trusted  TrustedProxies
		expected string
	}{
		{name: "no proxies trusted ignores XFF", remote: "198.51.100.9", xff: "203.0.113.7", expected: "198.51.100.9"},
		{name: "untrusted peer ignores XFF", remote: "198.51.100.9", xff: "203.0.113.7", trusted: trusted, expected: "198.51.100.9"},
		{name: "untrusted peer ignores X-Real-IP", remote: "198.51.100.9", realIP: "203.0.113.7", trusted: trusted, expected: "198.51.100.9"},
		{name: "trusted proxy forwards client", remote: "10.0.0.5", xff: "203.0.113.7", trusted: trusted, expected: "203.0.113.7"},
		{name: "spoofed leading entry skipped", remote: "10.0.0.5", xff: "1.2.3.4, 203.0.113.7", trusted: trusted, expected: "203.0.113.7"},
		{name: "trusted hops skipped", remote: "10.0.0.5", xff: " 203.0.113.7, 10.0.0.1", trusted: trusted, expected: "203.0.113.7"},
		{name: "trusted proxy X-Real-IP", remote: "10.0.0.5", realIP: "198.51.100.2", trusted: trusted, expected: "198.51.100.2"},
		{name: "garbage XFF falls back to peer", remote: "10.0.0.5", xff: "garbage", trusted: trusted, expected: "10.0.0.5"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rc := requestFrom(tc.remote, "GET", "/")
			if tc.xff != "" {
				rc.Request.Header.Set("X-Forwarded-For", tc.xff)
			}
			if tc.realIP != "" {
				rc.Request.Header.Set("X-Real-IP", tc.realIP)
			}
			assert.Equal(t, tc.expected, clientIPFrom(rc, tc.trusted))
		})
	}

	assert.Equal(t, "unknown", clientIPFrom(request("GET", "/"), nil))
}

func TestRequireAuth(t *testing.T) {
	tokens, err := security.NewTestTokenProvider()
	require.NoError(t, err)
	var seen string
	h := RequireAuth(tokens, func(rc *fasthttp.RequestCtx) {
		seen = ActorID(rc)
		rc.SetStatusCode(fasthttp.StatusOK)
	})

	rc := request("GET", "/")
	h(rc)
	assert.Equal(t, fasthttp.StatusUnauthorized, rc.Response.StatusCode())

	rc = request("GET", "/")
	rc.Request.Header.Set(fasthttp.HeaderAuthorization, "Bearer not-a-jwt")
	h(rc)
	assert.Equal(t, fasthttp.StatusForbidden, rc.Response.StatusCode())

	rc = request("GET", "/")
	rc.Request.Header.Set(fasthttp.HeaderAuthorization, "Basic abc")
	h(rc)
	assert.Equal(t, fasthttp.StatusUnauthorized, rc.Response.StatusCode())

	token, _, err := tokens.IssueAccess(domain.Membership{UserID: "u1", CongregationID: "c1", Role: domain.RoleElder})
	require.NoError(t, err)
	rc = request("GET", "/")
	rc.Request.Header.Set(fasthttp.HeaderAuthorization, "bearer "+token)
	h(rc)
	assert.Equal(t, fasthttp.StatusOK, rc.Response.StatusCode())
	assert.Equal(t, "u1", seen)
}

func TestCORS(t *testing.T) {
	called := false
	h := CORS("https://app.example.com", func(rc *fasthttp.RequestCtx) { called = true })

	rc := request("OPTIONS", "/api/profile")
	rc.Request.Header.Set("Origin", "https://app.example.com")
	h(rc)
	assert.False(t, called)
	assert.Equal(t, fasthttp.StatusNoContent, rc.Response.StatusCode())
	assert.Equal(t, "https://app.example.com", string(rc.Response.Header.Peek("Access-Control-Allow-Origin")))

	rc = request("GET", "/api/profile")
	rc.Request.Header.Set("Origin", "https://evil.example.com")
	h(rc)
	assert.True(t, called)
	assert.Empty(t, rc.Response.Header.Peek("Access-Control-Allow-Origin"))
}

type recordedRequest struct {
	method, route string
	status        int
}

type requestRecorder struct{ got []recordedRequest }

func (r *requestRecorder) RecordRequest(_ context.Context, method, route string, status int, _ time.Duration) {
	r.got = append(r.got, recordedRequest{method, route, status})
}

func TestTelemetry_RecordsRouteTemplate(t *testing.T) {
	r := router.New()
	r.SaveMatchedRoutePath = true
	var ip string
	r.GET("/api/congregations/members/{uid}", func(rc *fasthttp.RequestCtx) {
		ip = ClientIP(Context(rc))
		rc.SetStatusCode(fasthttp.StatusNoContent)
	})
	rec := &requestRecorder{}
	core, logs := observer.New(zap.InfoLevel)
	trusted, err := ParseTrustedProxies("10.0.0.5")
	require.NoError(t, err)
	h := Telemetry(nil, rec, trusted, zap.New(core), r.Handler)

	rc := requestFrom("10.0.0.5", "GET", "/api/congregations/members/u-123")
	rc.Request.Header.Set("X-Forwarded-For", "203.0.113.7")
	h(rc)

	assert.Equal(t, "203.0.113.7", ip)
	require.Len(t, rec.got, 1)
	assert.Equal(t, recordedRequest{"GET", "/api/congregations/members/{uid}", fasthttp.StatusNoContent}, rec.got[0])
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "request", logs.All()[0].Message)
}

type stubLimiter struct {
	res ratelimit.Result
	err error
}

func (s stubLimiter) Allow(context.Context, string) (ratelimit.Result, error) { return s.res, s.err }

func TestRateLimit(t *testing.T) {
	ok := func(rc *fasthttp.RequestCtx) { rc.SetStatusCode(fasthttp.StatusOK) }

	rc := request("GET", "/")
	RateLimit(nil, "auth", nil, ok)(rc)
	assert.Equal(t, fasthttp.StatusOK, rc.Response.StatusCode())

	rc = request("GET", "/")
	RateLimit(stubLimiter{err: errors.New("redis down")}, "auth", nil, ok)(rc)
	assert.Equal(t, fasthttp.StatusOK, rc.Response.StatusCode(), "limiter errors fail open")

	rc = request("GET", "/")
	RateLimit(stubLimiter{res: ratelimit.Result{Allowed: false, Limit: 5, RetryAfter: 1500 * time.Millisecond}}, "auth", nil, ok)(rc)
	assert.Equal(t, fasthttp.StatusTooManyRequests, rc.Response.StatusCode())
	assert.Equal(t, "2", string(rc.Response.Header.Peek("Retry-After")))
	assert.Equal(t, "5", string(rc.Response.Header.Peek("X-RateLimit-Limit")))
}

type countingLimiter struct {
	budget int
	used   map[string]int
}

func (c *countingLimiter) Allow(_ context.Context, key string) (ratelimit.Result, error) {
	c.used[key]++
	n := c.used[key]
	return ratelimit.Result{Allowed: n <= c.budget, Limit: c.budget, Remaining: max(c.budget-n, 0), RetryAfter: time.Second}, nil
}

func TestRateLimit_ForwardedForDoesNotResetBudget(t *testing.T) {
	limiter := &countingLimiter{budget: 1, used: map[string]int{}}
	ok := func(rc *fasthttp.RequestCtx) { rc.SetStatusCode(fasthttp.StatusOK) }
	h := Telemetry(nil, nil, nil, nil, RateLimit(limiter, "invite", nil, ok))

	first := requestFrom("198.51.100.9", "GET", "/api/congregations/validate/ABCD")
	first.Request.Header.Set("X-Forwarded-For", "203.0.113.1")
	h(first)
	assert.Equal(t, fasthttp.StatusOK, first.Response.StatusCode())

	second := requestFrom("198.51.100.9", "GET", "/api/congregations/validate/ABCD")
	second.Request.Header.Set("X-Forwarded-For", "203.0.113.2")
	h(second)
	assert.Equal(t, fasthttp.StatusTooManyRequests, second.Response.StatusCode())

	assert.Equal(t, map[string]int{"invite:198.51.100.9": 2}, limiter.used)
}
