package middleware

import (
	"errors"
	"strings"

	"github.com/valyala/fasthttp"

	"territory-service/internal/security"
	"territory-service/internal/server/response"
)

const bearerPrefix = "bearer "

var (
	errMissingToken = errors.New("missing authorization")
	errInvalidToken = errors.New("invalid or expired token")
)

// TokenValidator validates an access token.
type TokenValidator interface {
	ValidateAccess(token string) (*security.Identity, error)
}

// RequireAuth validates the Bearer access token and sets user_id and token_id in the request
// context. Only the user id is trusted downstream; role and congregation are re-read per request.
// A missing token is 401 and an invalid one 403.
func RequireAuth(tokens TokenValidator, next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(rc *fasthttp.RequestCtx) {
		token := extractBearer(rc)
		if token == "" {
			response.Status(rc, fasthttp.StatusUnauthorized, "unauthenticated", errMissingToken.Error())
			return
		}
		id, err := tokens.ValidateAccess(token)
		if err != nil {
			response.Status(rc, fasthttp.StatusForbidden, "invalid_token", errInvalidToken.Error())
			return
		}
		SetContext(rc, WithIdentity(Context(rc), id.UserID, id.TokenID))
		next(rc)
	}
}

// extractBearer returns the Bearer token from the Authorization header, or "" if missing or malformed.
func extractBearer(rc *fasthttp.RequestCtx) string {
	v := strings.TrimSpace(string(rc.Request.Header.Peek(fasthttp.HeaderAuthorization)))
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
