// Package response writes JSON bodies and maps service errors to HTTP statuses.
package response

import (
	"errors"
	"fmt"

	json "github.com/bytedance/sonic"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	congdomain "territory-service/internal/congregation/domain"
	identityservice "territory-service/internal/identity/service"
	memberdomain "territory-service/internal/membership/domain"
	memberservice "territory-service/internal/membership/service"
	"territory-service/internal/platform/rbac"
	"territory-service/internal/security"
	userdomain "territory-service/internal/user/domain"
)

// ErrBadBody is returned by Decode for an empty or malformed JSON body.
var ErrBadBody = errors.New("invalid request body")

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// JSON writes v as the response body with status.
func JSON(rc *fasthttp.RequestCtx, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		rc.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	rc.SetContentType("application/json")
	rc.SetStatusCode(status)
	rc.SetBody(body)
}

// Status writes an error body with the given status, code and message.
func Status(rc *fasthttp.RequestCtx, status int, code, message string) {
	JSON(rc, status, ErrorBody{Error: code, Message: message})
}

// Decode unmarshals the request body into v.
func Decode(rc *fasthttp.RequestCtx, v any) error {
	body := rc.PostBody()
	if len(body) == 0 {
		return ErrBadBody
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadBody, err)
	}
	return nil
}

type mapping struct {
	status int
	code   string
}

// sentinels maps service errors to responses; the error text is the message.
var sentinels = []struct {
	err error
	mapping
}{
	{memberservice.ErrActorNotFound, mapping{fasthttp.StatusUnauthorized, "unauthenticated"}},
	{security.ErrInvalidToken, mapping{fasthttp.StatusForbidden, "invalid_token"}},
	{identityservice.ErrInvalidCredentials, mapping{fasthttp.StatusUnauthorized, "invalid_credentials"}},

	{memberservice.ErrMemberNotFound, mapping{fasthttp.StatusNotFound, "not_found"}},
	{memberservice.ErrInvalidInviteCode, mapping{fasthttp.StatusNotFound, "not_found"}},
	{identityservice.ErrUserNotFound, mapping{fasthttp.StatusNotFound, "not_found"}},

	{ErrBadBody, mapping{fasthttp.StatusBadRequest, "bad_request"}},
	{identityservice.ErrRegistrationInviteCode, mapping{fasthttp.StatusBadRequest, "invalid_invite_code"}},
	{identityservice.ErrPasswordTooShort, mapping{fasthttp.StatusBadRequest, "bad_request"}},
	{identityservice.ErrNothingToUpdate, mapping{fasthttp.StatusBadRequest, "bad_request"}},
	{memberdomain.ErrInvalidRole, mapping{fasthttp.StatusBadRequest, "invalid_role"}},
	{congdomain.ErrNameRequired, mapping{fasthttp.StatusBadRequest, "bad_request"}},
	{userdomain.ErrEmailRequired, mapping{fasthttp.StatusBadRequest, "bad_request"}},
	{userdomain.ErrEmailInvalid, mapping{fasthttp.StatusBadRequest, "bad_request"}},
	{userdomain.ErrNameRequired, mapping{fasthttp.StatusBadRequest, "bad_request"}},

	{identityservice.ErrEmailAlreadyRegistered, mapping{fasthttp.StatusConflict, "email_taken"}},
	{memberservice.ErrStaleMembership, mapping{fasthttp.StatusConflict, "stale_membership"}},
}

// notFoundMessage is shared by every not-found answer so absence and other tenants look alike.
const notFoundMessage = "not found"

// Error maps err to a status and writes it. Unmapped errors are logged and answered with 500.
func Error(rc *fasthttp.RequestCtx, err error, logger *zap.Logger) {
	var denial *rbac.Denial
	if errors.As(err, &denial) {
		if denial.Kind == rbac.DenyNotFound {
			Status(rc, fasthttp.StatusNotFound, "not_found", notFoundMessage)
			return
		}
		Status(rc, fasthttp.StatusForbidden, "forbidden", denial.Reason)
		return
	}
	for _, s := range sentinels {
		if errors.Is(err, s.err) {
			msg := s.err.Error()
			if s.status == fasthttp.StatusNotFound {
				msg = notFoundMessage
			}
			Status(rc, s.status, s.code, msg)
			return
		}
	}
	if logger != nil {
		logger.Error("request failed", zap.ByteString("path", rc.Path()), zap.Error(err))
	}
	Status(rc, fasthttp.StatusInternalServerError, "internal", "internal server error")
}
