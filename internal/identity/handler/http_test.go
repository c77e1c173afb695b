package handler

import (
	"testing"

	json "github.com/bytedance/sonic"
	"github.com/fasthttp/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	congdomain "territory-service/internal/congregation/domain"
	"territory-service/internal/identity/service"
	memberservice "territory-service/internal/membership/service"
	"territory-service/internal/security"
	"territory-service/internal/server/middleware"
	"territory-service/internal/store/memstore"
)

type testServer struct {
	store   *memstore.Store
	handler fasthttp.RequestHandler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	tokens, err := security.NewTestTokenProvider()
	require.NoError(t, err)
	store := memstore.New()
	members := memberservice.New(memberservice.Deps{
		Members:       store.Memberships(),
		Congregations: store.Congregations(),
		Tokens:        tokens,
	})
	auth := service.NewAuthService(store.Users(), store.Congregations(), members, nil, security.NewHasher(4), nil)
	r := router.New()
	NewAuthHandler(auth, nil).Register(r, middleware.Guards{Tokens: tokens})
	return &testServer{store: store, handler: r.Handler}
}

func (s *testServer) do(method, path, token, body string) *fasthttp.RequestCtx {
	rc := &fasthttp.RequestCtx{}
	rc.Request.Header.SetMethod(method)
	rc.Request.SetRequestURI(path)
	if token != "" {
		rc.Request.Header.Set(fasthttp.HeaderAuthorization, "Bearer "+token)
	}
	if body != "" {
		rc.Request.SetBodyString(body)
	}
	s.handler(rc)
	return rc
}

func decode(t *testing.T, rc *fasthttp.RequestCtx) authResponse {
	t.Helper()
	var out authResponse
	require.NoError(t, json.Unmarshal(rc.Response.Body(), &out))
	return out
}

func TestRegisterAndLogin(t *testing.T) {
	s := newTestServer(t)
	rc := s.do("POST", "/api/auth/register", "", `{"name":"Ana","email":"ana@example.com","password":"password1"}`)
	require.Equal(t, fasthttp.StatusCreated, rc.Response.StatusCode(), string(rc.Response.Body()))
	reg := decode(t, rc)
	assert.NotEmpty(t, reg.Token)
	assert.Equal(t, "publisher", reg.User.Role)

	rc = s.do("POST", "/api/auth/login", "", `{"email":"ana@example.com","password":"password1"}`)
	require.Equal(t, fasthttp.StatusOK, rc.Response.StatusCode())
	assert.Equal(t, reg.User.ID, decode(t, rc).User.ID)

	rc = s.do("POST", "/api/auth/login", "", `{"email":"ana@example.com","password":"nope-nope"}`)
	assert.Equal(t, fasthttp.StatusUnauthorized, rc.Response.StatusCode())
}

func TestRegister_Errors(t *testing.T) {
	s := newTestServer(t)
	rc := s.do("POST", "/api/auth/register", "", `{"name":"Ana","email":"ana@example.com","password":"password1"}`)
	require.Equal(t, fasthttp.StatusCreated, rc.Response.StatusCode())

	testCases := []struct {
		name   string
		body   string
		status int
	}{
		{"duplicate email", `{"name":"Ana","email":"ana@example.com","password":"password1"}`, fasthttp.StatusConflict},
		{"unknown invite code", `{"name":"Bia","email":"bia@example.com","password":"password1","congregation":{"inviteCode":"NOPE1234"}}`, fasthttp.StatusBadRequest},
		{"empty body", ``, fasthttp.StatusBadRequest},
		{"short password", `{"name":"Bia","email":"bia@example.com","password":"x"}`, fasthttp.StatusBadRequest},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rc := s.do("POST", "/api/auth/register", "", tc.body)
			assert.Equal(t, tc.status, rc.Response.StatusCode(), string(rc.Response.Body()))
		})
	}
}

func TestRegister_JoinsByInviteCode(t *testing.T) {
	s := newTestServer(t)
	s.store.PutCongregation(congdomain.Congregation{ID: "c1", Name: "North", InviteCode: "ALPHA123"})
	rc := s.do("POST", "/api/auth/register", "", `{"name":"Ana","email":"ana@example.com","password":"password1","congregation":{"inviteCode":"ALPHA123"}}`)
	require.Equal(t, fasthttp.StatusCreated, rc.Response.StatusCode())
	assert.Equal(t, "c1", decode(t, rc).User.CongregationID)
}

func TestProfile(t *testing.T) {
	s := newTestServer(t)
	rc := s.do("POST", "/api/auth/register", "", `{"name":"Ana","email":"ana@example.com","password":"password1","congregation":{"name":"North"}}`)
	require.Equal(t, fasthttp.StatusCreated, rc.Response.StatusCode())
	token := decode(t, rc).Token

	rc = s.do("GET", "/api/profile", token, "")
	require.Equal(t, fasthttp.StatusOK, rc.Response.StatusCode())
	var p profileResponse
	require.NoError(t, json.Unmarshal(rc.Response.Body(), &p))
	require.NotNil(t, p.Congregation)
	assert.Equal(t, "North", p.Congregation.Name)
	assert.Equal(t, "elder", p.User.Role)

	rc = s.do("PUT", "/api/profile", token, `{"name":"Ana Maria","photoUrl":"https://img.example.com/a.png"}`)
	require.Equal(t, fasthttp.StatusOK, rc.Response.StatusCode())
	var upd struct {
		User UserResponse `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rc.Response.Body(), &upd))
	assert.Equal(t, "Ana Maria", upd.User.Name)
	assert.Equal(t, "https://img.example.com/a.png", upd.User.PhotoURL)

	rc = s.do("PUT", "/api/profile", token, `{}`)
	assert.Equal(t, fasthttp.StatusBadRequest, rc.Response.StatusCode())
}

func TestProfile_RequiresToken(t *testing.T) {
	s := newTestServer(t)
	rc := s.do("GET", "/api/profile", "", "")
	assert.Equal(t, fasthttp.StatusUnauthorized, rc.Response.StatusCode())
	rc = s.do("GET", "/api/profile", "garbage", "")
	assert.Equal(t, fasthttp.StatusForbidden, rc.Response.StatusCode())
}
