// Package handler exposes registration, login and profile over HTTP.
package handler

import (
	"time"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	congdomain "territory-service/internal/congregation/domain"
	"territory-service/internal/identity/service"
	"territory-service/internal/server/middleware"
	"territory-service/internal/server/response"
	userdomain "territory-service/internal/user/domain"
)

// UserResponse is the public view of a user.
type UserResponse struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	PhotoURL       string `json:"photoUrl"`
	CongregationID string `json:"congregationId"`
	Role           string `json:"role"`
}

// NewUserResponse converts u.
func NewUserResponse(u *userdomain.User) UserResponse {
	return UserResponse{
		ID:             u.ID,
		Name:           u.Name,
		Email:          u.Email,
		PhotoURL:       u.PhotoURL,
		CongregationID: u.CongregationID,
		Role:           string(u.Role),
	}
}

type authResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      UserResponse `json:"user"`
}

type registerRequest struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	Congregation *struct {
		InviteCode  string `json:"inviteCode"`
		Name        string `json:"name"`
		Description string `json:"description"`
	} `json:"congregation"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type profileRequest struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	PhotoURL *string `json:"photoUrl"`
	Password *string `json:"password"`
}

type profileCongregation struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type profileResponse struct {
	User         UserResponse         `json:"user"`
	Congregation *profileCongregation `json:"congregation"`
}

// AuthHandler serves the auth and profile routes.
type AuthHandler struct {
	auth   *service.AuthService
	logger *zap.Logger
}

// NewAuthHandler returns a handler over auth.
func NewAuthHandler(auth *service.AuthService, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{auth: auth, logger: logger}
}

// Register adds the routes to r. Register and login are public and rate limited.
func (h *AuthHandler) Register(r *router.Router, g middleware.Guards) {
	r.POST("/api/auth/register", g.Limit("auth", h.register))
	r.POST("/api/auth/login", g.Limit("auth", h.login))
	r.GET("/api/profile", g.Auth(h.getProfile))
	r.PUT("/api/profile", g.Auth(h.updateProfile))
}

func (h *AuthHandler) register(rc *fasthttp.RequestCtx) {
	var req registerRequest
	if err := response.Decode(rc, &req); err != nil {
		response.Error(rc, err, h.logger)
		return
	}
	in := service.RegisterInput{Name: req.Name, Email: req.Email, Password: req.Password}
	if c := req.Congregation; c != nil {
		if c.InviteCode != "" {
			in.InviteCode = c.InviteCode
		} else {
			in.NewCongregation = &service.NewCongregation{Name: c.Name, Description: c.Description}
		}
	}
	res, err := h.auth.Register(middleware.Context(rc), in)
	if err != nil {
		response.Error(rc, err, h.logger)
		return
	}
	response.JSON(rc, fasthttp.StatusCreated, authResponse{Token: res.Token, ExpiresAt: res.ExpiresAt, User: NewUserResponse(res.User)})
}

func (h *AuthHandler) login(rc *fasthttp.RequestCtx) {
	var req loginRequest
	if err := response.Decode(rc, &req); err != nil {
		response.Error(rc, err, h.logger)
		return
	}
	res, err := h.auth.Login(middleware.Context(rc), req.Email, req.Password)
	if err != nil {
		response.Error(rc, err, h.logger)
		return
	}
	response.JSON(rc, fasthttp.StatusOK, authResponse{Token: res.Token, ExpiresAt: res.ExpiresAt, User: NewUserResponse(res.User)})
}

func (h *AuthHandler) getProfile(rc *fasthttp.RequestCtx) {
	p, err := h.auth.GetProfile(middleware.Context(rc), middleware.ActorID(rc))
	if err != nil {
		response.Error(rc, err, h.logger)
		return
	}
	response.JSON(rc, fasthttp.StatusOK, profileResponse{User: NewUserResponse(p.User), Congregation: toProfileCongregation(p.Congregation)})
}

func (h *AuthHandler) updateProfile(rc *fasthttp.RequestCtx) {
	var req profileRequest
	if err := response.Decode(rc, &req); err != nil {
		response.Error(rc, err, h.logger)
		return
	}
	u, err := h.auth.UpdateProfile(middleware.Context(rc), middleware.ActorID(rc), service.ProfileUpdate{
		Name:     req.Name,
		Email:    req.Email,
		PhotoURL: req.PhotoURL,
		Password: req.Password,
	})
	if err != nil {
		response.Error(rc, err, h.logger)
		return
	}
	response.JSON(rc, fasthttp.StatusOK, map[string]UserResponse{"user": NewUserResponse(u)})
}

func toProfileCongregation(c *congdomain.Congregation) *profileCongregation {
	if c == nil {
		return nil
	}
	return &profileCongregation{ID: c.ID, Name: c.Name, Description: c.Description}
}
