// Package handler exposes congregation membership operations over HTTP.
package handler

import (
	"strconv"
	"time"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	auditdomain "territory-service/internal/audit/domain"
	congdomain "territory-service/internal/congregation/domain"
	"territory-service/internal/membership/domain"
	"territory-service/internal/membership/service"
	"territory-service/internal/platform/rbac"
	"territory-service/internal/server/middleware"
	"territory-service/internal/server/response"
)

type congregationResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	InviteCode  string    `json:"inviteCode"`
	CreatedBy   string    `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
	MemberCount *int      `json:"memberCount,omitempty"`
}

func newCongregationResponse(c *congdomain.Congregation) congregationResponse {
	return congregationResponse{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		InviteCode:  c.InviteCode,
		CreatedBy:   c.CreatedBy,
		CreatedAt:   c.CreatedAt,
	}
}

type createResponse struct {
	Congregation congregationResponse `json:"congregation"`
	Token        string               `json:"token"`
	Role         string               `json:"role"`
}

type joinResponse struct {
	CongregationID string `json:"congregationId"`
	Role           string `json:"role"`
	Token          string `json:"token"`
}

type leaveResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
}

type inviteResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type memberResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	PhotoURL string `json:"photoUrl"`
	Role     string `json:"role"`
}

type roleResponse struct {
	ID             string `json:"id"`
	CongregationID string `json:"congregationId"`
	Role           string `json:"role"`
}

type capabilitiesResponse struct {
	Role         string            `json:"role"`
	Capabilities []rbac.Capability `json:"capabilities"`
	DefaultRoute string            `json:"defaultRoute"`
}

type auditResponse struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	ActorID   string    `json:"actorId"`
	TargetID  string    `json:"targetId"`
	IP        string    `json:"ip"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"createdAt"`
}

type createRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type joinRequest struct {
	InviteCode string `json:"inviteCode"`
}

type roleRequest struct {
	Role string `json:"role"`
}

// MembershipHandler serves the congregation and permission routes.
type MembershipHandler struct {
	svc    *service.Service
	logger *zap.Logger
}

// NewMembershipHandler returns a handler over svc.
func NewMembershipHandler(svc *service.Service, logger *zap.Logger) *MembershipHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MembershipHandler{svc: svc, logger: logger}
}

// Register adds the routes to r. Only invite code validation is public.
func (h *MembershipHandler) Register(r *router.Router, g middleware.Guards) {
	r.POST("/api/congregations", g.Auth(h.create))
	r.GET("/api/congregations/my", g.Auth(h.my))
	r.GET("/api/congregations/validate/{inviteCode}", g.Limit("invite", h.validate))
	r.POST("/api/congregations/join", g.Auth(h.join))
	r.DELETE("/api/congregations/leave", g.Auth(h.leave))
	r.GET("/api/congregations/members", g.Auth(h.members))
	r.PUT("/api/congregations/members/{uid}/role", g.Auth(h.changeRole))
	r.DELETE("/api/congregations/members/{uid}", g.Auth(h.remove))
	r.GET("/api/congregations/audit", g.Auth(h.audit))
	r.GET("/api/permissions", g.Auth(h.permissions))
}

func (h *MembershipHandler) create(rc *fasthttp.RequestCtx) {
	var req createRequest
	if err := response.Decode(rc, &req); err != nil {
		response.Error(rc, err, h.logger)
		return
	}
	res, err := h.svc.CreateCongregation(middleware.Context(rc), middleware.ActorID(rc), req.Name, req.Description)
	if err != nil {
		response.Error(rc, err, h.logger)
		return
	}
	response.JSON(rc, fasthttp.StatusCreated, createResponse{
		Congregation: newCongregationResponse(res.Congregation),
		Token:        res.Token,
		Role:         string(res.Membership.Role),
	})
}

func (h *MembershipHandler) my(rc *fasthttp.RequestCtx) {
	view, err := h.svc.MyCongregation(middleware.Context(rc), middleware.ActorID(rc))
	if err != nil {
		response.Error(rc, err, h.logger)
		return
	}
	if view == nil {
		response.JSON(rc, fasthttp.StatusOK, nil)
		return
	}
	out := newCongregationResponse(view.Congregation)
	out.MemberCount = &view.MemberCount
	response.JSON(rc, fasthttp.StatusOK, out)
}

func (h *MembershipHandler) validate(rc *fasthttp.RequestCtx) {
	code, _ := rc.UserValue("inviteCode").(string)
	c, err := h.svc.ValidateInviteCode(middleware.Context(rc), code)
	if err != nil {
		response.Error(rc, err, h.logger)
		return
	}
	response.JSON(rc, fasthttp.StatusOK, inviteResponse{ID: c.ID, Name: c.Name, Description: c.Description})
}

func (h *MembershipHandler) join(rc *fasthttp.RequestCtx) {
	var req joinRequest
	if err := response.Decode(rc, &req); err != nil {
		response.Error(rc, err, h.logger)
		return
	}
	res, err := h.svc.JoinCongregation(middleware.Context(rc), middleware.ActorID(rc), req.InviteCode)
	if err != nil {
		response.Error(rc, err, h.logger)
		return
	}
	response.JSON(rc, fasthttp.StatusOK, joinResponse{
		CongregationID: res.Congregation.ID,
		Role:           string(res.Membership.Role),
		Token:          res.Token,
	})
}

func (h *MembershipHandler) leave(rc *fasthttp.RequestCtx) {
	sess, err := h.svc.LeaveCongregation(middleware.Context(rc), middleware.ActorID(rc))
	if err != nil {
		response.Error(rc, err, h.logger)
		return
	}
	response.JSON(rc, fasthttp.StatusOK, leaveResponse{Success: true, Token: sess.Token})
}

func (h *MembershipHandler) members(rc *fasthttp.RequestCtx) {
	list, err := h.svc.ListMembers(middleware.Context(rc), middleware.ActorID(rc))
	if err != nil {
		response.Error(rc, err, h.logger)
		return
	}
	out := make([]memberResponse, 0, len(list))
	for _, m := range list {
		out = append(out, memberResponse{ID: m.UserID, Name: m.Name, Email: m.Email, PhotoURL: m.PhotoURL, Role: string(m.Role)})
	}
	response.JSON(rc, fasthttp.StatusOK, out)
}

func (h *MembershipHandler) changeRole(rc *fasthttp.RequestCtx) {
	var req roleRequest
	if err := response.Decode(rc, &req); err != nil {
		response.Error(rc, err, h.logger)
		return
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		response.Error(rc, err, h.logger)
		return
	}
	targetID, _ := rc.UserValue("uid").(string)
	m, err := h.svc.ChangeRole(middleware.Context(rc), middleware.ActorID(rc), targetID, role)
	if err != nil {
		response.Error(rc, err, h.logger)
		return
	}
	response.JSON(rc, fasthttp.StatusOK, roleResponse{ID: m.UserID, CongregationID: m.CongregationID, Role: string(m.Role)})
}

func (h *MembershipHandler) remove(rc *fasthttp.RequestCtx) {
	targetID, _ := rc.UserValue("uid").(string)
	if err := h.svc.RemoveMember(middleware.Context(rc), middleware.ActorID(rc), targetID); err != nil {
		response.Error(rc, err, h.logger)
		return
	}
	response.JSON(rc, fasthttp.StatusOK, map[string]bool{"success": true})
}

func (h *MembershipHandler) audit(rc *fasthttp.RequestCtx) {
	limit := queryInt(rc, "limit")
	offset := queryInt(rc, "offset")
	logs, err := h.svc.AuditTrail(middleware.Context(rc), middleware.ActorID(rc), limit, offset)
	if err != nil {
		response.Error(rc, err, h.logger)
		return
	}
	response.JSON(rc, fasthttp.StatusOK, toAuditResponses(logs))
}

func (h *MembershipHandler) permissions(rc *fasthttp.RequestCtx) {
	ctx := middleware.Context(rc)
	actorID := middleware.ActorID(rc)
	actor, err := h.svc.Actor(ctx, actorID)
	if err != nil {
		response.Error(rc, err, h.logger)
		return
	}
	caps, err := h.svc.Capabilities(ctx, actorID)
	if err != nil {
		response.Error(rc, err, h.logger)
		return
	}
	role := ""
	if actor.InCongregation() {
		role = string(actor.Role)
	}
	response.JSON(rc, fasthttp.StatusOK, capabilitiesResponse{Role: role, Capabilities: caps.Allowed, DefaultRoute: caps.DefaultRoute})
}

// queryInt returns the integer query argument key, or 0 when absent or malformed.
func queryInt(rc *fasthttp.RequestCtx, key string) int {
	n, err := strconv.Atoi(string(rc.QueryArgs().Peek(key)))
	if err != nil {
		return 0
	}
	return n
}

func toAuditResponses(logs []*auditdomain.AuditLog) []auditResponse {
	out := make([]auditResponse, 0, len(logs))
	for _, l := range logs {
		out = append(out, auditResponse{
			ID:        l.ID,
			Action:    l.Action,
			ActorID:   l.ActorID,
			TargetID:  l.TargetID,
			IP:        l.IP,
			Detail:    l.Detail,
			CreatedAt: l.CreatedAt,
		})
	}
	return out
}
