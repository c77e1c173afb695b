// Package service implements congregation membership operations on top of the authorization engine.
// Actor and target state is read from the store on every call; token claims are never trusted for decisions.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"territory-service/internal/audit"
	auditdomain "territory-service/internal/audit/domain"
	congdomain "territory-service/internal/congregation/domain"
	congrepo "territory-service/internal/congregation/repository"
	"territory-service/internal/db"
	"territory-service/internal/events"
	"territory-service/internal/membership/domain"
	memberrepo "territory-service/internal/membership/repository"
	"territory-service/internal/platform/rbac"
	"territory-service/internal/security"
)

// Sentinel errors for the membership service; the HTTP layer maps them to status codes.
var (
	// ErrActorNotFound means the bearer token names a user that no longer exists.
	ErrActorNotFound = errors.New("authenticated user no longer exists")
	// ErrMemberNotFound is returned for a missing target; callers cannot tell it apart from another tenant.
	ErrMemberNotFound    = errors.New("member not found")
	ErrInvalidInviteCode = errors.New("invalid invite code")
	// ErrStaleMembership means actor or target changed between the decision and the write.
	ErrStaleMembership = errors.New("membership changed concurrently; retry")
	// ErrInviteCodeExhausted means every generated invite code collided.
	ErrInviteCodeExhausted = errors.New("could not allocate a unique invite code")
)

// Audit trail page sizes.
const (
	defaultAuditLimit = 50
	maxAuditLimit     = 200
)

// Operation names recorded with each authorization decision.
const (
	OpChangeRole   = "change_role"
	OpRemoveMember = "remove_member"
	OpViewAudit    = "view_audit"
)

// TokenIssuer mints an access token reflecting a membership.
type TokenIssuer interface {
	IssueAccess(m domain.Membership) (token string, expiresAt time.Time, err error)
}

// Publisher delivers membership events off the request path.
type Publisher interface {
	Publish(ev events.Event)
}

// DecisionRecorder counts authorization decisions.
type DecisionRecorder interface {
	RecordDecision(ctx context.Context, operation, outcome, reason string)
}

// CapabilityEvaluator resolves the page capabilities of a membership.
type CapabilityEvaluator interface {
	Evaluate(ctx context.Context, m domain.Membership) (rbac.Capabilities, error)
}

// AuditReader lists audit entries of a congregation.
type AuditReader interface {
	ListByCongregation(ctx context.Context, congregationID string, limit, offset int) ([]*auditdomain.AuditLog, error)
}

// Deps wires the service. Members, Congregations and Tokens are required.
type Deps struct {
	Members       memberrepo.Repository
	Congregations congrepo.Repository
	Tokens        TokenIssuer
	Tx            db.Transactor
	Audit         audit.Recorder
	AuditReader   AuditReader
	Publisher     Publisher
	Decisions     DecisionRecorder
	Capabilities  CapabilityEvaluator
	Logger        *zap.Logger

	InviteCodeLength      int
	InviteCodeMaxAttempts int
	// GenerateCode defaults to security.GenerateInviteCode.
	GenerateCode func(n int) (string, error)
}

// Service implements create, join, leave, role change, removal and the read operations.
type Service struct {
	members       memberrepo.Repository
	congregations congrepo.Repository
	tokens        TokenIssuer
	tx            db.Transactor
	audit         audit.Recorder
	auditReader   AuditReader
	publisher     Publisher
	decisions     DecisionRecorder
	capabilities  CapabilityEvaluator
	logger        *zap.Logger
	codeLength    int
	codeAttempts  int
	generateCode  func(n int) (string, error)
	now           func() time.Time
}

// New returns a Service over d.
func New(d Deps) *Service {
	s := &Service{
		members:       d.Members,
		congregations: d.Congregations,
		tokens:        d.Tokens,
		tx:            d.Tx,
		audit:         d.Audit,
		auditReader:   d.AuditReader,
		publisher:     d.Publisher,
		decisions:     d.Decisions,
		capabilities:  d.Capabilities,
		logger:        d.Logger,
		codeLength:    d.InviteCodeLength,
		codeAttempts:  d.InviteCodeMaxAttempts,
		generateCode:  d.GenerateCode,
		now:           func() time.Time { return time.Now().UTC() },
	}
	if s.tx == nil {
		s.tx = db.NoTx{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.codeLength == 0 {
		s.codeLength = 8
	}
	if s.codeAttempts <= 0 {
		s.codeAttempts = 5
	}
	if s.generateCode == nil {
		s.generateCode = security.GenerateInviteCode
	}
	return s
}

// Session is a membership together with a token minted for it.
type Session struct {
	Membership domain.Membership
	Token      string
	ExpiresAt  time.Time
}

// CongregationResult is returned by create and join.
type CongregationResult struct {
	Congregation *congdomain.Congregation
	Session
}

// CongregationView is the actor's congregation with its current member count.
type CongregationView struct {
	Congregation *congdomain.Congregation
	MemberCount  int
}

// Actor returns the current membership of actorID from the store.
func (s *Service) Actor(ctx context.Context, actorID string) (domain.Membership, error) {
	m, err := s.members.Get(ctx, actorID)
	if err != nil {
		return domain.Membership{}, fmt.Errorf("load actor: %w", err)
	}
	if m == nil {
		return domain.Membership{}, ErrActorNotFound
	}
	return *m, nil
}

// IssueSession mints a token for m.
func (s *Service) IssueSession(m domain.Membership) (Session, error) {
	token, exp, err := s.tokens.IssueAccess(m)
	if err != nil {
		return Session{}, fmt.Errorf("issue token: %w", err)
	}
	return Session{Membership: m, Token: token, ExpiresAt: exp}, nil
}

// CreateCongregation creates a congregation with a fresh invite code and makes the actor its elder.
// The insert and the founder update share one transaction.
func (s *Service) CreateCongregation(ctx context.Context, actorID, name, description string) (*CongregationResult, error) {
	now := s.now()
	c := &congdomain.Congregation{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		CreatedBy:   actorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	var previous domain.Membership
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		actor, err := s.Actor(ctx, actorID)
		if err != nil {
			return err
		}
		previous = actor
		if err := s.insertWithFreshCode(ctx, c); err != nil {
			return err
		}
		return s.members.Assign(ctx, actorID, c.ID, domain.RoleElder)
	})
	if err != nil {
		return nil, err
	}

	m := domain.Membership{UserID: actorID, CongregationID: c.ID, Role: domain.RoleElder}
	sess, err := s.IssueSession(m)
	if err != nil {
		return nil, err
	}
	s.record(ctx, events.New(events.CongregationCreated, c.ID, actorID, "").
		WithRoles(string(domain.RoleElder), string(previous.Role)))
	return &CongregationResult{Congregation: c, Session: sess}, nil
}

func (s *Service) insertWithFreshCode(ctx context.Context, c *congdomain.Congregation) error {
	for attempt := 1; attempt <= s.codeAttempts; attempt++ {
		code, err := s.generateCode(s.codeLength)
		if err != nil {
			return fmt.Errorf("generate invite code: %w", err)
		}
		c.InviteCode = code
		err = s.congregations.Create(ctx, c)
		if err == nil {
			return nil
		}
		if !errors.Is(err, congrepo.ErrInviteCodeTaken) {
			return fmt.Errorf("create congregation: %w", err)
		}
		s.logger.Warn("invite code collision", zap.Int("attempt", attempt))
	}
	return ErrInviteCodeExhausted
}

// JoinCongregation moves the actor into the congregation holding inviteCode as a publisher,
// whatever role the actor held before.
func (s *Service) JoinCongregation(ctx context.Context, actorID, inviteCode string) (*CongregationResult, error) {
	c, err := s.ValidateInviteCode(ctx, inviteCode)
	if err != nil {
		return nil, err
	}
	actor, err := s.Actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if err := s.members.Assign(ctx, actorID, c.ID, domain.RolePublisher); err != nil {
		return nil, fmt.Errorf("join congregation: %w", err)
	}
	m := domain.Membership{UserID: actorID, CongregationID: c.ID, Role: domain.RolePublisher}
	sess, err := s.IssueSession(m)
	if err != nil {
		return nil, err
	}
	s.record(ctx, events.New(events.MemberJoined, c.ID, actorID, "").
		WithRoles(string(domain.RolePublisher), string(actor.Role)))
	return &CongregationResult{Congregation: c, Session: sess}, nil
}

// LeaveCongregation detaches the actor and resets its role to publisher. Leaving with no
// congregation is a no-op that still returns a fresh token.
func (s *Service) LeaveCongregation(ctx context.Context, actorID string) (*Session, error) {
	actor, err := s.Actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if err := s.members.Detach(ctx, actorID); err != nil {
		return nil, fmt.Errorf("leave congregation: %w", err)
	}
	sess, err := s.IssueSession(domain.Membership{UserID: actorID, Role: domain.RolePublisher})
	if err != nil {
		return nil, err
	}
	if actor.InCongregation() {
		s.record(ctx, events.New(events.MemberLeft, actor.CongregationID, actorID, "").
			WithRoles(string(domain.RolePublisher), string(actor.Role)))
	}
	return &sess, nil
}

// ChangeRole sets the target's role when the engine allows it. The write applies only while
// actor and target still hold the roles the decision was made on.
func (s *Service) ChangeRole(ctx context.Context, actorID, targetID string, requested domain.Role) (*domain.Membership, error) {
	if !requested.Valid() {
		return nil, domain.ErrInvalidRole
	}
	actor, target, err := s.pair(ctx, actorID, targetID)
	if err != nil {
		return nil, err
	}
	if err := s.decide(ctx, OpChangeRole, actor, target, rbac.CanChangeRole(actor, target, requested)); err != nil {
		return nil, err
	}
	ok, err := s.members.UpdateRoleIfUnchanged(ctx, domain.Observe(actor, target), requested)
	if err != nil {
		return nil, fmt.Errorf("update role: %w", err)
	}
	if !ok {
		return nil, ErrStaleMembership
	}
	s.record(ctx, events.New(events.MemberRoleChanged, actor.CongregationID, actorID, targetID).
		WithRoles(string(requested), string(target.Role)))
	target.Role = requested
	return &target, nil
}

// RemoveMember detaches the target from the actor's congregation when the engine allows it.
func (s *Service) RemoveMember(ctx context.Context, actorID, targetID string) error {
	actor, target, err := s.pair(ctx, actorID, targetID)
	if err != nil {
		return err
	}
	if err := s.decide(ctx, OpRemoveMember, actor, target, rbac.CanRemoveMember(actor, target)); err != nil {
		return err
	}
	ok, err := s.members.RemoveIfUnchanged(ctx, domain.Observe(actor, target))
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	if !ok {
		return ErrStaleMembership
	}
	s.record(ctx, events.New(events.MemberRemoved, actor.CongregationID, actorID, targetID).
		WithRoles(string(domain.RolePublisher), string(target.Role)))
	return nil
}

func (s *Service) pair(ctx context.Context, actorID, targetID string) (actor, target domain.Membership, err error) {
	actor, err = s.Actor(ctx, actorID)
	if err != nil {
		return actor, target, err
	}
	t, err := s.members.Get(ctx, targetID)
	if err != nil {
		return actor, target, fmt.Errorf("load target: %w", err)
	}
	if t == nil {
		return actor, target, ErrMemberNotFound
	}
	return actor, *t, nil
}

func (s *Service) decide(ctx context.Context, op string, actor, target domain.Membership, d rbac.Decision) error {
	if s.decisions != nil {
		s.decisions.RecordDecision(ctx, op, d.Outcome(), d.Reason)
	}
	if d.Allowed {
		return nil
	}
	s.logger.Info("authorization denied",
		zap.String("operation", op),
		zap.String("actor_id", actor.UserID),
		zap.String("target_id", target.UserID),
		zap.String("reason", d.Reason))
	return d.Err()
}

// ListMembers returns the members of the actor's current congregation, or an empty list.
func (s *Service) ListMembers(ctx context.Context, actorID string) ([]domain.Member, error) {
	actor, err := s.Actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !actor.InCongregation() {
		return []domain.Member{}, nil
	}
	return s.members.ListMembers(ctx, actor.CongregationID)
}

// MyCongregation returns the actor's congregation with its member count, or nil when it has none.
func (s *Service) MyCongregation(ctx context.Context, actorID string) (*CongregationView, error) {
	actor, err := s.Actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !actor.InCongregation() {
		return nil, nil
	}
	c, err := s.congregations.GetByID(ctx, actor.CongregationID)
	if err != nil {
		return nil, fmt.Errorf("load congregation: %w", err)
	}
	if c == nil {
		return nil, nil
	}
	n, err := s.members.CountMembers(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("count members: %w", err)
	}
	return &CongregationView{Congregation: c, MemberCount: n}, nil
}

// ValidateInviteCode returns the congregation holding code. The match is exact and case-sensitive.
func (s *Service) ValidateInviteCode(ctx context.Context, code string) (*congdomain.Congregation, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrInvalidInviteCode
	}
	c, err := s.congregations.GetByInviteCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("lookup invite code: %w", err)
	}
	if c == nil {
		return nil, ErrInvalidInviteCode
	}
	return c, nil
}

// Capabilities evaluates the page capabilities of the actor's current role.
func (s *Service) Capabilities(ctx context.Context, actorID string) (rbac.Capabilities, error) {
	actor, err := s.Actor(ctx, actorID)
	if err != nil {
		return rbac.Capabilities{}, err
	}
	if s.capabilities == nil {
		return rbac.Capabilities{Allowed: []rbac.Capability{rbac.CapProfile}, DefaultRoute: "/profile"}, nil
	}
	return s.capabilities.Evaluate(ctx, actor)
}

// AuditTrail lists the audit entries of the actor's congregation, newest first.
func (s *Service) AuditTrail(ctx context.Context, actorID string, limit, offset int) ([]*auditdomain.AuditLog, error) {
	actor, err := s.Actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if err := s.decide(ctx, OpViewAudit, actor, actor, rbac.CanViewAudit(actor)); err != nil {
		return nil, err
	}
	if s.auditReader == nil {
		return []*auditdomain.AuditLog{}, nil
	}
	if limit <= 0 {
		limit = defaultAuditLimit
	} else if limit > maxAuditLimit {
		limit = maxAuditLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.auditReader.ListByCongregation(ctx, actor.CongregationID, limit, offset)
}

type deferredKey struct{}

// Deferred holds the events of membership changes made under a context from DeferEvents.
type Deferred struct {
	mu     sync.Mutex
	events []events.Event
}

// DeferEvents returns a context under which audit entries and published events are held in
// the returned Deferred instead of being written. A caller running membership changes inside
// its own transaction passes them to Flush once that transaction has committed.
func DeferEvents(ctx context.Context) (context.Context, *Deferred) {
	d := &Deferred{}
	return context.WithValue(ctx, deferredKey{}, d), d
}

// Flush records and publishes the events held by d. ctx must be outside the transaction.
func (s *Service) Flush(ctx context.Context, d *Deferred) {
	if d == nil {
		return
	}
	d.mu.Lock()
	evs := d.events
	d.events = nil
	d.mu.Unlock()
	for _, ev := range evs {
		s.emit(ctx, ev)
	}
}

func (s *Service) record(ctx context.Context, ev events.Event) {
	if d, ok := ctx.Value(deferredKey{}).(*Deferred); ok {
		d.mu.Lock()
		d.events = append(d.events, ev)
		d.mu.Unlock()
		return
	}
	s.emit(ctx, ev)
}

func (s *Service) emit(ctx context.Context, ev events.Event) {
	if s.audit != nil {
		s.audit.Record(ctx, ev)
	}
	if s.publisher != nil {
		s.publisher.Publish(ev)
	}
}
