package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	congdomain "territory-service/internal/congregation/domain"
	"territory-service/internal/db"
	memberdomain "territory-service/internal/membership/domain"
	memberservice "territory-service/internal/membership/service"
	"territory-service/internal/security"
	userdomain "territory-service/internal/user/domain"
	userrepo "territory-service/internal/user/repository"
)

// Sentinel errors for auth service; handler maps them to HTTP statuses.
var (
	ErrEmailAlreadyRegistered = errors.New("email already registered")
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrPasswordTooShort       = errors.New("password must be at least 8 characters")
	// ErrRegistrationInviteCode is returned when registration names an invite code no congregation holds.
	ErrRegistrationInviteCode = errors.New("invalid invite code")
	ErrNothingToUpdate        = errors.New("no fields to update")
	ErrUserNotFound           = errors.New("user not found")
)

const minPasswordLength = 8

// UserRepo is the minimal user repository needed by the auth service.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
	Create(ctx context.Context, u *userdomain.User) error
	UpdateProfile(ctx context.Context, u *userdomain.User) error
}

// CongregationRepo resolves the congregation shown on a profile.
type CongregationRepo interface {
	GetByID(ctx context.Context, id string) (*congdomain.Congregation, error)
}

// Memberships is the part of the membership service registration relies on.
type Memberships interface {
	CreateCongregation(ctx context.Context, actorID, name, description string) (*memberservice.CongregationResult, error)
	JoinCongregation(ctx context.Context, actorID, inviteCode string) (*memberservice.CongregationResult, error)
	ValidateInviteCode(ctx context.Context, code string) (*congdomain.Congregation, error)
	IssueSession(m memberdomain.Membership) (memberservice.Session, error)
	Flush(ctx context.Context, d *memberservice.Deferred)
}

// AuthResult holds a freshly issued token and the user it was issued for.
type AuthResult struct {
	Token     string
	ExpiresAt time.Time
	User      *userdomain.User
}

// RegisterInput is the registration request. At most one of InviteCode and NewCongregation applies;
// InviteCode wins when both are set.
type RegisterInput struct {
	Name            string
	Email           string
	Password        string
	InviteCode      string
	NewCongregation *NewCongregation
}

// NewCongregation describes a congregation created during registration.
type NewCongregation struct {
	Name        string
	Description string
}

// ProfileUpdate carries the profile fields to change; nil fields are left as they are.
type ProfileUpdate struct {
	Name     *string
	Email    *string
	PhotoURL *string
	Password *string
}

// Profile is a user together with the congregation it currently belongs to, if any.
type Profile struct {
	User         *userdomain.User
	Congregation *congdomain.Congregation
}

// AuthService implements password register, login and profile maintenance.
type AuthService struct {
	userRepo         UserRepo
	congregationRepo CongregationRepo
	memberships      Memberships
	tx               db.Transactor
	hasher           *security.Hasher
	logger           *zap.Logger
}

// NewAuthService returns a new AuthService. tx may be nil, in which case registration steps run without a transaction.
func NewAuthService(userRepo UserRepo, congregationRepo CongregationRepo, memberships Memberships, tx db.Transactor, hasher *security.Hasher, logger *zap.Logger) *AuthService {
	if tx == nil {
		tx = db.NoTx{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		userRepo:         userRepo,
		congregationRepo: congregationRepo,
		memberships:      memberships,
		tx:               tx,
		hasher:           hasher,
		logger:           logger,
	}
}

// Register creates a publisher account and optionally joins or founds a congregation in the same transaction.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	u := &userdomain.User{
		ID:        uuid.New().String(),
		Email:     userdomain.NormalizeEmail(in.Email),
		Name:      strings.TrimSpace(in.Name),
		Role:      memberdomain.RolePublisher,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	existing, err := s.userRepo.GetByEmail(ctx, u.Email)
	if err != nil {
		return nil, fmt.Errorf("lookup email: %w", err)
	}
	if existing != nil {
		return nil, ErrEmailAlreadyRegistered
	}
	code := strings.TrimSpace(in.InviteCode)
	if code == "" && in.NewCongregation != nil && strings.TrimSpace(in.NewCongregation.Name) == "" {
		return nil, congdomain.ErrNameRequired
	}
	if code != "" {
		if _, err := s.memberships.ValidateInviteCode(ctx, code); err != nil {
			if errors.Is(err, memberservice.ErrInvalidInviteCode) {
				return nil, ErrRegistrationInviteCode
			}
			return nil, err
		}
	}
	hash, err := s.hasher.Hash([]byte(in.Password))
	if err != nil {
		return nil, err
	}
	u.PasswordHash = hash

	// Membership events are held until the registration commits.
	txCtx, deferred := memberservice.DeferEvents(ctx)
	var sess memberservice.Session
	err = s.tx.RunInTx(txCtx, func(ctx context.Context) error {
		if err := s.userRepo.Create(ctx, u); err != nil {
			if errors.Is(err, userrepo.ErrEmailTaken) {
				return ErrEmailAlreadyRegistered
			}
			return fmt.Errorf("create user: %w", err)
		}
		switch {
		case code != "":
			res, err := s.memberships.JoinCongregation(ctx, u.ID, code)
			if errors.Is(err, memberservice.ErrInvalidInviteCode) {
				return ErrRegistrationInviteCode
			}
			if err != nil {
				return err
			}
			sess = res.Session
		case in.NewCongregation != nil:
			res, err := s.memberships.CreateCongregation(ctx, u.ID, in.NewCongregation.Name, in.NewCongregation.Description)
			if err != nil {
				return err
			}
			sess = res.Session
		default:
			issued, err := s.memberships.IssueSession(u.Membership())
			if err != nil {
				return err
			}
			sess = issued
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.memberships.Flush(ctx, deferred)
	u.CongregationID = sess.Membership.CongregationID
	u.Role = sess.Membership.Role
	s.logger.Info("user registered", zap.String("user_id", u.ID), zap.String("congregation_id", u.CongregationID))
	return &AuthResult{Token: sess.Token, ExpiresAt: sess.ExpiresAt, User: u}, nil
}

// Login verifies the password and returns a token for the user's current membership.
// Unknown email and wrong password both return ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = userdomain.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	u, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u == nil || u.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if err := s.hasher.Compare(u.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	sess, err := s.memberships.IssueSession(u.Membership())
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: sess.Token, ExpiresAt: sess.ExpiresAt, User: u}, nil
}

// GetProfile returns the user and the congregation it belongs to.
func (s *AuthService) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	u, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	p := &Profile{User: u}
	if u.CongregationID != "" && s.congregationRepo != nil {
		c, err := s.congregationRepo.GetByID(ctx, u.CongregationID)
		if err != nil {
			return nil, fmt.Errorf("load congregation: %w", err)
		}
		p.Congregation = c
	}
	return p, nil
}

// UpdateProfile applies the non-nil fields of upd. An empty password is ignored.
func (s *AuthService) UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) (*userdomain.User, error) {
	if upd.Password != nil && *upd.Password == "" {
		upd.Password = nil
	}
	if upd.Name == nil && upd.Email == nil && upd.PhotoURL == nil && upd.Password == nil {
		return nil, ErrNothingToUpdate
	}
	u, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	if upd.Name != nil {
		u.Name = strings.TrimSpace(*upd.Name)
	}
	if upd.Email != nil {
		u.Email = userdomain.NormalizeEmail(*upd.Email)
	}
	if upd.PhotoURL != nil {
		u.PhotoURL = strings.TrimSpace(*upd.PhotoURL)
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	if upd.Password != nil {
		if err := validatePassword(*upd.Password); err != nil {
			return nil, err
		}
		hash, err := s.hasher.Hash([]byte(*upd.Password))
		if err != nil {
			return nil, err
		}
		u.PasswordHash = hash
	}
	u.UpdatedAt = time.Now().UTC()
	if err := s.userRepo.UpdateProfile(ctx, u); err != nil {
		if errors.Is(err, userrepo.ErrEmailTaken) {
			return nil, ErrEmailAlreadyRegistered
		}
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return u, nil
}

func validatePassword(password string) error {
	if utf8.RuneCountInString(password) < minPasswordLength {
		return ErrPasswordTooShort
	}
	return nil
}
