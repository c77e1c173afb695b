package domain

import (
	"errors"
	"net/mail"
	"strings"
	"time"

	memberdomain "territory-service/internal/membership/domain"
)

var (
	ErrEmailRequired = errors.New("email is required")
	ErrEmailInvalid  = errors.New("email is invalid")
	ErrNameRequired  = errors.New("name is required")
)

// User is the core user entity. CongregationID and Role together form the user's membership.
type User struct {
	ID             string
	Email          string
	Name           string
	PasswordHash   string
	PhotoURL       string
	CongregationID string
	Role           memberdomain.Role
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Membership returns the user's current congregation membership.
func (u *User) Membership() memberdomain.Membership {
	return memberdomain.Membership{UserID: u.ID, CongregationID: u.CongregationID, Role: u.Role}
}

// NormalizeEmail lowercases and trims email for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if u.Email == "" {
		return ErrEmailRequired
	}
	if _, err := mail.ParseAddress(u.Email); err != nil {
		return ErrEmailInvalid
	}
	if strings.TrimSpace(u.Name) == "" {
		return ErrNameRequired
	}
	if u.Role == "" {
		u.Role = memberdomain.RolePublisher
	}
	if !u.Role.Valid() {
		return memberdomain.ErrInvalidRole
	}
	return nil
}
