package repository

import (
	"context"
	"errors"

	"territory-service/internal/membership/domain"
)

// ErrUserNotFound is returned when a write targets a user id with no row.
var ErrUserNotFound = errors.New("user not found")

// Repository reads and writes the membership columns of users.
// Every write is a single statement; none reads then writes across round trips.
type Repository interface {
	// Get returns the current membership of userID, or nil if the user does not exist.
	Get(ctx context.Context, userID string) (*domain.Membership, error)
	// Assign sets userID's congregation and role unconditionally.
	Assign(ctx context.Context, userID, congregationID string, role domain.Role) error
	// Detach clears userID's congregation and resets the role to publisher.
	Detach(ctx context.Context, userID string) error
	// UpdateRoleIfUnchanged sets the target's role to role only while obs still holds.
	// It reports false when no row matched.
	UpdateRoleIfUnchanged(ctx context.Context, obs domain.Observed, role domain.Role) (bool, error)
	// RemoveIfUnchanged detaches the target only while obs still holds.
	RemoveIfUnchanged(ctx context.Context, obs domain.Observed) (bool, error)
	// ListMembers returns members of congregationID ordered by name.
	ListMembers(ctx context.Context, congregationID string) ([]domain.Member, error)
	CountMembers(ctx context.Context, congregationID string) (int, error)
}
