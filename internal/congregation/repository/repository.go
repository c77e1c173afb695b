package repository

import (
	"context"
	"errors"

	"territory-service/internal/congregation/domain"
)

// ErrInviteCodeTaken is returned by Create when the invite code collides with an existing congregation.
var ErrInviteCodeTaken = errors.New("invite code already in use")

// Repository defines persistence for congregations.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Congregation, error)
	// GetByInviteCode matches the code exactly (case-sensitive).
	GetByInviteCode(ctx context.Context, code string) (*domain.Congregation, error)
	Create(ctx context.Context, c *domain.Congregation) error
}
