package repository

import (
	"context"
	"errors"

	"territory-service/internal/user/domain"
)

// ErrEmailTaken is returned by Create and UpdateProfile when another user already has the email.
var ErrEmailTaken = errors.New("email already registered")

// Repository defines persistence for users. Membership columns are written only through
// the membership repository.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	// UpdateProfile writes name, email, photo URL and password hash.
	UpdateProfile(ctx context.Context, u *domain.User) error
}
