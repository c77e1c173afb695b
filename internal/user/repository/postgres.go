package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"territory-service/internal/db"
	memberdomain "territory-service/internal/membership/domain"
	"territory-service/internal/user/domain"
)

const userColumns = `id, email, name, password_hash, photo_url, congregation_id, role, created_at, updated_at`

type userRow struct {
	ID             string         `db:"id"`
	Email          string         `db:"email"`
	Name           string         `db:"name"`
	PasswordHash   string         `db:"password_hash"`
	PhotoURL       string         `db:"photo_url"`
	CongregationID sql.NullString `db:"congregation_id"`
	Role           string         `db:"role"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

func (r *userRow) toDomain() *domain.User {
	return &domain.User{
		ID:             r.ID,
		Email:          r.Email,
		Name:           r.Name,
		PasswordHash:   r.PasswordHash,
		PhotoURL:       r.PhotoURL,
		CongregationID: r.CongregationID.String,
		Role:           memberdomain.Role(r.Role),
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository returns a user repository that uses the given db for persistence.
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the user for id, or nil if not found. A malformed id is not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	if !db.IsUUID(id) {
		return nil, nil
	}
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetByEmail returns the user with the given email, or nil if not found.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, domain.NormalizeEmail(email))
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg string) (*domain.User, error) {
	var row userRow
	if err := db.Conn(ctx, r.db).GetContext(ctx, &row, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return row.toDomain(), nil
}

// Create persists the user. The user must have ID set; it is not assigned by this method.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) error {
	cong := sql.NullString{String: u.CongregationID, Valid: u.CongregationID != ""}
	_, err := db.Conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO users (id, email, name, password_hash, photo_url, congregation_id, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		u.ID, domain.NormalizeEmail(u.Email), u.Name, u.PasswordHash, u.PhotoURL, cong, string(u.Role), u.CreatedAt, u.UpdatedAt)
	if db.IsUniqueViolation(err, "users_email_key") {
		return ErrEmailTaken
	}
	return err
}

// UpdateProfile updates the profile columns of an existing user. A missing user is a no-op.
func (r *PostgresRepository) UpdateProfile(ctx context.Context, u *domain.User) error {
	_, err := db.Conn(ctx, r.db).ExecContext(ctx, `
		UPDATE users SET email = $2, name = $3, photo_url = $4, password_hash = $5, updated_at = $6
		WHERE id = $1`,
		u.ID, domain.NormalizeEmail(u.Email), u.Name, u.PhotoURL, u.PasswordHash, u.UpdatedAt)
	if db.IsUniqueViolation(err, "users_email_key") {
		return ErrEmailTaken
	}
	return err
}
