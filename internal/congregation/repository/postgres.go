package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"territory-service/internal/congregation/domain"
	"territory-service/internal/db"
)

const congregationColumns = `id, name, description, invite_code, created_by, created_at, updated_at`

type congregationRow struct {
	ID          string         `db:"id"`
	Name        string         `db:"name"`
	Description string         `db:"description"`
	InviteCode  string         `db:"invite_code"`
	CreatedBy   sql.NullString `db:"created_by"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

func (r *congregationRow) toDomain() *domain.Congregation {
	return &domain.Congregation{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		InviteCode:  r.InviteCode,
		CreatedBy:   r.CreatedBy.String,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository returns a congregation repository that uses the given db for persistence.
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the congregation for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Congregation, error) {
	return r.getOne(ctx, `SELECT `+congregationColumns+` FROM congregations WHERE id = $1`, id)
}

// GetByInviteCode returns the congregation holding code, or nil if none does.
func (r *PostgresRepository) GetByInviteCode(ctx context.Context, code string) (*domain.Congregation, error) {
	return r.getOne(ctx, `SELECT `+congregationColumns+` FROM congregations WHERE invite_code = $1`, code)
}

func (r *PostgresRepository) getOne(ctx context.Context, query, arg string) (*domain.Congregation, error) {
	var row congregationRow
	if err := db.Conn(ctx, r.db).GetContext(ctx, &row, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return row.toDomain(), nil
}

// Create inserts c. The insert skips on an invite code conflict instead of failing, so a
// surrounding transaction stays usable and the caller can retry with a fresh code.
func (r *PostgresRepository) Create(ctx context.Context, c *domain.Congregation) error {
	createdBy := sql.NullString{String: c.CreatedBy, Valid: c.CreatedBy != ""}
	res, err := db.Conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO congregations (id, name, description, invite_code, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (invite_code) DO NOTHING`,
		c.ID, c.Name, c.Description, c.InviteCode, createdBy, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, "congregations_invite_code_key") {
			return ErrInviteCodeTaken
		}
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrInviteCodeTaken
	}
	return nil
}
