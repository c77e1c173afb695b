package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"territory-service/internal/db"
	"territory-service/internal/membership/domain"
)

type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository returns a membership repository over the users table.
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type membershipRow struct {
	UserID         string         `db:"id"`
	CongregationID sql.NullString `db:"congregation_id"`
	Role           string         `db:"role"`
}

// Get returns the membership for userID, or nil if not found. A malformed id is not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) Get(ctx context.Context, userID string) (*domain.Membership, error) {
	if !db.IsUUID(userID) {
		return nil, nil
	}
	var row membershipRow
	err := db.Conn(ctx, r.db).GetContext(ctx, &row, `SELECT id, congregation_id, role FROM users WHERE id = $1`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &domain.Membership{UserID: row.UserID, CongregationID: row.CongregationID.String, Role: domain.Role(row.Role)}, nil
}

// Assign moves userID into congregationID with role.
func (r *PostgresRepository) Assign(ctx context.Context, userID, congregationID string, role domain.Role) error {
	res, err := db.Conn(ctx, r.db).ExecContext(ctx,
		`UPDATE users SET congregation_id = $2, role = $3, updated_at = now() WHERE id = $1`,
		userID, congregationID, string(role))
	return requireRow(res, err)
}

// Detach clears the congregation of userID and resets its role.
func (r *PostgresRepository) Detach(ctx context.Context, userID string) error {
	res, err := db.Conn(ctx, r.db).ExecContext(ctx,
		`UPDATE users SET congregation_id = NULL, role = $2, updated_at = now() WHERE id = $1`,
		userID, string(domain.RolePublisher))
	return requireRow(res, err)
}

// actorStillHolds is appended to conditional writes; $2..$4 are congregation, actor id, actor role.
const actorStillHolds = `
	AND EXISTS (
		SELECT 1 FROM users actor
		WHERE actor.id = $3 AND actor.congregation_id = $2 AND actor.role = $4
	)`

// UpdateRoleIfUnchanged changes the target's role in one statement guarded by obs.
func (r *PostgresRepository) UpdateRoleIfUnchanged(ctx context.Context, obs domain.Observed, role domain.Role) (bool, error) {
	res, err := db.Conn(ctx, r.db).ExecContext(ctx, `
		UPDATE users SET role = $6, updated_at = now()
		WHERE id = $1 AND congregation_id = $2 AND role = $5`+actorStillHolds,
		obs.TargetID, obs.CongregationID, obs.ActorID, string(obs.ActorRole), string(obs.TargetRole), string(role))
	return matched(res, err)
}

// RemoveIfUnchanged detaches the target in one statement guarded by obs.
func (r *PostgresRepository) RemoveIfUnchanged(ctx context.Context, obs domain.Observed) (bool, error) {
	res, err := db.Conn(ctx, r.db).ExecContext(ctx, `
		UPDATE users SET congregation_id = NULL, role = $6, updated_at = now()
		WHERE id = $1 AND congregation_id = $2 AND role = $5`+actorStillHolds,
		obs.TargetID, obs.CongregationID, obs.ActorID, string(obs.ActorRole), string(obs.TargetRole), string(domain.RolePublisher))
	return matched(res, err)
}

type memberRow struct {
	UserID   string `db:"id"`
	Name     string `db:"name"`
	Email    string `db:"email"`
	PhotoURL string `db:"photo_url"`
	Role     string `db:"role"`
}

// ListMembers returns all users whose congregation is congregationID.
func (r *PostgresRepository) ListMembers(ctx context.Context, congregationID string) ([]domain.Member, error) {
	var rows []memberRow
	err := db.Conn(ctx, r.db).SelectContext(ctx, &rows, `
		SELECT id, name, email, photo_url, role FROM users
		WHERE congregation_id = $1
		ORDER BY name, id`, congregationID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Member, len(rows))
	for i, row := range rows {
		out[i] = domain.Member{UserID: row.UserID, Name: row.Name, Email: row.Email, PhotoURL: row.PhotoURL, Role: domain.Role(row.Role)}
	}
	return out, nil
}

// CountMembers returns the number of users in congregationID.
func (r *PostgresRepository) CountMembers(ctx context.Context, congregationID string) (int, error) {
	var n int
	err := db.Conn(ctx, r.db).GetContext(ctx, &n, `SELECT count(*) FROM users WHERE congregation_id = $1`, congregationID)
	return n, err
}

func matched(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func requireRow(res sql.Result, err error) error {
	ok, err := matched(res, err)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUserNotFound
	}
	return nil
}
