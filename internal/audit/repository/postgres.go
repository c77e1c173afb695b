package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"territory-service/internal/audit/domain"
	"territory-service/internal/db"
)

type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository returns an audit log repository that uses the given db for persistence.
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Create persists the audit log. The audit log must have ID set; an existing row with the same
// ID is left unchanged so replayed events are idempotent.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	_, err := db.Conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO audit_logs (id, congregation_id, actor_id, target_id, action, ip, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`,
		a.ID, nullable(a.CongregationID), nullable(a.ActorID), nullable(a.TargetID), a.Action, a.IP, a.Detail, a.CreatedAt)
	return err
}

type auditRow struct {
	ID             string         `db:"id"`
	CongregationID sql.NullString `db:"congregation_id"`
	ActorID        sql.NullString `db:"actor_id"`
	TargetID       sql.NullString `db:"target_id"`
	Action         string         `db:"action"`
	IP             string         `db:"ip"`
	Detail         string         `db:"detail"`
	CreatedAt      time.Time      `db:"created_at"`
}

// ListByCongregation returns a congregation's audit logs newest first, paginated by limit and offset.
func (r *PostgresRepository) ListByCongregation(ctx context.Context, congregationID string, limit, offset int) ([]*domain.AuditLog, error) {
	var rows []auditRow
	err := db.Conn(ctx, r.db).SelectContext(ctx, &rows, `
		SELECT id, congregation_id, actor_id, target_id, action, ip, detail, created_at
		FROM audit_logs WHERE congregation_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`, congregationID, limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.AuditLog, len(rows))
	for i, row := range rows {
		out[i] = &domain.AuditLog{
			ID:             row.ID,
			CongregationID: row.CongregationID.String,
			ActorID:        row.ActorID.String,
			TargetID:       row.TargetID.String,
			Action:         row.Action,
			IP:             row.IP,
			Detail:         row.Detail,
			CreatedAt:      row.CreatedAt,
		}
	}
	return out, nil
}
