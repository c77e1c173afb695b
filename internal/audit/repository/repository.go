package repository

import (
	"context"

	"territory-service/internal/audit/domain"
)

// Repository defines persistence for audit logs.
type Repository interface {
	Create(ctx context.Context, a *domain.AuditLog) error
	ListByCongregation(ctx context.Context, congregationID string, limit, offset int) ([]*domain.AuditLog, error)
}
