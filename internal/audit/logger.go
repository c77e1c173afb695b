// Package audit records allowed membership mutations.
package audit

import (
	"context"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"territory-service/internal/audit/domain"
	auditrepo "territory-service/internal/audit/repository"
	"territory-service/internal/events"
)

// IPExtractor returns the client IP carried by the request context.
type IPExtractor func(context.Context) string

// Recorder writes an audit entry for an event. Best-effort: failures do not affect the caller.
type Recorder interface {
	Record(ctx context.Context, ev events.Event)
}

// Logger implements Recorder using the audit repository and an optional IP extractor.
type Logger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
	logger      *zap.Logger
}

// NewLogger returns a Logger that persists to repo. ipExtractor may be nil; then IP is recorded as "unknown".
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor, logger *zap.Logger) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Logger{repo: repo, ipExtractor: ipExtractor, logger: logger}
}

type detail struct {
	Role         string `json:"role,omitempty"`
	PreviousRole string `json:"previousRole,omitempty"`
}

// Record writes one audit log entry for ev. Errors are logged and not returned.
func (l *Logger) Record(ctx context.Context, ev events.Event) {
	if err := l.Write(ctx, ev); err != nil {
		l.logger.Error("audit write failed",
			zap.String("action", string(ev.Type)),
			zap.String("event_id", ev.ID),
			zap.Error(err))
	}
}

// Write persists the audit entry for ev and returns the repository error. The entry id is the
// event id, so writing the same event twice leaves one row.
func (l *Logger) Write(ctx context.Context, ev events.Event) error {
	if l == nil || l.repo == nil {
		return nil
	}
	ip := "unknown"
	if l.ipExtractor != nil {
		if v := l.ipExtractor(ctx); v != "" {
			ip = v
		}
	}
	entry := &domain.AuditLog{
		ID:             ev.ID,
		CongregationID: ev.CongregationID,
		ActorID:        ev.ActorID,
		TargetID:       ev.TargetID,
		Action:         string(ev.Type),
		IP:             ip,
		Detail:         "{}",
		CreatedAt:      ev.OccurredAt,
	}
	if ev.Role != "" || ev.PreviousRole != "" {
		if b, err := sonic.Marshal(detail{Role: ev.Role, PreviousRole: ev.PreviousRole}); err == nil {
			entry.Detail = string(b)
		}
	}
	return l.repo.Create(ctx, entry)
}
