package domain

import "time"

// AuditLog is one persisted membership mutation.
type AuditLog struct {
	ID             string
	CongregationID string
	ActorID        string
	TargetID       string
	Action         string
	IP             string
	// Detail is a JSON object with the role transition, if any.
	Detail    string
	CreatedAt time.Time
}
