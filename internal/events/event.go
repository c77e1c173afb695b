// Package events defines membership change events and best-effort delivery to emitters
// such as Kafka and OTel logs.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Type names a membership change.
type Type string

const (
	CongregationCreated Type = "congregation.created"
	MemberJoined        Type = "member.joined"
	MemberLeft          Type = "member.left"
	MemberRoleChanged   Type = "member.role_changed"
	MemberRemoved       Type = "member.removed"
)

// Event is one allowed membership mutation.
type Event struct {
	ID             string    `json:"id"`
	Type           Type      `json:"type"`
	CongregationID string    `json:"congregationId"`
	ActorID        string    `json:"actorId"`
	TargetID       string    `json:"targetId,omitempty"`
	Role           string    `json:"role,omitempty"`
	PreviousRole   string    `json:"previousRole,omitempty"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// New returns an Event with a fresh id and the current time. targetID defaults to actorID.
func New(t Type, congregationID, actorID, targetID string) Event {
	if targetID == "" {
		targetID = actorID
	}
	return Event{
		ID:             uuid.NewString(),
		Type:           t,
		CongregationID: congregationID,
		ActorID:        actorID,
		TargetID:       targetID,
		OccurredAt:     time.Now().UTC(),
	}
}

// WithRoles sets the new and previous role.
func (e Event) WithRoles(role, previous string) Event {
	e.Role = role
	e.PreviousRole = previous
	return e
}

// Emitter delivers events. Callers treat failures as best-effort.
type Emitter interface {
	Emit(ctx context.Context, ev Event) error
}

// Noop discards events.
type Noop struct{}

func (Noop) Emit(context.Context, Event) error { return nil }

// Multi sends every event to each emitter and joins their errors.
type Multi []Emitter

func (m Multi) Emit(ctx context.Context, ev Event) error {
	var errs []error
	for _, e := range m {
		if e == nil {
			continue
		}
		if err := e.Emit(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
