package domain

import (
	"errors"
	"strings"
)

// ErrInvalidRole is returned by ParseRole for a value outside the four-tier hierarchy.
var ErrInvalidRole = errors.New("invalid role")

// Role is a congregation role. Roles are totally ordered by Level.
type Role string

const (
	RolePublisher        Role = "publisher"
	RoleTerritoryServant Role = "territory_servant"
	RoleServiceOverseer  Role = "service_overseer"
	RoleElder            Role = "elder"
)

// roleLevels is the single role table; every privilege comparison goes through Level.
var roleLevels = map[Role]int{
	RolePublisher:        1,
	RoleTerritoryServant: 2,
	RoleServiceOverseer:  3,
	RoleElder:            4,
}

// Roles returns all roles from lowest to highest level.
func Roles() []Role {
	return []Role{RolePublisher, RoleTerritoryServant, RoleServiceOverseer, RoleElder}
}

// Level returns the numeric rank of r, or 0 for an unknown or empty role.
func (r Role) Level() int {
	return roleLevels[r]
}

// Valid reports whether r is one of the four known roles.
func (r Role) Valid() bool {
	return r.Level() > 0
}

// ParseRole converts s to a Role. Matching is exact after trimming whitespace.
func ParseRole(s string) (Role, error) {
	r := Role(strings.TrimSpace(s))
	if !r.Valid() {
		return "", ErrInvalidRole
	}
	return r, nil
}

// Membership is the derived relation between a user and a congregation.
// It is read fresh from the users table for every authorization decision.
// CongregationID is empty when the user belongs to no congregation.
type Membership struct {
	UserID         string
	CongregationID string
	Role           Role
}

// InCongregation reports whether m has a congregation affiliation.
func (m Membership) InCongregation() bool {
	return m.CongregationID != ""
}

// EffectiveLevel is the level used when others evaluate m. A user outside any
// congregation has no elevated privileges regardless of the stored role.
func (m Membership) EffectiveLevel() int {
	if !m.InCongregation() {
		return 0
	}
	return m.Role.Level()
}

// SameCongregation reports whether a and b belong to the same non-empty congregation.
func SameCongregation(a, b Membership) bool {
	return a.InCongregation() && a.CongregationID == b.CongregationID
}

// Member is a congregation member as listed to other members.
type Member struct {
	UserID   string
	Name     string
	Email    string
	PhotoURL string
	Role     Role
}

// Observed is the actor and target state an authorization decision was made on.
// Conditional writes apply only while the store still matches it.
type Observed struct {
	CongregationID string
	ActorID        string
	ActorRole      Role
	TargetID       string
	TargetRole     Role
}

// Observe captures the snapshot for a decision between actor and target.
func Observe(actor, target Membership) Observed {
	return Observed{
		CongregationID: actor.CongregationID,
		ActorID:        actor.UserID,
		ActorRole:      actor.Role,
		TargetID:       target.UserID,
		TargetRole:     target.Role,
	}
}
