package rbac

import (
	"territory-service/internal/membership/domain"
)

// CanChangeRole decides whether actor may set target's role to requested.
// Both memberships must come from the store in the current request; token claims are not trusted here.
func CanChangeRole(actor, target domain.Membership, requested domain.Role) Decision {
	if !domain.SameCongregation(actor, target) {
		return deny(DenyNotFound, ReasonNotSameTenant)
	}
	actorLevel := actor.EffectiveLevel()
	if actorLevel < domain.RoleTerritoryServant.Level() {
		return deny(DenyForbidden, ReasonCannotManageRoles)
	}
	if !requested.Valid() {
		return deny(DenyForbidden, ReasonUnknownRole)
	}
	if actor.Role != domain.RoleElder && requested.Level() >= actorLevel {
		return deny(DenyForbidden, ReasonCannotGrantAtOrAbove)
	}
	if actor.Role != domain.RoleElder && target.EffectiveLevel() >= actorLevel {
		return deny(DenyForbidden, ReasonCannotModifyAtOrAbove)
	}
	return Allow()
}
