package rbac

import (
	"territory-service/internal/membership/domain"
)

// CanRemoveMember decides whether actor may remove target from their shared congregation.
// Self-removal is always denied; callers use the leave operation for that.
func CanRemoveMember(actor, target domain.Membership) Decision {
	if !domain.SameCongregation(actor, target) {
		return deny(DenyNotFound, ReasonNotSameTenant)
	}
	if actor.UserID == target.UserID {
		return deny(DenyForbidden, ReasonCannotRemoveSelf)
	}
	if actor.EffectiveLevel() < domain.RoleServiceOverseer.Level() {
		return deny(DenyForbidden, ReasonCannotRemoveMembers)
	}
	if actor.Role == domain.RoleServiceOverseer && target.EffectiveLevel() >= domain.RoleServiceOverseer.Level() {
		return deny(DenyForbidden, ReasonCannotRemovePeer)
	}
	if actor.Role == domain.RoleElder && target.Role == domain.RoleElder {
		return deny(DenyForbidden, ReasonEldersCannotRemoveElders)
	}
	return Allow()
}
