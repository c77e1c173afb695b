package rbac

import "territory-service/internal/membership/domain"

// CanViewAudit decides whether actor may read its congregation's audit trail.
// Service overseers and elders may; the actor must belong to a congregation.
func CanViewAudit(actor domain.Membership) Decision {
	if !actor.InCongregation() {
		return deny(DenyForbidden, ReasonNotInCongregation)
	}
	if actor.EffectiveLevel() < domain.RoleServiceOverseer.Level() {
		return deny(DenyForbidden, ReasonCannotViewAudit)
	}
	return Allow()
}
