package rbac

import (
	"errors"
	"testing"

	"territory-service/internal/membership/domain"
)

func member(id, congregationID string, role domain.Role) domain.Membership {
	return domain.Membership{UserID: id, CongregationID: congregationID, Role: role}
}

func TestCanChangeRole_ElderPromotesServant(t *testing.T) {
	actor := member("elder-1", "cong-a", domain.RoleElder)
	target := member("servant-1", "cong-a", domain.RoleTerritoryServant)

	d := CanChangeRole(actor, target, domain.RoleServiceOverseer)
	if !d.Allowed {
		t.Fatalf("CanChangeRole denied: %q", d.Reason)
	}
	if d.Err() != nil {
		t.Errorf("Err() = %v, want nil", d.Err())
	}
}

func TestCanChangeRole_ServantCannotGrantElder(t *testing.T) {
	actor := member("servant-1", "cong-a", domain.RoleTerritoryServant)
	target := member("pub-1", "cong-a", domain.RolePublisher)

	d := CanChangeRole(actor, target, domain.RoleElder)
	if d.Allowed {
		t.Fatal("territory_servant must not grant elder")
	}
	if d.Kind != DenyForbidden || d.Reason != ReasonCannotGrantAtOrAbove {
		t.Errorf("decision = %+v, want forbidden %q", d, ReasonCannotGrantAtOrAbove)
	}
}

func TestCanChangeRole_NonElderNeverGrantsAtOrAboveOwnLevel(t *testing.T) {
	for _, actorRole := range domain.Roles() {
		if actorRole == domain.RoleElder {
			continue
		}
		for _, requested := range domain.Roles() {
			if requested.Level() < actorRole.Level() {
				continue
			}
			for _, targetRole := range domain.Roles() {
				actor := member("actor", "cong-a", actorRole)
				target := member("target", "cong-a", targetRole)
				if d := CanChangeRole(actor, target, requested); d.Allowed {
					t.Errorf("%s granted %s to %s", actorRole, requested, targetRole)
				}
			}
		}
	}
}

func TestCanChangeRole_Table(t *testing.T) {
	testCases := []struct {
		name      string
		actor     domain.Role
		target    domain.Role
		requested domain.Role
		allowed   bool
		reason    string
	}{
		{"publisher cannot manage", domain.RolePublisher, domain.RolePublisher, domain.RolePublisher, false, ReasonCannotManageRoles},
		{"servant demotes publisher to publisher", domain.RoleTerritoryServant, domain.RolePublisher, domain.RolePublisher, true, ""},
		{"servant cannot grant servant", domain.RoleTerritoryServant, domain.RolePublisher, domain.RoleTerritoryServant, false, ReasonCannotGrantAtOrAbove},
		{"overseer grants servant", domain.RoleServiceOverseer, domain.RolePublisher, domain.RoleTerritoryServant, true, ""},
		{"overseer cannot grant overseer", domain.RoleServiceOverseer, domain.RolePublisher, domain.RoleServiceOverseer, false, ReasonCannotGrantAtOrAbove},
		{"overseer cannot modify overseer", domain.RoleServiceOverseer, domain.RoleServiceOverseer, domain.RolePublisher, false, ReasonCannotModifyAtOrAbove},
		{"overseer cannot modify elder", domain.RoleServiceOverseer, domain.RoleElder, domain.RolePublisher, false, ReasonCannotModifyAtOrAbove},
		{"elder grants elder", domain.RoleElder, domain.RolePublisher, domain.RoleElder, true, ""},
		{"elder demotes overseer", domain.RoleElder, domain.RoleServiceOverseer, domain.RolePublisher, true, ""},
		{"elder changes another elder", domain.RoleElder, domain.RoleElder, domain.RoleServiceOverseer, true, ""},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			d := CanChangeRole(member("actor", "cong-a", tc.actor), member("target", "cong-a", tc.target), tc.requested)
			if d.Allowed != tc.allowed {
				t.Fatalf("Allowed = %v, want %v (reason %q)", d.Allowed, tc.allowed, d.Reason)
			}
			if d.Reason != tc.reason {
				t.Errorf("Reason = %q, want %q", d.Reason, tc.reason)
			}
		})
	}
}

func TestCanChangeRole_CrossTenantIsNotFound(t *testing.T) {
	actor := member("elder-1", "cong-a", domain.RoleElder)
	target := member("pub-1", "cong-b", domain.RolePublisher)

	d := CanChangeRole(actor, target, domain.RoleTerritoryServant)
	if d.Allowed {
		t.Fatal("cross-tenant role change must be denied")
	}
	if d.Kind != DenyNotFound {
		t.Errorf("Kind = %v, want DenyNotFound", d.Kind)
	}
	var denial *Denial
	if !errors.As(d.Err(), &denial) {
		t.Fatalf("Err() = %v, want *Denial", d.Err())
	}
	if denial.Kind != DenyNotFound {
		t.Errorf("Denial.Kind = %v, want DenyNotFound", denial.Kind)
	}
}

func TestCanChangeRole_ActorWithoutCongregation(t *testing.T) {
	actor := member("elder-1", "", domain.RoleElder)
	target := member("pub-1", "", domain.RolePublisher)

	d := CanChangeRole(actor, target, domain.RolePublisher)
	if d.Allowed || d.Kind != DenyNotFound {
		t.Errorf("decision = %+v, want not-found denial", d)
	}
}

func TestCanChangeRole_UnknownRequestedRole(t *testing.T) {
	actor := member("elder-1", "cong-a", domain.RoleElder)
	target := member("pub-1", "cong-a", domain.RolePublisher)

	d := CanChangeRole(actor, target, domain.Role("admin"))
	if d.Allowed || d.Reason != ReasonUnknownRole {
		t.Errorf("decision = %+v, want %q", d, ReasonUnknownRole)
	}
}

func TestCanChangeRole_PrivilegeCheckedBeforeRequestedRole(t *testing.T) {
	actor := member("pub-1", "cong-a", domain.RolePublisher)
	target := member("pub-2", "cong-a", domain.RolePublisher)

	d := CanChangeRole(actor, target, domain.Role("admin"))
	if d.Allowed || d.Reason != ReasonCannotManageRoles {
		t.Errorf("decision = %+v, want %q", d, ReasonCannotManageRoles)
	}
}
