package domain

import "testing"

func TestRole_LevelOrdering(t *testing.T) {
	roles := Roles()
	for i := 1; i < len(roles); i++ {
		if roles[i-1].Level() >= roles[i].Level() {
			t.Errorf("%s level %d should be below %s level %d", roles[i-1], roles[i-1].Level(), roles[i], roles[i].Level())
		}
	}
	if RolePublisher.Level() != 1 || RoleElder.Level() != 4 {
		t.Errorf("publisher=%d elder=%d, want 1 and 4", RolePublisher.Level(), RoleElder.Level())
	}
}

func TestRole_UnknownIsLevelZero(t *testing.T) {
	for _, r := range []Role{"", "admin", "Elder", "owner"} {
		if r.Level() != 0 {
			t.Errorf("Role(%q).Level() = %d, want 0", r, r.Level())
		}
		if r.Valid() {
			t.Errorf("Role(%q).Valid() = true", r)
		}
	}
}

func TestParseRole(t *testing.T) {
	testCases := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{"publisher", RolePublisher, false},
		{" territory_servant ", RoleTerritoryServant, false},
		{"service_overseer", RoleServiceOverseer, false},
		{"elder", RoleElder, false},
		{"ELDER", "", true},
		{"admin", "", true},
		{"", "", true},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseRole(tc.in)
			if tc.wantErr {
				if err != ErrInvalidRole {
					t.Fatalf("ParseRole(%q) err = %v, want ErrInvalidRole", tc.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRole(%q): %v", tc.in, err)
			}
			if got != tc.want {
				t.Errorf("ParseRole(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestMembership_EffectiveLevel(t *testing.T) {
	detached := Membership{UserID: "u1", Role: RoleElder}
	if detached.EffectiveLevel() != 0 {
		t.Errorf("detached elder EffectiveLevel = %d, want 0", detached.EffectiveLevel())
	}
	member := Membership{UserID: "u1", CongregationID: "c1", Role: RoleServiceOverseer}
	if member.EffectiveLevel() != 3 {
		t.Errorf("overseer EffectiveLevel = %d, want 3", member.EffectiveLevel())
	}
}

func TestSameCongregation(t *testing.T) {
	a := Membership{UserID: "a", CongregationID: "c1"}
	b := Membership{UserID: "b", CongregationID: "c1"}
	c := Membership{UserID: "c", CongregationID: "c2"}
	none1 := Membership{UserID: "d"}
	none2 := Membership{UserID: "e"}
	if !SameCongregation(a, b) {
		t.Error("a and b share c1")
	}
	if SameCongregation(a, c) {
		t.Error("a and c are in different congregations")
	}
	if SameCongregation(none1, none2) {
		t.Error("two users without a congregation are not in the same tenant")
	}
}

func TestObserve(t *testing.T) {
	actor := Membership{UserID: "a", CongregationID: "c1", Role: RoleElder}
	target := Membership{UserID: "t", CongregationID: "c1", Role: RolePublisher}
	got := Observe(actor, target)
	want := Observed{CongregationID: "c1", ActorID: "a", ActorRole: RoleElder, TargetID: "t", TargetRole: RolePublisher}
	if got != want {
		t.Errorf("Observe = %+v, want %+v", got, want)
	}
}
