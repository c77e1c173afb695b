package rbac

// Capability names a page or action the client may expose to a member.
type Capability string

const (
	CapDashboard             Capability = "dashboard"
	CapTerritories           Capability = "territories"
	CapGroups                Capability = "groups"
	CapMap                   Capability = "map"
	CapPlanning              Capability = "planning"
	CapReports               Capability = "reports"
	CapProfile               Capability = "profile"
	CapManageGroups          Capability = "manage_groups"
	CapAssignMembersToGroups Capability = "assign_members_to_groups"
	CapTracking              Capability = "tracking"
	CapTrackingHistory       Capability = "tracking_history"
	CapTrackingAdmin         Capability = "tracking_admin"
)

// Capabilities is the outcome of evaluating the capability policy for one member.
type Capabilities struct {
	Allowed []Capability
	// DefaultRoute is the landing page for the member.
	DefaultRoute string
}

// Has reports whether c is allowed.
func (cs Capabilities) Has(c Capability) bool {
	for _, a := range cs.Allowed {
		if a == c {
			return true
		}
	}
	return false
}
