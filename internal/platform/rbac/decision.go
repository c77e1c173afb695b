// Package rbac is the congregation authorization engine. Every decision is a
// pure function of the actor and target memberships read in the current request.
package rbac

// DenyKind classifies a denial for the transport layer.
type DenyKind int

const (
	// DenyForbidden means the actor is known to the tenant but lacks authority (HTTP 403).
	DenyForbidden DenyKind = iota + 1
	// DenyNotFound hides cross-tenant targets behind a not-found answer (HTTP 404).
	DenyNotFound
)

// Denial reasons. The forbidden reasons are surfaced to the user verbatim.
const (
	ReasonNotSameTenant            = "not same tenant"
	ReasonUnknownRole              = "unknown role"
	ReasonCannotManageRoles        = "insufficient privilege to manage roles"
	ReasonCannotGrantAtOrAbove     = "cannot grant a role at or above own level"
	ReasonCannotModifyAtOrAbove    = "cannot modify someone at or above own level"
	ReasonCannotRemoveSelf         = "cannot remove self"
	ReasonCannotRemoveMembers      = "insufficient privilege to remove members"
	ReasonCannotRemovePeer         = "cannot remove peer or higher"
	ReasonEldersCannotRemoveElders = "elders cannot remove elders"
	ReasonNotInCongregation        = "not in a congregation"
	ReasonCannotViewAudit          = "insufficient privilege to view audit log"
)

// Decision is the tagged allow/deny result of an authorization check.
type Decision struct {
	Allowed bool
	Kind    DenyKind
	Reason  string
}

// Allow returns an allowing decision.
func Allow() Decision {
	return Decision{Allowed: true}
}

func deny(kind DenyKind, reason string) Decision {
	return Decision{Kind: kind, Reason: reason}
}

// Err returns nil for an allowing decision and a *Denial otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &Denial{Kind: d.Kind, Reason: d.Reason}
}

// Outcome is "allow" or "deny"; used as a metric attribute.
func (d Decision) Outcome() string {
	if d.Allowed {
		return "allow"
	}
	return "deny"
}

// Denial is the error form of a denied Decision.
type Denial struct {
	Kind   DenyKind
	Reason string
}

func (e *Denial) Error() string {
	return "authorization denied: " + e.Reason
}
