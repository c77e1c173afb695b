// Package engine evaluates the member capability policy with OPA Rego.
package engine

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sort"

	"github.com/open-policy-agent/opa/v1/rego"

	"territory-service/internal/membership/domain"
	"territory-service/internal/platform/rbac"
)

const decisionQuery = "data.territory.capabilities.decision"

//go:embed policy.rego
var capabilityPolicy string

// ErrNoResult is returned when the policy produced no decision.
var ErrNoResult = errors.New("capability policy returned no result")

// CapabilityEvaluator maps a member's current role to the pages they may use.
// The query is compiled once; Evaluate is safe for concurrent use.
type CapabilityEvaluator struct {
	query rego.PreparedEvalQuery
}

// NewCapabilityEvaluator compiles the embedded capability policy.
func NewCapabilityEvaluator(ctx context.Context) (*CapabilityEvaluator, error) {
	pq, err := rego.New(
		rego.Query(decisionQuery),
		rego.Module("capabilities.rego", capabilityPolicy),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile capability policy: %w", err)
	}
	return &CapabilityEvaluator{query: pq}, nil
}

// Evaluate returns the capabilities of m. m must be read fresh from the store.
func (e *CapabilityEvaluator) Evaluate(ctx context.Context, m domain.Membership) (rbac.Capabilities, error) {
	input := map[string]interface{}{
		"role":            string(m.Role),
		"congregation_id": m.CongregationID,
	}
	rs, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return rbac.Capabilities{}, fmt.Errorf("eval capability policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return rbac.Capabilities{}, ErrNoResult
	}
	obj, ok := rs[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return rbac.Capabilities{}, fmt.Errorf("capability policy: unexpected result %T", rs[0].Expressions[0].Value)
	}
	out := rbac.Capabilities{}
	if route, ok := obj["default_route"].(string); ok {
		out.DefaultRoute = route
	}
	caps, _ := obj["capabilities"].([]interface{})
	for _, c := range caps {
		if s, ok := c.(string); ok {
			out.Allowed = append(out.Allowed, rbac.Capability(s))
		}
	}
	sort.Slice(out.Allowed, func(i, j int) bool { return out.Allowed[i] < out.Allowed[j] })
	return out, nil
}

// HealthCheck evaluates the policy for an elder and verifies the expected capability is present.
func (e *CapabilityEvaluator) HealthCheck(ctx context.Context) error {
	caps, err := e.Evaluate(ctx, domain.Membership{UserID: "health", CongregationID: "health", Role: domain.RoleElder})
	if err != nil {
		return err
	}
	if !caps.Has(rbac.CapTrackingAdmin) {
		return errors.New("capability policy: elder lacks tracking_admin")
	}
	return nil
}
