// Package billing provides plan management and billing domain logic.
package billing

import (
	"fmt"
	"strings"

	"formguard/internal/types"
)

// PlanRegistry defines the authoritative limits for each tier.
// This is the single source of truth for what each plan allows.
type PlanRegistry interface {
	// LimitsFor returns the limits for the given plan. Unknown plans get the
	// Free limits so callers fail closed.
	LimitsFor(plan types.PlanName) types.PlanLimits

	// Plans returns every plan's limits in display order.
	Plans() []types.PlanLimits
}

type staticPlanRegistry struct {
	limits map[types.PlanName]types.PlanLimits
}

// planDefaults is the frozen plan table:
//
//	| Plan   | Forms     | Submissions/month | AI  | Webhooks | Team | Price |
//	|--------|-----------|-------------------|-----|----------|------|-------|
//	| free   | 1         | 100               | no  | no       | no   | $0    |
//	| pro    | 10        | 5,000             | yes | yes      | no   | $12   |
//	| growth | unlimited | unlimited         | yes | yes      | yes  | $39   |
var planDefaults = map[types.PlanName]types.PlanLimits{
	types.PlanFree: {
		Plan:                   types.PlanFree,
		Label:                  "Free",
		PriceCents:             0,
		MaxForms:               types.Bounded(1),
		MaxSubmissionsPerMonth: types.Bounded(100),
	},
	types.PlanPro: {
		Plan:                   types.PlanPro,
		Label:                  "Pro",
		PriceCents:             1200,
		MaxForms:               types.Bounded(10),
		MaxSubmissionsPerMonth: types.Bounded(5000),
		AIInsights:             true,
		Webhooks:               true,
	},
	types.PlanGrowth: {
		Plan:                   types.PlanGrowth,
		Label:                  "Growth",
		PriceCents:             3900,
		MaxForms:               types.Unlimited(),
		MaxSubmissionsPerMonth: types.Unlimited(),
		AIInsights:             true,
		Webhooks:               true,
		TeamWorkspace:          true,
	},
}

var (
	freeLimits      = planDefaults[types.PlanFree]
	defaultRegistry = NewStaticPlanRegistry()
)

// NewStaticPlanRegistry returns a PlanRegistry backed by the built-in plan table.
func NewStaticPlanRegistry() PlanRegistry {
	// Copy so callers cannot mutate the package-level table.
	m := make(map[types.PlanName]types.PlanLimits, len(planDefaults))
	for k, v := range planDefaults {
		m[k] = v
	}
	return &staticPlanRegistry{limits: m}
}

func (r *staticPlanRegistry) LimitsFor(plan types.PlanName) types.PlanLimits {
	if limits, ok := r.limits[plan]; ok {
		return limits
	}
	return freeLimits
}

func (r *staticPlanRegistry) Plans() []types.PlanLimits {
	out := make([]types.PlanLimits, 0, len(types.AllPlans))
	for _, p := range types.AllPlans {
		out = append(out, r.LimitsFor(p))
	}
	return out
}

// LimitsFor looks up a plan in the built-in table.
func LimitsFor(plan types.PlanName) types.PlanLimits {
	return defaultRegistry.LimitsFor(plan)
}

// ParsePlan normalizes a user-supplied plan name and rejects unknown values.
func ParsePlan(name string) (types.PlanName, error) {
	p := types.PlanName(strings.ToLower(strings.TrimSpace(name)))
	if !p.IsValid() {
		return "", types.NewAppErrorWithDetails(
			types.ErrCodeValidationInvalidPlan,
			fmt.Sprintf("unknown plan %q", name),
			nil,
			map[string]any{"allowed": types.AllPlans},
		)
	}
	return p, nil
}
