package types

// PlanName identifies a subscription tier.
type PlanName string

const (
	PlanFree   PlanName = "free"
	PlanPro    PlanName = "pro"
	PlanGrowth PlanName = "growth"
)

// AllPlans lists the recognized plans in display order.
var AllPlans = []PlanName{PlanFree, PlanPro, PlanGrowth}

// IsValid reports whether p is one of the recognized plans.
func (p PlanName) IsValid() bool {
	switch p {
	case PlanFree, PlanPro, PlanGrowth:
		return true
	}
	return false
}

// MutationResult is the outcome of an ownership-scoped write.
// A missing row and a row owned by another account are indistinguishable.
type MutationResult int

const (
	MutationNotFoundOrForbidden MutationResult = iota
	MutationApplied
)

// Applied reports whether the write touched a row.
func (r MutationResult) Applied() bool {
	return r == MutationApplied
}

func (r MutationResult) String() string {
	if r == MutationApplied {
		return "applied"
	}
	return "not_found_or_forbidden"
}

// ResultFromRowsAffected converts a command tag row count to a MutationResult.
func ResultFromRowsAffected(n int64) MutationResult {
	if n > 0 {
		return MutationApplied
	}
	return MutationNotFoundOrForbidden
}
