package billing

import (
	"fmt"

	"formguard/internal/types"
)

// CheckFormQuota returns an error when an account already holds as many forms
// as its plan allows.
func CheckFormQuota(limits types.PlanLimits, currentForms int) error {
	if limits.MaxForms.Allows(currentForms) {
		return nil
	}
	max, _ := limits.MaxForms.Value()
	return types.NewAppErrorWithDetails(
		types.ErrCodeLimitForms,
		fmt.Sprintf("the %s plan allows %d form(s); upgrade to create more", limits.Label, max),
		nil,
		map[string]any{"limit": max, "current": currentForms, "plan": limits.Plan},
	)
}

// CheckSubmissionQuota returns an error when the monthly submission ceiling is reached.
func CheckSubmissionQuota(limits types.PlanLimits, submissionsThisMonth int) error {
	if limits.MaxSubmissionsPerMonth.Allows(submissionsThisMonth) {
		return nil
	}
	max, _ := limits.MaxSubmissionsPerMonth.Value()
	return types.NewAppErrorWithDetails(
		types.ErrCodeLimitSubmissions,
		"monthly submission limit reached",
		nil,
		map[string]any{"limit": max, "current": submissionsThisMonth, "plan": limits.Plan},
	)
}

// CheckInsightQuota gates insight generation. The plan must include AI
// insights, and the account's insight count is held to the monthly
// submission ceiling.
func CheckInsightQuota(limits types.PlanLimits, insightCount int) error {
	if !limits.AIInsights {
		return types.NewAppErrorWithDetails(
			types.ErrCodePermissionPlanFeature,
			fmt.Sprintf("AI insights are not included in the %s plan", limits.Label),
			nil,
			map[string]any{"feature": "ai_insights", "plan": limits.Plan},
		)
	}
	if limits.MaxSubmissionsPerMonth.Allows(insightCount) {
		return nil
	}
	max, _ := limits.MaxSubmissionsPerMonth.Value()
	return types.NewAppErrorWithDetails(
		types.ErrCodeLimitInsights,
		"insight limit reached",
		nil,
		map[string]any{"limit": max, "current": insightCount, "plan": limits.Plan},
	)
}

// CheckWebhookFeature rejects webhook configuration on plans without webhooks.
func CheckWebhookFeature(limits types.PlanLimits, settings types.FormSettings) error {
	if settings.WebhookURL == "" || limits.Webhooks {
		return nil
	}
	return types.NewAppErrorWithDetails(
		types.ErrCodePermissionPlanFeature,
		fmt.Sprintf("webhooks are not included in the %s plan", limits.Label),
		nil,
		map[string]any{"feature": "webhooks", "plan": limits.Plan},
	)
}
