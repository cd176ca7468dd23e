package billing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formguard/internal/types"
)

func requireCode(t *testing.T, err error, code types.ErrorCode) {
	t.Helper()
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr), "expected *types.AppError, got %v", err)
	assert.Equal(t, code, appErr.Code)
}

func TestCheckFormQuota(t *testing.T) {
	free := LimitsFor(types.PlanFree)

	assert.NoError(t, CheckFormQuota(free, 0))
	requireCode(t, CheckFormQuota(free, 1), types.ErrCodeLimitForms)

	assert.NoError(t, CheckFormQuota(LimitsFor(types.PlanGrowth), 50_000))
}

func TestCheckSubmissionQuota(t *testing.T) {
	free := LimitsFor(types.PlanFree)

	assert.NoError(t, CheckSubmissionQuota(free, 99))
	requireCode(t, CheckSubmissionQuota(free, 100), types.ErrCodeLimitSubmissions)
}

func TestCheckInsightQuota(t *testing.T) {
	t.Run("free plan lacks the feature", func(t *testing.T) {
		requireCode(t, CheckInsightQuota(LimitsFor(types.PlanFree), 0), types.ErrCodePermissionPlanFeature)
	})

	t.Run("pro is bounded by the monthly submission ceiling", func(t *testing.T) {
		pro := LimitsFor(types.PlanPro)
		assert.NoError(t, CheckInsightQuota(pro, 4999))
		requireCode(t, CheckInsightQuota(pro, 5000), types.ErrCodeLimitInsights)
	})

	t.Run("growth is unlimited", func(t *testing.T) {
		assert.NoError(t, CheckInsightQuota(LimitsFor(types.PlanGrowth), 1_000_000))
	})
}

func TestCheckWebhookFeature(t *testing.T) {
	withHook := types.FormSettings{WebhookURL: "https://hooks.example.com/x"}

	requireCode(t, CheckWebhookFeature(LimitsFor(types.PlanFree), withHook), types.ErrCodePermissionPlanFeature)
	assert.NoError(t, CheckWebhookFeature(LimitsFor(types.PlanFree), types.FormSettings{}))
	assert.NoError(t, CheckWebhookFeature(LimitsFor(types.PlanPro), withHook))
}
