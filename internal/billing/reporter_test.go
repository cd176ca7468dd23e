package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formguard/internal/types"
)

type countFn func(ctx context.Context, accountID string) (int, error)

func (f countFn) CountByAccount(ctx context.Context, accountID string) (int, error) {
	return f(ctx, accountID)
}

type sinceFn func(ctx context.Context, accountID string, since time.Time) (int, error)

func (f sinceFn) CountForAccountSince(ctx context.Context, accountID string, since time.Time) (int, error) {
	return f(ctx, accountID, since)
}

func TestMonthStart(t *testing.T) {
	in := time.Date(2026, time.March, 17, 15, 4, 5, 0, time.FixedZone("X", 3600))
	assert.Equal(t, time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC), MonthStart(in))
}

func TestUsageReporter_CurrentUsage(t *testing.T) {
	var gotSince time.Time
	r := NewUsageReporter(
		countFn(func(_ context.Context, id string) (int, error) {
			assert.Equal(t, "acct-1", id)
			return 2, nil
		}),
		sinceFn(func(_ context.Context, _ string, since time.Time) (int, error) {
			gotSince = since
			return 40, nil
		}),
		countFn(func(context.Context, string) (int, error) { return 3, nil }),
		NewStaticPlanRegistry(),
	)
	r.now = func() time.Time { return time.Date(2026, time.May, 20, 0, 0, 0, 0, time.UTC) }

	summary, err := r.CurrentUsage(context.Background(), &types.Account{ID: "acct-1", Plan: types.PlanPro})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Forms)
	assert.Equal(t, 40, summary.SubmissionsThisMonth)
	assert.Equal(t, 3, summary.Insights)
	assert.Equal(t, types.PlanPro, summary.Limits.Plan)
	assert.Equal(t, time.Date(2026, time.May, 1, 0, 0, 0, 0, time.UTC), gotSince)
}

func TestUsageReporter_PropagatesError(t *testing.T) {
	boom := errors.New("boom")
	r := NewUsageReporter(
		countFn(func(context.Context, string) (int, error) { return 0, boom }),
		sinceFn(func(context.Context, string, time.Time) (int, error) { return 0, nil }),
		countFn(func(context.Context, string) (int, error) { return 0, nil }),
		NewStaticPlanRegistry(),
	)

	_, err := r.CurrentUsage(context.Background(), &types.Account{ID: "acct-1", Plan: types.PlanFree})
	assert.ErrorIs(t, err, boom)
}
