package billing

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"formguard/internal/types"
)

// FormCounter counts the forms an account owns.
type FormCounter interface {
	CountByAccount(ctx context.Context, accountID string) (int, error)
}

// SubmissionCounter counts submissions received across an account's forms.
type SubmissionCounter interface {
	CountForAccountSince(ctx context.Context, accountID string, since time.Time) (int, error)
}

// InsightCounter counts insights across an account's forms.
type InsightCounter interface {
	CountByAccount(ctx context.Context, accountID string) (int, error)
}

// UsageReporter aggregates usage against plan limits for the current period.
type UsageReporter struct {
	forms       FormCounter
	submissions SubmissionCounter
	insights    InsightCounter
	plans       PlanRegistry
	now         func() time.Time
}

// NewUsageReporter creates a UsageReporter.
func NewUsageReporter(forms FormCounter, submissions SubmissionCounter, insights InsightCounter, plans PlanRegistry) *UsageReporter {
	return &UsageReporter{
		forms:       forms,
		submissions: submissions,
		insights:    insights,
		plans:       plans,
		now:         time.Now,
	}
}

// MonthStart returns midnight UTC on the first day of t's month.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// CurrentUsage runs the three counts concurrently. The first failure cancels the rest.
func (r *UsageReporter) CurrentUsage(ctx context.Context, account *types.Account) (*types.UsageSummary, error) {
	periodStart := MonthStart(r.now())
	summary := &types.UsageSummary{
		Plan:        account.Plan,
		Limits:      r.plans.LimitsFor(account.Plan),
		PeriodStart: periodStart,
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := r.forms.CountByAccount(gCtx, account.ID)
		summary.Forms = n
		return err
	})
	g.Go(func() error {
		n, err := r.submissions.CountForAccountSince(gCtx, account.ID, periodStart)
		summary.SubmissionsThisMonth = n
		return err
	})
	g.Go(func() error {
		n, err := r.insights.CountByAccount(gCtx, account.ID)
		summary.Insights = n
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return summary, nil
}
