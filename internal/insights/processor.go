// Package insights generates AI summaries of recent form submissions.
//
// The API enqueues an InsightJob after checking the plan; the Processor
// re-checks the plan when the job runs because the account may have
// downgraded in between.
package insights

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"formguard/internal/billing"
	"formguard/internal/metrics"
	"formguard/internal/types"
)

const defaultMaxSubmissions = 50

// AccountStore loads the account that owns a job.
type AccountStore interface {
	GetByID(ctx context.Context, id string) (*types.Account, error)
}

// FormStore loads an owned form.
type FormStore interface {
	Get(ctx context.Context, formID, accountID string) (*types.Form, error)
}

// SubmissionLister returns a form's most recent submissions.
type SubmissionLister interface {
	ListByForm(ctx context.Context, formID, accountID string, limit int) ([]*types.Submission, error)
}

// InsightStore persists insights and counts them per account.
type InsightStore interface {
	Create(ctx context.Context, formID, summary string) (*types.Insight, error)
	CountByAccount(ctx context.Context, accountID string) (int, error)
}

// Summarizer turns submissions into prose.
type Summarizer interface {
	Summarize(ctx context.Context, formName string, submissions []*types.Submission) (string, error)
}

// Recorder receives one outcome per processed job.
type Recorder interface {
	RecordInsight(outcome string, duration time.Duration)
}

// ErrSkipped marks a job that was dropped without generating an insight.
// Skipped jobs are not retried.
var ErrSkipped = errors.New("insights: job skipped")

// Config holds the Processor's dependencies.
type Config struct {
	Accounts       AccountStore
	Forms          FormStore
	Submissions    SubmissionLister
	Insights       InsightStore
	Summarizer     Summarizer
	Plans          billing.PlanRegistry
	MaxSubmissions int
	Metrics        Recorder
	Logger         *slog.Logger
}

// Processor executes InsightJobs.
type Processor struct {
	accounts       AccountStore
	forms          FormStore
	submissions    SubmissionLister
	insights       InsightStore
	summarizer     Summarizer
	plans          billing.PlanRegistry
	maxSubmissions int
	metrics        Recorder
	logger         *slog.Logger
	now            func() time.Time
}

// NewProcessor creates a Processor.
func NewProcessor(cfg Config) *Processor {
	p := &Processor{
		accounts:       cfg.Accounts,
		forms:          cfg.Forms,
		submissions:    cfg.Submissions,
		insights:       cfg.Insights,
		summarizer:     cfg.Summarizer,
		plans:          cfg.Plans,
		maxSubmissions: cfg.MaxSubmissions,
		metrics:        cfg.Metrics,
		logger:         cfg.Logger,
		now:            time.Now,
	}
	if p.plans == nil {
		p.plans = billing.NewStaticPlanRegistry()
	}
	if p.maxSubmissions <= 0 {
		p.maxSubmissions = defaultMaxSubmissions
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Process runs one job. It returns ErrSkipped (wrapped) when the job no
// longer applies: the account or form is gone, the plan no longer allows
// insights, or there is nothing to summarize. Any other error is
// transient and the job should be retried.
func (p *Processor) Process(ctx context.Context, job types.InsightJob) (*types.Insight, error) {
	start := p.now()
	logger := p.logger.With(
		"form_id", job.FormID,
		"account_id", job.AccountID,
		"request_id", job.RequestID,
	)

	insight, err := p.process(ctx, job)
	switch {
	case err == nil:
		p.record(metrics.InsightGenerated, start)
		logger.InfoContext(ctx, "insight generated", "insight_id", insight.ID)
	case errors.Is(err, ErrSkipped):
		p.record(metrics.InsightSkipped, start)
		logger.WarnContext(ctx, "insight job skipped", "reason", err.Error())
	default:
		p.record(metrics.InsightFailed, start)
		logger.ErrorContext(ctx, "insight job failed", "error", err.Error())
	}
	return insight, err
}

func (p *Processor) process(ctx context.Context, job types.InsightJob) (*types.Insight, error) {
	account, err := p.accounts.GetByID(ctx, job.AccountID)
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	if account == nil {
		return nil, fmt.Errorf("%w: account not found", ErrSkipped)
	}

	used, err := p.insights.CountByAccount(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("count insights: %w", err)
	}
	if err := billing.CheckInsightQuota(p.plans.LimitsFor(account.Plan), used); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSkipped, err)
	}

	form, err := p.forms.Get(ctx, job.FormID, account.ID)
	if err != nil {
		return nil, fmt.Errorf("load form: %w", err)
	}
	if form == nil {
		return nil, fmt.Errorf("%w: form not found", ErrSkipped)
	}

	subs, err := p.submissions.ListByForm(ctx, form.ID, account.ID, p.maxSubmissions)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	if len(subs) == 0 {
		return nil, fmt.Errorf("%w: no submissions", ErrSkipped)
	}

	summary, err := p.summarizer.Summarize(ctx, form.Name, subs)
	if err != nil {
		return nil, fmt.Errorf("summarize: %w", err)
	}

	insight, err := p.insights.Create(ctx, form.ID, summary)
	if err != nil {
		return nil, fmt.Errorf("store insight: %w", err)
	}
	return insight, nil
}

func (p *Processor) record(outcome string, start time.Time) {
	if p.metrics != nil {
		p.metrics.RecordInsight(outcome, p.now().Sub(start))
	}
}
