package insights

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"formguard/internal/types"
)

// Inline runs jobs in-process instead of queueing them. It backs local
// development where no SQS queue is configured.
type Inline struct {
	processor *Processor
	logger    *slog.Logger
	now       func() time.Time
}

// NewInline wraps a Processor.
func NewInline(p *Processor, logger *slog.Logger) *Inline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Inline{processor: p, logger: logger, now: time.Now}
}

// Enqueue processes the job synchronously. Skipped jobs are not an error for
// the caller, matching queue semantics where the worker drops them.
func (d *Inline) Enqueue(ctx context.Context, accountID, formID string) (*types.InsightJob, error) {
	job := types.InsightJob{
		FormID:      formID,
		AccountID:   accountID,
		RequestedAt: d.now().UTC(),
		RequestID:   types.GetRequestID(ctx),
	}
	if _, err := d.processor.Process(ctx, job); err != nil && !errors.Is(err, ErrSkipped) {
		return nil, err
	}
	return &job, nil
}
