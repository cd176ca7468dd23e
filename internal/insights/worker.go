package insights

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"

	"formguard/internal/queue"
)

// SQSHandler adapts a Processor to the Lambda SQS event source with
// partial batch responses.
type SQSHandler struct {
	processor *Processor
	logger    *slog.Logger
}

// NewSQSHandler creates an SQSHandler.
func NewSQSHandler(p *Processor, logger *slog.Logger) *SQSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQSHandler{processor: p, logger: logger}
}

// Handle processes each record independently. Only transient failures are
// reported back to SQS for redelivery; malformed and skipped jobs are acked.
func (h *SQSHandler) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	response := events.SQSEventResponse{}

	for _, record := range ev.Records {
		job, err := queue.DecodeInsightJob(record.Body)
		if err != nil {
			h.logger.ErrorContext(ctx, "dropping malformed insight job",
				"message_id", record.MessageId,
				"error", err.Error(),
			)
			continue
		}

		if _, err := h.processor.Process(ctx, job); err != nil && !errors.Is(err, ErrSkipped) {
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
			)
		}
	}

	return response, nil
}
