// Package queue carries insight generation jobs from the API to the
// insights worker over SQS.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"formguard/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// InsightPublisher enqueues InsightJob messages on a single SQS queue.
type InsightPublisher struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
	now      func() time.Time
}

// NewInsightPublisher creates a publisher for queueURL.
func NewInsightPublisher(client SQSSender, queueURL string, logger *slog.Logger) *InsightPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &InsightPublisher{client: client, queueURL: queueURL, logger: logger, now: time.Now}
}

// Enqueue sends a job for formID. The request id from ctx travels with the
// message so worker logs can be correlated with the API call.
func (p *InsightPublisher) Enqueue(ctx context.Context, accountID, formID string) (*types.InsightJob, error) {
	job := types.InsightJob{
		FormID:      formID,
		AccountID:   accountID,
		RequestedAt: p.now().UTC(),
		RequestID:   types.GetRequestID(ctx),
	}

	body, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("queue: failed to marshal InsightJob: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"account_id": {
				DataType:    aws.String("String"),
				StringValue: aws.String(accountID),
			},
		},
	}

	out, err := p.client.SendMessage(ctx, input)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamQueue, "failed to enqueue insight job", err)
	}

	p.logger.InfoContext(ctx, "insight job enqueued",
		"queue_url", p.queueURL,
		"form_id", formID,
		"account_id", accountID,
		"message_id", aws.ToString(out.MessageId),
	)
	return &job, nil
}

// DecodeInsightJob parses a message body produced by Enqueue.
func DecodeInsightJob(body string) (types.InsightJob, error) {
	var job types.InsightJob
	if err := json.Unmarshal([]byte(body), &job); err != nil {
		return job, fmt.Errorf("queue: malformed InsightJob: %w", err)
	}
	if job.FormID == "" || job.AccountID == "" {
		return job, fmt.Errorf("queue: InsightJob missing form_id or account_id")
	}
	return job, nil
}
