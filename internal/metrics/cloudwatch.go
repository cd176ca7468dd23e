package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// CloudWatch metric names and dimensions.
const (
	MetricRequestCount    = "RequestCount"
	MetricRequestLatency  = "RequestLatency"
	MetricSubmissionCount = "SubmissionCount"
	MetricInsightJobCount = "InsightJobCount"
	MetricInsightLatency  = "InsightLatency"

	DimMethod  = "Method"
	DimRoute   = "Route"
	DimStatus  = "Status"
	DimOutcome = "Outcome"
)

// PutMetricData accepts at most 1000 datums per call; flush well below that.
const defaultCloudWatchBatch = 20

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatch buffers datums in memory and publishes them in batches.
// Callers must Flush before the process (or Lambda invocation) ends.
type CloudWatch struct {
	client    CloudWatchClient
	namespace string
	batchSize int
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	pending []cwtypes.MetricDatum
}

// NewCloudWatch creates a CloudWatch recorder publishing to namespace.
func NewCloudWatch(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatch {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatch{
		client:    client,
		namespace: namespace,
		batchSize: defaultCloudWatchBatch,
		logger:    logger,
		now:       time.Now,
	}
}

func (c *CloudWatch) RecordRequest(method, route, status string, duration time.Duration) {
	dims := []cwtypes.Dimension{dim(DimMethod, method), dim(DimRoute, route), dim(DimStatus, status)}
	c.add(
		c.datum(MetricRequestCount, 1, cwtypes.StandardUnitCount, dims),
		c.datum(MetricRequestLatency, float64(duration.Milliseconds()), cwtypes.StandardUnitMilliseconds, dims[:2]),
	)
}

func (c *CloudWatch) RecordSubmission(outcome string) {
	c.add(c.datum(MetricSubmissionCount, 1, cwtypes.StandardUnitCount, []cwtypes.Dimension{dim(DimOutcome, outcome)}))
}

func (c *CloudWatch) RecordInsight(outcome string, duration time.Duration) {
	datums := []cwtypes.MetricDatum{
		c.datum(MetricInsightJobCount, 1, cwtypes.StandardUnitCount, []cwtypes.Dimension{dim(DimOutcome, outcome)}),
	}
	if outcome == InsightGenerated {
		datums = append(datums, c.datum(MetricInsightLatency, float64(duration.Milliseconds()), cwtypes.StandardUnitMilliseconds, nil))
	}
	c.add(datums...)
}

// Flush publishes everything buffered so far. A failed batch is logged and
// dropped; metrics are best effort.
func (c *CloudWatch) Flush(ctx context.Context) error {
	c.mu.Lock()
	batch := c.pending
	c.pending = nil
	c.mu.Unlock()

	return c.publish(ctx, batch)
}

// Pending reports how many datums await publication.
func (c *CloudWatch) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *CloudWatch) add(datums ...cwtypes.MetricDatum) {
	c.mu.Lock()
	c.pending = append(c.pending, datums...)
	var full []cwtypes.MetricDatum
	if len(c.pending) >= c.batchSize {
		full = c.pending
		c.pending = nil
	}
	c.mu.Unlock()

	if full != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.publish(ctx, full)
	}
}

func (c *CloudWatch) publish(ctx context.Context, batch []cwtypes.MetricDatum) error {
	if len(batch) == 0 {
		return nil
	}
	_, err := c.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(c.namespace),
		MetricData: batch,
	})
	if err != nil {
		c.logger.Error("failed to publish metrics",
			"error", err.Error(),
			"datums", len(batch),
			"namespace", c.namespace,
		)
	}
	return err
}

func (c *CloudWatch) datum(name string, value float64, unit cwtypes.StandardUnit, dims []cwtypes.Dimension) cwtypes.MetricDatum {
	return cwtypes.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(value),
		Unit:       unit,
		Timestamp:  aws.Time(c.now()),
		Dimensions: dims,
	}
}

func dim(name, value string) cwtypes.Dimension {
	return cwtypes.Dimension{Name: aws.String(name), Value: aws.String(value)}
}

var _ Recorder = (*CloudWatch)(nil)
