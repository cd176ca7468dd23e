package metrics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCloudWatchClient struct {
	mu    sync.Mutex
	calls []*cloudwatch.PutMetricDataInput
	err   error
}

func (m *mockCloudWatchClient) PutMetricData(_ context.Context, params *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, params)
	return &cloudwatch.PutMetricDataOutput{}, m.err
}

func (m *mockCloudWatchClient) Calls() []*cloudwatch.PutMetricDataInput {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*cloudwatch.PutMetricDataInput(nil), m.calls...)
}

func dimsOf(d cwtypes.MetricDatum) map[string]string {
	out := make(map[string]string, len(d.Dimensions))
	for _, dim := range d.Dimensions {
		out[aws.ToString(dim.Name)] = aws.ToString(dim.Value)
	}
	return out
}

func TestCloudWatch_RecordRequestBuffersUntilFlush(t *testing.T) {
	client := &mockCloudWatchClient{}
	cw := NewCloudWatch(client, "FormGuard", nil)

	cw.RecordRequest("GET", "/v1/forms", "200", 42*time.Millisecond)
	assert.Empty(t, client.Calls())
	assert.Equal(t, 2, cw.Pending())

	require.NoError(t, cw.Flush(context.Background()))
	calls := client.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "FormGuard", aws.ToString(calls[0].Namespace))
	require.Len(t, calls[0].MetricData, 2)

	count := calls[0].MetricData[0]
	assert.Equal(t, MetricRequestCount, aws.ToString(count.MetricName))
	assert.Equal(t, 1.0, aws.ToFloat64(count.Value))
	assert.Equal(t, map[string]string{DimMethod: "GET", DimRoute: "/v1/forms", DimStatus: "200"}, dimsOf(count))

	latency := calls[0].MetricData[1]
	assert.Equal(t, MetricRequestLatency, aws.ToString(latency.MetricName))
	assert.Equal(t, 42.0, aws.ToFloat64(latency.Value))
	assert.Equal(t, cwtypes.StandardUnitMilliseconds, latency.Unit)
	assert.NotContains(t, dimsOf(latency), DimStatus)

	assert.Zero(t, cw.Pending())
}

func TestCloudWatch_FlushesWhenBatchFull(t *testing.T) {
	client := &mockCloudWatchClient{}
	cw := NewCloudWatch(client, "FormGuard", nil)
	cw.batchSize = 3

	cw.RecordSubmission("accepted")
	cw.RecordSubmission("spam")
	assert.Empty(t, client.Calls())
	cw.RecordSubmission("accepted")

	calls := client.Calls()
	require.Len(t, calls, 1)
	assert.Len(t, calls[0].MetricData, 3)
	assert.Equal(t, "spam", dimsOf(calls[0].MetricData[1])[DimOutcome])
}

func TestCloudWatch_InsightLatencyOnlyWhenGenerated(t *testing.T) {
	client := &mockCloudWatchClient{}
	cw := NewCloudWatch(client, "FormGuard", nil)

	cw.RecordInsight(InsightSkipped, time.Second)
	assert.Equal(t, 1, cw.Pending())
	cw.RecordInsight(InsightGenerated, 2*time.Second)
	assert.Equal(t, 3, cw.Pending())
}

func TestCloudWatch_FlushErrorDropsBatch(t *testing.T) {
	client := &mockCloudWatchClient{err: errors.New("throttled")}
	cw := NewCloudWatch(client, "FormGuard", nil)

	cw.RecordSubmission("accepted")
	assert.Error(t, cw.Flush(context.Background()))
	assert.Zero(t, cw.Pending())
}

func TestCloudWatch_FlushEmptyIsNoop(t *testing.T) {
	client := &mockCloudWatchClient{}
	require.NoError(t, NewCloudWatch(client, "FormGuard", nil).Flush(context.Background()))
	assert.Empty(t, client.Calls())
}
