package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheus_RecordRequest(t *testing.T) {
	p := NewPrometheus("formguard", prometheus.NewRegistry())

	p.RecordRequest("GET", "/v1/forms", "200", 10*time.Millisecond)
	p.RecordRequest("GET", "/v1/forms", "200", 20*time.Millisecond)
	p.RecordRequest("POST", "/v1/forms", "403", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(p.requests.WithLabelValues("GET", "/v1/forms", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.requests.WithLabelValues("POST", "/v1/forms", "403")))
	assert.Equal(t, 2, testutil.CollectAndCount(p.requestDuration))
}

func TestPrometheus_DomainCounters(t *testing.T) {
	p := NewPrometheus("formguard", prometheus.NewRegistry())

	p.RecordSubmission(SubmissionAccepted)
	p.RecordSubmission(SubmissionSpam)
	p.RecordSubmission(SubmissionAccepted)
	p.RecordInsight(InsightGenerated, time.Second)
	p.RecordInsight(InsightFailed, time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(p.submissions.WithLabelValues(SubmissionAccepted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.insights.WithLabelValues(InsightFailed)))
	require.NoError(t, p.Flush(context.Background()))
}

func TestPrometheus_Handler(t *testing.T) {
	p := NewPrometheus("formguard", prometheus.NewRegistry())
	p.RecordSubmission(SubmissionOverQuota)

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), `formguard_submissions_total{outcome="over_quota"} 1`)
}

func TestPrometheus_SeparateRegistriesDoNotCollide(t *testing.T) {
	assert.NotPanics(t, func() {
		NewPrometheus("formguard", prometheus.NewRegistry())
		NewPrometheus("formguard", prometheus.NewRegistry())
	})
}
