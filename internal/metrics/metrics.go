// Package metrics records API and pipeline telemetry to Prometheus or
// CloudWatch. Both backends satisfy Recorder.
package metrics

import (
	"context"
	"time"
)

// Submission outcomes recorded on the hosted endpoint.
const (
	SubmissionAccepted      = "accepted"
	SubmissionSpam          = "spam"
	SubmissionCaptchaFailed = "captcha_failed"
	SubmissionOverQuota     = "over_quota"
	SubmissionRejected      = "rejected"
)

// Insight job outcomes.
const (
	InsightGenerated = "generated"
	InsightSkipped   = "skipped"
	InsightFailed    = "failed"
)

// Recorder is the full telemetry surface used by FormGuard binaries.
type Recorder interface {
	RecordRequest(method, route, status string, duration time.Duration)
	RecordSubmission(outcome string)
	RecordInsight(outcome string, duration time.Duration)
	Flush(ctx context.Context) error
}

// Nop discards everything. It backs METRICS_BACKEND=none.
type Nop struct{}

func (Nop) RecordRequest(string, string, string, time.Duration) {}
func (Nop) RecordSubmission(string)                             {}
func (Nop) RecordInsight(string, time.Duration)                 {}
func (Nop) Flush(context.Context) error                         { return nil }

var _ Recorder = Nop{}
