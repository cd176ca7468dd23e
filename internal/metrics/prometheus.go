package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus exposes metrics for scraping on /metrics.
type Prometheus struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	submissions     *prometheus.CounterVec
	insights        *prometheus.CounterVec
	insightDuration prometheus.Histogram
	gatherer        prometheus.Gatherer
}

// NewPrometheus registers FormGuard's collectors on reg. Pass a fresh
// prometheus.NewRegistry() in tests to avoid duplicate registration.
func NewPrometheus(namespace string, reg *prometheus.Registry) *Prometheus {
	factory := promauto.With(reg)
	return &Prometheus{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
		submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Hosted form submissions by outcome",
		}, []string{"outcome"}),
		insights: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "insight_jobs_total",
			Help:      "Insight generation jobs by outcome",
		}, []string{"outcome"}),
		insightDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "insight_job_duration_seconds",
			Help:      "Time spent generating one insight",
			Buckets:   []float64{.5, 1, 2.5, 5, 10, 20, 40},
		}),
		gatherer: reg,
	}
}

func (p *Prometheus) RecordRequest(method, route, status string, duration time.Duration) {
	p.requests.WithLabelValues(method, route, status).Inc()
	p.requestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func (p *Prometheus) RecordSubmission(outcome string) {
	p.submissions.WithLabelValues(outcome).Inc()
}

func (p *Prometheus) RecordInsight(outcome string, duration time.Duration) {
	p.insights.WithLabelValues(outcome).Inc()
	if outcome == InsightGenerated {
		p.insightDuration.Observe(duration.Seconds())
	}
}

// Flush is a no-op; Prometheus is pull based.
func (p *Prometheus) Flush(context.Context) error { return nil }

// Handler serves the exposition format for the registry.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.gatherer, promhttp.HandlerOpts{})
}

var _ Recorder = (*Prometheus)(nil)
