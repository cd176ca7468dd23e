// Package main is the entrypoint for the Insights Worker Lambda function.
//
// The worker consumes insight jobs from the insights SQS queue and generates
// one summary per job. Failed records are reported through partial batch
// responses so SQS retries only those messages.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"

	"formguard/internal/config"
	"formguard/internal/db"
	"formguard/internal/external"
	"formguard/internal/insights"
	"formguard/internal/metrics"
)

// sqsHandler is the Lambda SQS handler signature.
type sqsHandler func(context.Context, events.SQSEvent) (events.SQSEventResponse, error)

// withFlush flushes buffered metrics after every batch. The sandbox may be
// frozen between invocations, so nothing is left pending.
func withFlush(next sqsHandler, recorder metrics.Recorder, logger *slog.Logger) sqsHandler {
	return func(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
		resp, err := next(ctx, ev)
		if flushErr := recorder.Flush(ctx); flushErr != nil {
			logger.Warn("metrics flush failed", "error", flushErr)
		}
		return resp, err
	}
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("insights worker initializing (cold start)", "version", cfg.Build.Version)

	ctx := context.Background()

	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:             cfg.Database.URL.Unmask(),
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
	})
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	recorder := metrics.Recorder(metrics.Nop{})
	if cfg.Observability.MetricsBackend == "cloudwatch" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			return fmt.Errorf("loading AWS config: %w", err)
		}
		if cfg.AWS.EndpointURL != "" {
			awsCfg.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
		recorder = metrics.NewCloudWatch(cloudwatch.NewFromConfig(awsCfg), cfg.Observability.MetricNamespace, logger)
	}

	completions := external.NewCompletionClient(&http.Client{Timeout: 60 * time.Second}, external.CompletionConfig{
		APIKey:  cfg.Insights.LLMAPIKey,
		Model:   cfg.Insights.LLMModel,
		BaseURL: cfg.Insights.LLMBaseURL,
		Logger:  logger,
	})

	processor := insights.NewProcessor(insights.Config{
		Accounts:       db.NewAccountRepository(pool),
		Forms:          db.NewFormRepository(pool),
		Submissions:    db.NewSubmissionRepository(pool),
		Insights:       db.NewInsightRepository(pool),
		Summarizer:     completions,
		MaxSubmissions: cfg.Insights.MaxSubmissions,
		Metrics:        recorder,
		Logger:         logger,
	})

	handler := insights.NewSQSHandler(processor, logger)
	lambda.Start(withFlush(handler.Handle, recorder, logger))
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
