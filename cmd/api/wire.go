package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"formguard/internal/api/handlers"
	"formguard/internal/auth"
	"formguard/internal/billing"
	"formguard/internal/config"
	"formguard/internal/core"
	"formguard/internal/db"
	"formguard/internal/external"
	"formguard/internal/insights"
	"formguard/internal/metrics"
	"formguard/internal/queue"
	"formguard/internal/ratelimit"
	"formguard/internal/security"
	"formguard/internal/site"
	"formguard/internal/webhook"
)

// dependencies are the process-level resources the router is built on.
// Tests substitute fakes for each of them.
type dependencies struct {
	DB         db.DBTX
	Ping       func(context.Context) error
	HTTPClient *http.Client
	Webhooks   *http.Client // must refuse private destinations
	AWS        *aws.Config // nil unless a queue or CloudWatch is configured
	RateLimit  core.RateLimitStore
}

// loadAWSConfig resolves credentials from the default chain. EndpointURL
// points every client at LocalStack in development.
func loadAWSConfig(ctx context.Context, cfg config.AWSConfig) (*aws.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	if cfg.EndpointURL != "" {
		awsCfg.BaseEndpoint = aws.String(cfg.EndpointURL)
	}
	return &awsCfg, nil
}

// needsAWS reports whether any configured component talks to AWS.
func needsAWS(cfg *config.Config) bool {
	return cfg.Insights.QueueURL != "" || cfg.Observability.MetricsBackend == "cloudwatch"
}

// newRateLimitStore selects the limiter backend. "none" disables limiting.
func newRateLimitStore(ctx context.Context, cfg config.RateLimitConfig, logger *slog.Logger) (core.RateLimitStore, func(context.Context) error, error) {
	switch cfg.Backend {
	case "redis":
		client, err := ratelimit.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("rate limiting backed by redis")
		return ratelimit.NewRedisStore(client, "formguard:rl:"), func(context.Context) error { return client.Close() }, nil
	case "none":
		return nil, nil, nil
	default:
		return ratelimit.NewMemoryStore(), nil, nil
	}
}

// newMetrics selects the metrics backend. The returned handler is non-nil
// only for Prometheus.
func newMetrics(cfg config.ObservabilityConfig, awsCfg *aws.Config, logger *slog.Logger) (metrics.Recorder, http.Handler) {
	switch cfg.MetricsBackend {
	case "prometheus":
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		p := metrics.NewPrometheus(strings.ToLower(cfg.MetricNamespace), reg)
		return p, p.Handler()
	case "cloudwatch":
		if awsCfg == nil {
			logger.Warn("cloudwatch metrics requested without AWS config; metrics disabled")
			return metrics.Nop{}, nil
		}
		return metrics.NewCloudWatch(cloudwatch.NewFromConfig(*awsCfg), cfg.MetricNamespace, logger), nil
	default:
		return metrics.Nop{}, nil
	}
}

// buildServer wires repositories, upstream clients, and handlers into a
// mounted core.Server.
func buildServer(cfg *config.Config, deps dependencies, logger *slog.Logger) (*core.Server, metrics.Recorder, error) {
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("creating server: %w", err)
	}

	httpClient := deps.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	accounts := db.NewAccountRepository(deps.DB)
	keyRepo := db.NewAPIKeyRepository(deps.DB)
	forms := db.NewFormRepository(deps.DB)
	submissions := db.NewSubmissionRepository(deps.DB)
	insightRepo := db.NewInsightRepository(deps.DB)
	plans := billing.NewStaticPlanRegistry()

	recorder, metricsHandler := newMetrics(cfg.Observability, deps.AWS, logger)

	stackAuth := external.NewStackAuthClient(httpClient, external.StackAuthConfig{
		ProjectID:       cfg.Auth.StackProjectID,
		SecretServerKey: cfg.Auth.StackSecretServerKey,
		BaseURL:         cfg.Auth.StackAPIURL,
		Logger:          logger,
	})
	turnstile := external.NewTurnstileVerifier(httpClient, external.TurnstileConfig{
		Secret:    cfg.Turnstile.Secret,
		VerifyURL: cfg.Turnstile.VerifyURL,
		Timeout:   cfg.Turnstile.Timeout,
		Logger:    logger,
	})
	stripeClient := external.NewStripeClient(httpClient, external.StripeClientConfig{
		SecretKey: cfg.Billing.StripeSecretKey,
		PriceIDs:  cfg.StripePriceIDs(),
		Logger:    logger,
	})
	completions := external.NewCompletionClient(httpClient, external.CompletionConfig{
		APIKey:  cfg.Insights.LLMAPIKey,
		Model:   cfg.Insights.LLMModel,
		BaseURL: cfg.Insights.LLMBaseURL,
		Logger:  logger,
	})

	keys := auth.NewKeyManager(keyRepo, auth.CryptoTokenGenerator{}, logger)
	identities := auth.NewIdentityResolver(stackAuth, accounts, cfg.Auth.IdentityCacheTTL, logger)
	billingService := billing.NewService(accounts, stripeClient, logger)
	usage := billing.NewUsageReporter(forms, submissions, insightRepo, plans)

	var verifier handlers.WebhookVerifier
	if !cfg.Billing.StripeWebhookSecret.IsZero() {
		verifier = external.NewStripeVerifier(cfg.Billing.StripeWebhookSecret)
	}

	var insightQueue handlers.InsightQueue
	if cfg.Insights.QueueURL != "" && deps.AWS != nil {
		insightQueue = queue.NewInsightPublisher(sqs.NewFromConfig(*deps.AWS), cfg.Insights.QueueURL, logger)
	} else {
		processor := insights.NewProcessor(insights.Config{
			Accounts:       accounts,
			Forms:          forms,
			Submissions:    submissions,
			Insights:       insightRepo,
			Summarizer:     completions,
			Plans:          plans,
			MaxSubmissions: cfg.Insights.MaxSubmissions,
			Metrics:        recorder,
			Logger:         logger,
		})
		insightQueue = insights.NewInline(processor, logger)
		logger.Info("insight jobs run inline; no queue configured")
	}

	webhookClient := deps.Webhooks
	if webhookClient == nil {
		webhookClient = security.NewGuard().NewHTTPClient(cfg.Webhooks.Timeout, cfg.Webhooks.MaxRedirects)
	}
	forwarder := webhook.NewForwarder(webhookClient, cfg.Webhooks.SigningSecret, logger)

	articles, err := site.LoadArticles()
	if err != nil {
		return nil, nil, err
	}
	siteArtifacts := site.New(cfg.Site, articles)

	formHandler := handlers.NewFormHandler(forms, plans, srv.Validator, handlers.RandomEndpointID, logger)
	submissionHandler := handlers.NewSubmissionHandler(handlers.SubmissionHandlerConfig{
		Forms:        forms,
		Submissions:  submissions,
		Accounts:     accounts,
		Captcha:      turnstile,
		Plans:        plans,
		Metrics:      recorder,
		Forwarder:    forwarder,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		Logger:       logger,
	})
	apiKeyHandler := handlers.NewAPIKeyHandler(keys, srv.Validator, logger)
	billingHandler := handlers.NewBillingHandler(billingService, plans, verifier, srv.Validator, cfg.Server.DashboardURL, logger)
	insightHandler := handlers.NewInsightHandler(forms, insightRepo, insightQueue, plans, logger)
	accountHandler := handlers.NewAccountHandler(identities, accounts, usage, plans, logger)

	srv.Authenticator = auth.NewAuthenticator(keys, identities, accounts, logger)
	srv.RateLimitStore = deps.RateLimit
	srv.Metrics = recorder
	srv.MetricsHandler = metricsHandler
	if deps.Ping != nil {
		srv.HealthProbes = append(srv.HealthProbes, core.NewPingProbe("database", deps.Ping))
	}

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		accountHandler.RegisterRoutes,
		formHandler.RegisterRoutes,
		submissionHandler.RegisterRoutes,
		insightHandler.RegisterRoutes,
		apiKeyHandler.RegisterRoutes,
		billingHandler.RegisterRoutes,
	)
	srv.PublicRouteRegistrars = append(srv.PublicRouteRegistrars,
		siteArtifacts.RegisterRoutes,
		billingHandler.RegisterPublicRoutes,
		func(r chi.Router) { submissionHandler.RegisterPublicRoutes(r, srv.IPRateLimit) },
	)

	srv.MountRoutes()
	return srv, recorder, nil
}
