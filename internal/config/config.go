// Package config defines the process configuration for FormGuard binaries.
// Configuration is read once at startup and is immutable thereafter.
//
// Values are resolved in priority order:
//
//	OS Environment (Highest) -> Dotenv File (Lowest)
//
// A missing required value or invalid format fails startup.
package config

import (
	"time"

	"formguard/internal/types"
)

// SecretString is an alias for types.SecretString so config structs can be
// declared without importing types at every call site.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Sub-components receive only
// the subsets they need.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"formguard-api"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server        ServerConfig
	Database      DatabaseConfig
	AWS           AWSConfig
	Auth          AuthConfig
	Turnstile     TurnstileConfig
	Billing       BillingConfig
	Insights      InsightsConfig
	Webhooks      WebhookConfig
	RateLimit     RateLimitConfig
	Observability ObservabilityConfig
	Site          SiteConfig

	// Injected via ldflags, not Env
	Build BuildInfo
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string        `envconfig:"PORT" default:"8080"`
	RequestTimeout     time.Duration `envconfig:"REQUEST_TIMEOUT" default:"15s"`
	MaxBodyBytes       int64         `envconfig:"MAX_BODY_BYTES" default:"65536" validate:"min=1024"`
	CorsAllowedOrigins []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	DashboardURL       string        `envconfig:"DASHBOARD_URL" default:"http://localhost:3000" validate:"url"`
}

// DatabaseConfig holds connection and pool tuning parameters.
type DatabaseConfig struct {
	URL             SecretString  `envconfig:"DATABASE_URL" validate:"required"`
	MaxConns        int32         `envconfig:"DB_MAX_CONNS" default:"10" validate:"min=1"`
	MinConns        int32         `envconfig:"DB_MIN_CONNS" default:"1" validate:"min=0"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
}

// AWSConfig holds region and LocalStack settings shared by the SQS and
// CloudWatch clients.
type AWSConfig struct {
	Region      string `envconfig:"AWS_REGION" default:"us-east-1"`
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"` // LocalStack; empty in prod
}

// AuthConfig holds Stack Auth server credentials.
type AuthConfig struct {
	StackProjectID       string        `envconfig:"STACK_PROJECT_ID"`
	StackSecretServerKey SecretString  `envconfig:"STACK_SECRET_SERVER_KEY"`
	StackAPIURL          string        `envconfig:"STACK_API_URL" default:"https://api.stack-auth.com" validate:"url"`
	IdentityCacheTTL     time.Duration `envconfig:"IDENTITY_CACHE_TTL" default:"1m"`
}

// TurnstileConfig holds the captcha verification secret. A missing secret is
// not a startup error; every verification then fails with a configuration kind.
type TurnstileConfig struct {
	Secret    SecretString  `envconfig:"TURNSTILE_SECRET_KEY"`
	VerifyURL string        `envconfig:"TURNSTILE_VERIFY_URL" default:"https://challenges.cloudflare.com/turnstile/v0/siteverify" validate:"url"`
	Timeout   time.Duration `envconfig:"TURNSTILE_TIMEOUT" default:"5s"`
}

// BillingConfig holds Stripe credentials and per-plan price ids.
type BillingConfig struct {
	StripeSecretKey     SecretString `envconfig:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret SecretString `envconfig:"STRIPE_WEBHOOK_SECRET"`
	PriceIDPro          string       `envconfig:"STRIPE_PRICE_PRO"`
	PriceIDGrowth       string       `envconfig:"STRIPE_PRICE_GROWTH"`
}

// InsightsConfig holds the LLM endpoint and the insight job queue.
type InsightsConfig struct {
	LLMBaseURL     string       `envconfig:"LLM_BASE_URL" default:"https://api.openai.com" validate:"url"`
	LLMModel       string       `envconfig:"LLM_MODEL" default:"gpt-4o-mini"`
	LLMAPIKey      SecretString `envconfig:"LLM_API_KEY"`
	QueueURL       string       `envconfig:"INSIGHTS_QUEUE_URL" validate:"omitempty,url"`
	MaxSubmissions int          `envconfig:"INSIGHTS_MAX_SUBMISSIONS" default:"50" validate:"min=1,max=500"`
}

// WebhookConfig controls submission forwarding. An empty secret sends
// unsigned payloads.
type WebhookConfig struct {
	SigningSecret SecretString  `envconfig:"WEBHOOK_SIGNING_SECRET"`
	Timeout       time.Duration `envconfig:"WEBHOOK_TIMEOUT" default:"5s"`
	MaxRedirects  int           `envconfig:"WEBHOOK_MAX_REDIRECTS" default:"3" validate:"min=0,max=10"`
}

// RateLimitConfig selects the limiter backend and its budgets.
type RateLimitConfig struct {
	Backend         string `envconfig:"RATE_LIMIT_BACKEND" default:"memory" validate:"oneof=memory redis none"`
	RedisURL        string `envconfig:"REDIS_URL" validate:"required_if=Backend redis"`
	APIPerMinute    int    `envconfig:"RATE_LIMIT_API_PER_MINUTE" default:"120" validate:"min=1"`
	SubmitPerMinute int    `envconfig:"RATE_LIMIT_SUBMIT_PER_MINUTE" default:"20" validate:"min=1"`
}

// ObservabilityConfig selects the metrics backend.
type ObservabilityConfig struct {
	MetricsBackend  string `envconfig:"METRICS_BACKEND" default:"prometheus" validate:"oneof=none prometheus cloudwatch"`
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"FormGuard"`
}

// SiteConfig holds values used by the generated static artifacts.
type SiteConfig struct {
	BaseURL     string `envconfig:"SITE_BASE_URL" default:"https://formguard.dev" validate:"url"`
	Name        string `envconfig:"SITE_NAME" default:"FormGuard"`
	Description string `envconfig:"SITE_DESCRIPTION" default:"Form backend with spam protection, analytics and AI insights."`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates an environment value could not be parsed into its field type.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
	// ErrDotenv indicates an explicitly requested dotenv file could not be read.
	ErrDotenv ConfigErrorType = "DOTENV_FAILED"
)

// IsLocal reports whether the process runs in local development mode.
func (c *Config) IsLocal() bool {
	return c.Environment == "local"
}

// StripePriceIDs returns the configured Stripe price for each paid plan.
func (c *Config) StripePriceIDs() map[types.PlanName]string {
	prices := make(map[types.PlanName]string, 2)
	if c.Billing.PriceIDPro != "" {
		prices[types.PlanPro] = c.Billing.PriceIDPro
	}
	if c.Billing.PriceIDGrowth != "" {
		prices[types.PlanGrowth] = c.Billing.PriceIDGrowth
	}
	return prices
}
