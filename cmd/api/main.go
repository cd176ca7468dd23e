// Package main is the entry point for the FormGuard API server.
//
// The same binary serves plain HTTP (local and container deployments) and
// Lambda function URL events. Lambda mode is selected when the Lambda
// runtime environment variables are present.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"formguard/internal/config"
	"formguard/internal/core"
	"formguard/internal/db"
	"formguard/internal/metrics"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("formguard API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

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

	if cfg.IsLocal() {
		if err := db.Migrate(ctx, cfg.Database.URL.Unmask(), logger); err != nil {
			pool.Close()
			return fmt.Errorf("applying migrations: %w", err)
		}
	}

	deps := dependencies{
		DB:   pool,
		Ping: pool.Ping,
	}

	if needsAWS(cfg) {
		awsCfg, err := loadAWSConfig(ctx, cfg.AWS)
		if err != nil {
			pool.Close()
			return err
		}
		deps.AWS = awsCfg
	}

	limiter, closeLimiter, err := newRateLimitStore(ctx, cfg.RateLimit, logger)
	if err != nil {
		pool.Close()
		return fmt.Errorf("creating rate limiter: %w", err)
	}
	deps.RateLimit = limiter

	srv, recorder, err := buildServer(cfg, deps, logger)
	if err != nil {
		pool.Close()
		return err
	}

	srv.OnShutdown(func(context.Context) error {
		pool.Close()
		return nil
	})
	if closeLimiter != nil {
		srv.OnShutdown(closeLimiter)
	}
	srv.OnShutdown(recorder.Flush)

	if isLambdaEnvironment() {
		return runLambda(srv, recorder, logger)
	}

	return runHTTPServer(srv, cfg, logger)
}

// isLambdaEnvironment returns true if the process is running inside AWS Lambda.
func isLambdaEnvironment() bool {
	_, hasRuntimeAPI := os.LookupEnv("AWS_LAMBDA_RUNTIME_API")
	_, hasServerPort := os.LookupEnv("_LAMBDA_SERVER_PORT")
	return hasRuntimeAPI || hasServerPort
}

// runLambda serves function URL events through the chi router. Buffered
// metrics are flushed after every invocation since the sandbox may freeze.
func runLambda(srv *core.Server, recorder metrics.Recorder, logger *slog.Logger) error {
	adapter := core.LambdaHandler(srv.Handler())
	logger.Info("starting in Lambda mode")

	lambda.Start(func(ctx context.Context, event events.LambdaFunctionURLRequest) (events.LambdaFunctionURLResponse, error) {
		resp, err := adapter(ctx, event)
		if flushErr := recorder.Flush(ctx); flushErr != nil {
			logger.Warn("metrics flush failed", "error", flushErr)
		}
		return resp, err
	})
	return nil
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server resource shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
