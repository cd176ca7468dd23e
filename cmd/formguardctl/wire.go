package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"formguard/internal/billing"
	"formguard/internal/config"
	"formguard/internal/db"
	"formguard/internal/types"
)

// planChanger applies a plan to an account.
type planChanger interface {
	UpgradePlan(ctx context.Context, accountID, planName string) (*types.Account, error)
}

type app struct {
	migrate  func(ctx context.Context) error
	statuses func(ctx context.Context) ([]db.MigrationStatus, error)
	plans    planChanger
	close    func()
}

// appLoader builds the app on demand so commands that need no database
// (help, plan list) never connect.
type appLoader func(ctx context.Context) (*app, error)

func wireApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	url := cfg.Database.URL.Unmask()

	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:             url,
		MaxConns:        2,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	return &app{
		migrate: func(ctx context.Context) error {
			return db.Migrate(ctx, url, logger)
		},
		statuses: func(ctx context.Context) ([]db.MigrationStatus, error) {
			return db.MigrationStatuses(ctx, url)
		},
		plans: billing.NewService(db.NewAccountRepository(pool), nil, logger),
		close: pool.Close,
	}, nil
}
