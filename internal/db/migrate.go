package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver for goose
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// MigrationStatus describes one migration file and whether it has run.
type MigrationStatus struct {
	Version int64
	Source  string
	Applied bool
}

func newMigrationProvider(databaseURL string) (*goose.Provider, *sql.DB, error) {
	sqlDB, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("sql.Open: %w", err)
	}

	fsys, err := fs.Sub(embedMigrations, "migrations")
	if err != nil {
		sqlDB.Close()
		return nil, nil, fmt.Errorf("migrations fs: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectPostgres, sqlDB, fsys)
	if err != nil {
		sqlDB.Close()
		return nil, nil, fmt.Errorf("goose new provider: %w", err)
	}
	return provider, sqlDB, nil
}

// Migrate applies every pending migration.
func Migrate(ctx context.Context, databaseURL string, logger *slog.Logger) error {
	provider, sqlDB, err := newMigrationProvider(databaseURL)
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	for _, r := range results {
		logger.InfoContext(ctx, "migration applied",
			"version", r.Source.Version,
			"path", r.Source.Path,
			"duration", r.Duration,
		)
	}
	return nil
}

// MigrationStatuses reports the state of every embedded migration.
func MigrationStatuses(ctx context.Context, databaseURL string) ([]MigrationStatus, error) {
	provider, sqlDB, err := newMigrationProvider(databaseURL)
	if err != nil {
		return nil, err
	}
	defer sqlDB.Close()

	statuses, err := provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("goose status: %w", err)
	}
	out := make([]MigrationStatus, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, MigrationStatus{
			Version: s.Source.Version,
			Source:  s.Source.Path,
			Applied: s.State == goose.StateApplied,
		})
	}
	return out, nil
}
