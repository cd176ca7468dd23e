package main

import (
	"context"

	"github.com/spf13/cobra"
)

func newRootCmd(load appLoader) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "formguardctl",
		Short:         "Operator tooling for FormGuard",
		Long:          "formguardctl applies database migrations and changes account plans outside the billing flow.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.AddCommand(
		newMigrateCmd(load),
		newPlanCmd(load),
	)

	return rootCmd
}

// withApp loads the app, runs fn, and releases the connection pool.
func withApp(ctx context.Context, load appLoader, fn func(*app) error) error {
	a, err := load(ctx)
	if err != nil {
		return err
	}
	if a.close != nil {
		defer a.close()
	}
	return fn(a)
}
