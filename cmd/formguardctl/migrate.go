package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newMigrateCmd(load appLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(
		newMigrateUpCmd(load),
		newMigrateStatusCmd(load),
	)

	return cmd
}

func newMigrateUpCmd(load appLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), load, func(a *app) error {
				if err := a.migrate(cmd.Context()); err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return nil
			})
		},
	}
}

func newMigrateStatusCmd(load appLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they have been applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), load, func(a *app) error {
				statuses, err := a.statuses(cmd.Context())
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				_, _ = fmt.Fprintln(w, "VERSION\tSTATE\tSOURCE")
				for _, s := range statuses {
					state := "pending"
					if s.Applied {
						state = "applied"
					}
					_, _ = fmt.Fprintf(w, "%d\t%s\t%s\n", s.Version, state, s.Source)
				}
				return w.Flush()
			})
		},
	}
}
