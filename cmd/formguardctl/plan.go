package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"formguard/internal/billing"
)

func newPlanCmd(load appLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Inspect plans and change account plans",
	}

	cmd.AddCommand(
		newPlanListCmd(),
		newPlanSetCmd(load),
	)

	return cmd
}

func newPlanListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show the plan table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "PLAN\tFORMS\tSUBMISSIONS/MONTH\tAI INSIGHTS\tWEBHOOKS")
			for _, p := range billing.NewStaticPlanRegistry().Plans() {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%t\n",
					p.Plan, p.MaxForms, p.MaxSubmissionsPerMonth, p.AIInsights, p.Webhooks)
			}
			return w.Flush()
		},
	}
}

func newPlanSetCmd(load appLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "set <account-id> <plan>",
		Short: "Set an account's plan without going through checkout",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := billing.ParsePlan(args[1]); err != nil {
				return err
			}
			return withApp(cmd.Context(), load, func(a *app) error {
				account, err := a.plans.UpgradePlan(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "account %s is now on the %s plan\n", account.ID, account.Plan)
				return nil
			})
		},
	}
}
