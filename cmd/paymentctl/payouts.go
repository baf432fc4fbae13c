package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"payment-lifecycle-engine/internal/adapters/storage/postgres"
)

func newPayoutsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payouts",
		Short: "Payout scheduler diagnostics",
	}

	var limit int
	due := &cobra.Command{
		Use:   "due",
		Short: "List failed payouts whose next retry is due",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.config()
			if err != nil {
				return err
			}
			store, err := postgres.NewStore(cmd.Context(), cfg.Postgres.DSN, postgres.PoolOptions{MaxConns: 2})
			if err != nil {
				return err
			}
			defer store.Close()

			payouts, err := store.ListRetryablePayouts(cmd.Context(), time.Now().UTC(), limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "PAYOUT ID\tBANK ACCOUNT\tAMOUNT\tRETRIES\tFAILURE\tNEXT RETRY")
			for _, p := range payouts {
				next := "now"
				if p.NextRetryAt != nil {
					next = p.NextRetryAt.Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%s\t%s\t%d %s\t%d/%d\t%s %s\t%s\n", p.ID, p.BankAccountID, p.Amount, p.Currency,
					p.RetryCount, p.MaxRetries, p.FailureCode, p.FailureReason, next)
			}
			return w.Flush()
		},
	}
	due.Flags().IntVar(&limit, "limit", 50, "Maximum number of payouts")

	cmd.AddCommand(due)
	return cmd
}
