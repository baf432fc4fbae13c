package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"payment-lifecycle-engine/internal/adapters/analytics/clickhouse"
	"payment-lifecycle-engine/internal/core/domain"
)

func (c *cli) reports(ctx context.Context) (*clickhouse.Reports, error) {
	cfg, err := c.config()
	if err != nil {
		return nil, err
	}
	ch := cfg.ClickHouse
	return clickhouse.Open(ctx, ch.Addr, ch.Database, ch.User, ch.Password)
}

func newRiskReportsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "risk-reports",
		Short: "Query risk reports written by the risk auditor",
	}

	var (
		minLevel string
		limit    int
	)
	recent := &cobra.Command{
		Use:   "recent",
		Short: "List the newest reports at or above a risk level",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := c.reports(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			reports, err := store.Recent(cmd.Context(), domain.RiskLevel(minLevel), limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "TRANSACTION ID\tSTATUS\tAMOUNT\tSCORE\tLEVEL\tFACTORS\tOCCURRED AT")
			for _, r := range reports {
				fmt.Fprintf(w, "%s\t%s\t%d %s\t%d\t%s\t%s\t%s\n", r.TransactionID, r.Status, r.Amount, r.Currency,
					r.RiskScore, r.RiskLevel, strings.Join(r.Factors, ","), r.OccurredAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
	recent.Flags().StringVar(&minLevel, "min-level", string(domain.RiskHigh), "Lowest risk level to include (low, medium, high, very_high)")
	recent.Flags().IntVar(&limit, "limit", 20, "Maximum number of reports")

	var since time.Duration
	summary := &cobra.Command{
		Use:   "summary",
		Short: "Count reports per risk level",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := c.reports(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			counts, err := store.CountByLevel(cmd.Context(), time.Now().Add(-since))
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "LEVEL\tCOUNT")
			for _, lc := range counts {
				fmt.Fprintf(w, "%s\t%d\n", lc.Level, lc.Count)
			}
			return w.Flush()
		},
	}
	summary.Flags().DurationVar(&since, "since", 24*time.Hour, "Look-back window")

	cmd.AddCommand(recent, summary)
	return cmd
}
