package main

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"payment-lifecycle-engine/internal/card"
	"payment-lifecycle-engine/internal/core/domain"
	"payment-lifecycle-engine/internal/fees"
)

func newCardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "card",
		Short: "Card data utilities",
	}

	var expiry, cvv string
	validate := &cobra.Command{
		Use:   "validate [card-number]",
		Short: "Run the Luhn, network, expiry and CVV rules against a card",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res := card.NewValidator(nil).Validate(domain.CardData{
				CardNumber: args[0],
				ExpiryDate: expiry,
				CVV:        cvv,
			})
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "VALID\t%t\n", res.OK)
			fmt.Fprintf(w, "NETWORK\t%s\n", res.Network)
			fmt.Fprintf(w, "BIN\t%s\n", res.BIN)
			fmt.Fprintf(w, "LAST4\t%s\n", res.Last4)
			fmt.Fprintf(w, "CODE\t%s (%s)\n", res.Code, res.Code.Name())
			if len(res.Errors) > 0 {
				fmt.Fprintf(w, "ERRORS\t%s\n", strings.Join(res.Errors, "; "))
			}
			return w.Flush()
		},
	}
	validate.Flags().StringVar(&expiry, "expiry", "", "Expiry as MM/YY or MM/YYYY")
	validate.Flags().StringVar(&cvv, "cvv", "", "Card verification value")
	_ = validate.MarkFlagRequired("expiry")

	cmd.AddCommand(validate)
	return cmd
}

func newFeesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fees [amount-in-cents]",
		Short: "Show the transaction, refund and payout fees for an amount",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || amount <= 0 {
				return fmt.Errorf("amount must be a positive integer number of cents: %q", args[0])
			}
			calc := fees.NewCalculator()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "KIND\tFEE\tNET")
			for _, row := range []struct {
				kind string
				fee  int64
			}{
				{"transaction", calc.TransactionFee(amount)},
				{"refund", calc.RefundFee(amount)},
				{"payout", calc.PayoutFee(amount)},
			} {
				fmt.Fprintf(w, "%s\t%d\t%d\n", row.kind, row.fee, amount-row.fee)
			}
			return w.Flush()
		},
	}
}
