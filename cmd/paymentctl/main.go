package main

import (
	"os"

	"github.com/spf13/cobra"

	"payment-lifecycle-engine/internal/config"
	"payment-lifecycle-engine/internal/observability"
)

// cli carries the flags shared by every subcommand.
type cli struct {
	configPath string
}

func (c *cli) config() (*config.Config, error) {
	return config.Load(c.configPath)
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "paymentctl",
		Short:         "Operations tooling for the payment lifecycle engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "configs/config.yaml", "Path to the config file")

	root.AddCommand(
		newCardCmd(),
		newFeesCmd(),
		newRiskReportsCmd(c),
		newDLQCmd(c),
		newPayoutsCmd(c),
	)
	return root
}

func main() {
	logger := observability.SetupLogger(os.Getenv("APP_ENV"), os.Getenv("LOG_LEVEL"))
	if err := newRootCmd().Execute(); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}
