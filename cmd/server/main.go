package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "billing",
		Short: "Entitlement and subscription billing service",
		Long:  `billing sells plans through Cashfree, processes its webhooks and gates metered endpoints on the resulting entitlements.`,
		// Running without a subcommand starts the server.
		RunE:         runServe,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newServeCommand(),
		newMigrateCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
