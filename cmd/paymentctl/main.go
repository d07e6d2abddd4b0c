// Command paymentctl is the operator CLI for a running payment-core instance.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var apiURL string

	rootCmd := &cobra.Command{
		Use:           "paymentctl",
		Short:         "Operate payment-core: providers, reconciliation, statistics and fraud lists",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", envOr("PAYMENT_CORE_URL", "http://localhost:8085"), "payment-core base URL")

	client := func() *apiClient { return newAPIClient(apiURL) }

	rootCmd.AddCommand(providersCmd(client))
	rootCmd.AddCommand(reconcileCmd(client))
	rootCmd.AddCommand(reportsCmd(client))
	rootCmd.AddCommand(statsCmd(client))
	rootCmd.AddCommand(transactionCmd(client))
	rootCmd.AddCommand(blacklistCmd(client))

	return rootCmd
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
