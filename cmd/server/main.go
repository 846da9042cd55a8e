package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

// newRootCmd builds the command tree. Running without a subcommand serves.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "solrelay",
		Short: "Solana fee-sponsorship relay",
		Long: `solrelay completes client-built Solana transactions with the relay's
fee-payer signature, broadcasts them, and registers SNS subdomains.

Configuration comes from the environment (PORT, RPC_ENDPOINT, REDIS_URL, ...),
optionally layered over a YAML or JSON file passed with --config.`,
		SilenceUsage: true,
		RunE:         runServe,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "optional config file")
	root.AddCommand(newServeCmd(), newFeePayerCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
