package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"solrelay/internal/platform/config"
	"solrelay/internal/solana/keys"
)

func newFeePayerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fee-payer",
		Short: "Print the fee payer's public key",
		Long:  "Reads FEEPAYER_SECRET_KEY_BASE58 and prints the address clients must set as the fee payer.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			key, err := keys.Load(cfg.Solana.FeePayerSecret)
			if err != nil {
				return err
			}
			if key == nil {
				return errors.New("FEEPAYER_SECRET_KEY_BASE58 is not set")
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), key.PublicKey().String())
			return err
		},
	}
}
