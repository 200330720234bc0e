package main

import (
	"github.com/spf13/cobra"
)

const (
	FlagConfig = "config"
	FlagEnv    = "env"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "deployflow",
		Short:         "Deploy a token and deposit contract and drive a transfer, approve, deposit sequence",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String(FlagEnv, ".env", "dotenv file loaded before reading the environment")

	root.AddCommand(newRunCmd())
	root.AddCommand(newInspectCmd())
	return root
}
