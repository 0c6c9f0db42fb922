package main

import (
	"github.com/spf13/cobra"
)

var topologyFile string

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "fedctl",
		Short:         "Operator CLI for a coalition federation instance",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&topologyFile, "topology", "topology.yaml", "federation topology file")

	cmd.AddCommand(trustCmd())
	cmd.AddCommand(tokenCmd())
	cmd.AddCommand(keygenCmd())
	return cmd
}
