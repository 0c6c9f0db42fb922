package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/dive-coalition/federation/internal/config"
	"github.com/dive-coalition/federation/internal/registry"
	"github.com/dive-coalition/federation/internal/trust"
	"github.com/spf13/cobra"
)

func trustCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trust",
		Short: "Inspect bilateral trust edges",
	}
	cmd.AddCommand(trustListCmd())
	cmd.AddCommand(trustCheckCmd())
	return cmd
}

func loadMatrix() (*trust.Matrix, *config.Topology, error) {
	topo, err := config.LoadTopology(topologyFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load topology: %w", err)
	}
	reg := registry.New(topo)
	return trust.NewMatrix(trust.NewStaticStore(topo), reg), topo, nil
}

func trustListCmd() *cobra.Command {
	var instance string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List effective trust edges originating at an instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			matrix, _, err := loadMatrix()
			if err != nil {
				return err
			}

			edges := matrix.ListTrustsFor(strings.ToUpper(instance))
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(edges)
		},
	}
	cmd.Flags().StringVar(&instance, "instance", "", "instance code")
	_ = cmd.MarkFlagRequired("instance")
	return cmd
}

func trustCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <source> <target>",
		Short: "Check whether an effective trust edge exists",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			matrix, _, err := loadMatrix()
			if err != nil {
				return err
			}

			source := strings.ToUpper(args[0])
			target := strings.ToUpper(args[1])
			edge, ok := matrix.VerifyTrust(source, target)
			if !ok {
				return fmt.Errorf("no effective trust edge %s->%s", source, target)
			}

			fmt.Printf("trust %s->%s: level=%s max_classification=%s scopes=%s\n",
				source, target, edge.TrustLevel, edge.MaxClassification,
				strings.Join(edge.AllowedScopes, ","))
			return nil
		},
	}
}
