package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/erazemk/nomisma/internal/config"
)

func newHealthCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the collection backend is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := backendClient(cfg)
			h, err := client.Health(cmd.Context())
			if err != nil {
				return fmt.Errorf("backend %s: %w", client.BaseURL(), err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "backend %s: %s\n", client.BaseURL(), h.Status)
			return nil
		},
	}
}
