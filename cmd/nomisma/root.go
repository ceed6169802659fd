package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/erazemk/nomisma/internal/config"
)

// newRootCmd builds the command tree. The configuration is resolved once,
// before any subcommand runs.
func newRootCmd() *cobra.Command {
	cfg := config.Default()

	cmd := &cobra.Command{
		Use:   "nomisma",
		Short: "Coin collection console",
		Long: `Nomisma is the operator console of a coin collection.

It drives the microscope scan workflow, browses and edits the collection,
requests valuations and lists coins on eBay through the collection backend.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			path, err := cmd.Flags().GetString(config.FlagConfig)
			if err != nil {
				return err
			}
			loaded, err := config.Load(path)
			if err != nil {
				return err
			}
			if err := loaded.ApplyFlags(cmd.Flags()); err != nil {
				return err
			}
			if err := loaded.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			cfg = loaded
			return nil
		},
	}

	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(
		newServeCmd(&cfg),
		newInitCmd(&cfg),
		newDevicesCmd(&cfg),
		newHealthCmd(&cfg),
	)

	return cmd
}
