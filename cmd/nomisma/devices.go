package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/erazemk/nomisma/internal/backend"
	"github.com/erazemk/nomisma/internal/config"
)

func newDevicesCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List the microscope cameras the backend sees",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := backendClient(cfg)
			list, err := client.Devices(cmd.Context())
			if err != nil {
				return err
			}
			if len(list.Cameras) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No cameras detected.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "INDEX\tNAME\tRESOLUTION\tAVAILABLE")
			for _, c := range list.Cameras {
				avail := "yes"
				if !c.IsAvailable() {
					avail = "no"
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", c.Index, c.Name, c.Resolution, avail)
			}
			return w.Flush()
		},
	}
}

func backendClient(cfg *config.Config) *backend.Client {
	return backend.New(backend.Config{
		BaseURL: cfg.Backend.URL,
		Token:   cfg.Backend.Token,
		Timeout: cfg.Backend.Timeout,
	})
}
