package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/arpoise/arclient/internal/config"
	"github.com/spf13/cobra"
)

func newPingCommand(root *rootOptions) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Check that the layer directory is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newAPIClient(config.GetClientConfig().UserID, slog.Default())
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			start := time.Now()
			if err := client.Healthcheck(ctx); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s reachable in %s\n", client.Config().DirectoryURL, time.Since(start).Round(time.Millisecond))
			return err
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")
	return cmd
}
