package main

import (
	"fmt"
	"log/slog"

	"github.com/arpoise/arclient/internal/config"
	"github.com/spf13/cobra"
)

// rootOptions holds global flags for all commands.
type rootOptions struct {
	ConfigDir string
	LogLevel  string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "arclient",
		Short: "Location-based AR layer client",
		Long: `arclient fetches geo-tagged layers for a device position, reconciles
them against the placed objects and drives their animations.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Load(opts.ConfigDir); err != nil {
				slog.Debug("No config file, using defaults", "dir", opts.ConfigDir, "error", err)
				config.LoadDefaults()
			}
			if opts.LogLevel != "" {
				config.Set("logLevel", opts.LogLevel)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigDir, "config-dir", ".", fmt.Sprintf("directory containing %s", config.FileName))
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "override the configured log level (debug|info|warn|error)")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newFetchCommand(opts))
	cmd.AddCommand(newPingCommand(opts))
	cmd.AddCommand(newVersionCommand())

	return cmd
}
