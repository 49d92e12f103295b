package cmd

import (
	"github.com/spf13/cobra"

	"github.com/dandantas/pijob/internal/config"
)

// Version is overridden at build time with -ldflags.
var Version = "dev"

// RootCmd is the root Cobra command that gets called from the main func.
func RootCmd() *cobra.Command {
	var logLevel, logFormat string

	cmd := &cobra.Command{
		Use:          "pijob",
		Short:        "pijob runs cancellable series approximations of pi.",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cfg := &config.Config{LogLevel: logLevel, LogFormat: logFormat}
			config.InitLogger(cfg)
		},
	}

	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text, json)")

	cmd.AddCommand(
		runCmd(),
		versionCmd(),
	)

	return cmd
}
