package client

import (
	"github.com/spf13/cobra"
)

// NewRoot constructs the root Cobra command for bgq with the global flags
// and every subcommand registered.
func NewRoot(version string) *cobra.Command {
	g := &Globals{}
	root := &cobra.Command{
		Use:           "bgq",
		Short:         "Durable background delivery queue",
		Long:          "bgq persists analytics tasks locally and delivers them to the tracking API in order, with retry and pause on server failures.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&g.ConfigPath, "config", "", "Config file (.json, .yaml or .yml)")
	pf.StringVar(&g.DataDir, "data-dir", "", "Data directory (if not specified, uses OS-specific application data directory)")
	pf.StringVar(&g.LogLevel, "log-level", "", "Log level: debug|info|warn|error")
	pf.StringVar(&g.LogFormat, "log-format", "", "Log format: text|json")
	pf.StringVar(&g.EnvFile, "env-file", ".env", "Dotenv file loaded before BGQ_* variables are read")

	root.AddCommand(
		newServeCommand(g),
		newAddCommand(g),
		newRunCommand(g),
		newStatusCommand(g),
		newInventoryCommand(g),
		newVersionCommand(version),
	)
	return root
}
