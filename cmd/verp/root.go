package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	verp "github.com/tonyluong2025/verp-sub017"
	"github.com/tonyluong2025/verp-sub017/middlewares"
	"github.com/tonyluong2025/verp-sub017/pkg/logger"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type globalFlags struct {
	envFiles []string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	cmd := &cobra.Command{
		Use:   "verp",
		Short: "Multi-tenant HTTP routing and request dispatch",
		Long: `verp serves the modules installed on every tenant database.

Examples:
  # Start the server
  verp serve

  # Print the routing table of a tenant
  verp routes acme

  # Drop the routing tables of every tenant in all running servers
  verp invalidate '*'

  # Create the engine tables on a tenant database
  verp migrate acme`,
		SilenceUsage:  true,
		SilenceErrors: false,
		Version:       version,
	}
	cmd.PersistentFlags().StringSliceVar(&flags.envFiles, "env-file", nil, "Env files loaded before parsing the environment (default .env)")

	cmd.AddCommand(
		newServeCmd(flags),
		newRoutesCmd(flags),
		newInvalidateCmd(flags),
		newMigrateCmd(flags),
	)
	return cmd
}

// load reads the configuration and builds the process logger.
func (f *globalFlags) load() (verp.Config, *slog.Logger, error) {
	cfg, err := verp.LoadConfig(f.envFiles...)
	if err != nil {
		return verp.Config{}, nil, err
	}
	return cfg, logger.New(cfg.Log, middlewares.RequestIDExtractor()), nil
}
