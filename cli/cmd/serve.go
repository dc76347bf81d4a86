package cmd

import (
	"github.com/spf13/cobra"

	"github.com/importsize/importsize/internal/api"
	"github.com/importsize/importsize/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the importsize HTTP API",
	Long: `Run the HTTP API until interrupted.

The server is configured from importsize.yaml and IMPORTSIZE_* environment variables,
for example IMPORTSIZE_SERVER_ADDRESS=:9000.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cfg.Debug && !debug {
			debug = true
			setupLogging()
		}

		api.Version = Version

		// The root context is cancelled on SIGINT and SIGTERM
		return api.Run(cmd.Context(), cfg)
	},
}
