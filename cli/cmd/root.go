// Package cmd provides the Cobra commands for the importsize CLI.
package cmd

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/importsize/importsize/cli/output"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"

	// Global flags
	cfgFile   string
	outputFmt string
	noHeaders bool
	quiet     bool
	debug     bool
	remoteURL string

	// Shared across commands
	formatter *output.Formatter
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "importsize",
	Short: "importsize - Measure what an import costs",
	Long: `importsize bundles ES module imports straight from an ESM registry and reports
the raw, minified and gzipped size of the result.

Examples:
  importsize bundle -i 'preact|{ render, h }'
  importsize bundle -i 'react|React' -i 'react-dom/client|{ createRoot }'
  importsize resolve preact/hooks
  importsize serve

By default commands run in-process. Use --remote to ask a running server instead.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Silence errors only when --quiet is used
		cmd.SilenceErrors = quiet

		if viper.GetBool("debug") {
			debug = true
		}
		setupLogging()

		format, err := output.ParseFormat(outputFmt)
		if err != nil {
			return err
		}
		formatter = output.NewFormatter(format, noHeaders, quiet)
		formatter.Writer = cmd.OutOrStdout()
		formatter.ErrWriter = cmd.ErrOrStderr()
		return nil
	},
}

// Execute runs the CLI. Cancelling ctx aborts in-flight fetches.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global persistent flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is ./importsize.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table",
		"output format: table, json, yaml")
	rootCmd.PersistentFlags().BoolVar(&noHeaders, "no-headers", false,
		"hide table headers")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false,
		"minimal output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false,
		"enable debug output")
	rootCmd.PersistentFlags().StringVar(&remoteURL, "remote", "",
		"URL of a running importsize server to use instead of bundling in-process")

	// Bind environment variables
	_ = viper.BindEnv("remote", "IMPORTSIZE_REMOTE")
	_ = viper.BindEnv("debug", "IMPORTSIZE_DEBUG")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(bundleCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(serveCmd)
}

func initConfig() {
	// config.Load keeps an explicitly set file over its search paths
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

func setupLogging() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	switch {
	case debug:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case quiet:
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	}
}

// GetFormatter returns the output formatter (for use by subcommands)
func GetFormatter() *output.Formatter {
	if formatter == nil {
		format, _ := output.ParseFormat(outputFmt)
		formatter = output.NewFormatter(format, noHeaders, quiet)
	}
	return formatter
}
