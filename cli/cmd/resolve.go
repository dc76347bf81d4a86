package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resolveImporter string

var resolveCmd = &cobra.Command{
	Use:   "resolve <specifier>",
	Short: "Resolve a specifier to a module URL",
	Long: `Resolve a specifier the way the bundler does and print the module URL.

Examples:
  importsize resolve preact/hooks
  importsize resolve jsr:@std/path
  importsize resolve ./util.js --importer https://esm.sh/preact@10.19.3/src/index.js`,
	Args: cobra.ExactArgs(1),
	RunE: runResolve,
}

func init() {
	resolveCmd.Flags().StringVar(&resolveImporter, "importer", "", "URL of the importing module")
}

func runResolve(cmd *cobra.Command, args []string) error {
	b, err := newBackend()
	if err != nil {
		return err
	}

	resolved, err := b.Resolve(cmd.Context(), args[0], resolveImporter)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", args[0], err)
	}

	GetFormatter().PrintKeyValue("url", resolved)
	return nil
}
