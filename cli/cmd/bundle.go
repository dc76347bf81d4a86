package cmd

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/importsize/importsize/cli/output"
	"github.com/importsize/importsize/internal/bundler"
	"github.com/importsize/importsize/internal/entry"
)

var (
	bundleImports  []string
	bundleQuery    string
	bundleShowCode bool
	bundleTop      int
)

var bundleCmd = &cobra.Command{
	Use:   "bundle",
	Short: "Bundle imports and report their size",
	Long: `Bundle one or more imports and report the bundled, minified and gzipped size.

Each import is given as specifier|names, where names is the clause of an import
statement:

  importsize bundle -i 'preact|{ render, h }'
  importsize bundle -i 'react|React, { useState }'
  importsize bundle -i 'jsr:@std/path|* as path'
  importsize bundle --query 'i=preact%7C%7B+h+%7D'

The command exits non-zero when the build fails; the reasons are printed as errors.`,
	RunE: runBundle,
}

func init() {
	bundleCmd.Flags().StringArrayVarP(&bundleImports, "import", "i", nil, "import as specifier|names (repeatable)")
	bundleCmd.Flags().StringVar(&bundleQuery, "query", "", "imports as a share query string of repeated i= parameters")
	bundleCmd.Flags().BoolVar(&bundleShowCode, "code", false, "print the minified bundle")
	bundleCmd.Flags().IntVar(&bundleTop, "top", 10, "number of modules to list (0 for all)")
}

func runBundle(cmd *cobra.Command, args []string) error {
	imports, err := parseImports(bundleImports, bundleQuery)
	if err != nil {
		return err
	}

	b, err := newBackend()
	if err != nil {
		return err
	}

	outcome, err := b.Bundle(cmd.Context(), imports)
	if err != nil {
		return fmt.Errorf("bundling failed: %w", err)
	}

	f := GetFormatter()
	for _, warning := range outcome.Warnings {
		if outcome.Succeeded() {
			f.PrintWarning(warning)
		} else {
			f.PrintError(warning)
		}
	}

	if f.Format != output.FormatTable {
		if err := f.Print(outcome); err != nil {
			return err
		}
	} else {
		renderOutcome(f, outcome, bundleTop)
		if bundleShowCode && outcome.Succeeded() && !f.Quiet {
			_, _ = io.WriteString(f.Writer, "\n"+outcome.Result.Code+"\n")
		}
	}

	if !outcome.Succeeded() {
		return fmt.Errorf("build failed with %d warning(s)", len(outcome.Warnings))
	}
	return nil
}

// parseImports collects -i values and --query imports in order
func parseImports(values []string, query string) ([]entry.Import, error) {
	var imports []entry.Import
	for _, value := range values {
		imp, ok := entry.ParseLine(value)
		if !ok {
			return nil, fmt.Errorf("invalid import %q: expected specifier|names", value)
		}
		imports = append(imports, imp)
	}
	if query != "" {
		imports = append(imports, entry.ParseQuery(query)...)
	}

	if len(imports) == 0 {
		return nil, fmt.Errorf("at least one import is required (use -i 'specifier|names')")
	}
	return imports, nil
}

// renderOutcome prints the size summary and the largest modules as tables
func renderOutcome(f *output.Formatter, outcome *bundler.Outcome, top int) {
	if !outcome.Succeeded() {
		return
	}
	result := outcome.Result

	f.PrintTable(output.TableData{
		Headers: []string{"MEASURE", "SIZE", "BYTES"},
		Rows: [][]string{
			{"bundled", output.FormatBytes(result.BundledSize), strconv.Itoa(result.BundledSize)},
			{"minified", output.FormatBytes(result.MinifiedSize), strconv.Itoa(result.MinifiedSize)},
			{"gzip", output.FormatBytes(result.GzipSize), strconv.Itoa(result.GzipSize)},
		},
	})
	if outcome.DurationMs > 0 {
		f.PrintInfo("built in " + output.FormatDuration(outcome.Duration()))
	}

	if len(result.Modules) == 0 {
		return
	}

	modules := result.Modules
	if top > 0 && len(modules) > top {
		modules = modules[:top]
	}
	rows := make([][]string, 0, len(modules)+1)
	for _, m := range modules {
		rows = append(rows, []string{
			output.TruncatePath(m.Path, 60),
			output.FormatBytes(m.BytesInOutput),
			fmt.Sprintf("%.1f%%", m.Percentage),
		})
	}
	if remaining := len(result.Modules) - len(modules); remaining > 0 {
		rows = append(rows, []string{fmt.Sprintf("... and %d more", remaining), "", ""})
	}

	f.PrintInfo("")
	f.PrintTable(output.TableData{
		Headers: []string{"MODULE", "SIZE", "SHARE"},
		Rows:    rows,
	})
}
