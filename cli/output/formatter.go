// Package output renders bundle and resolve results for the importsize CLI.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"
)

// Format represents the output format
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat parses a format string
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "table", "":
		return FormatTable, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("invalid output format: %s (valid: table, json, yaml)", s)
	}
}

// Formatter writes results to Writer and diagnostics to ErrWriter
type Formatter struct {
	Format    Format
	NoHeaders bool
	Quiet     bool
	Writer    io.Writer
	ErrWriter io.Writer
}

// NewFormatter creates a formatter writing to stdout and stderr
func NewFormatter(format Format, noHeaders, quiet bool) *Formatter {
	return &Formatter{
		Format:    format,
		NoHeaders: noHeaders,
		Quiet:     quiet,
		Writer:    os.Stdout,
		ErrWriter: os.Stderr,
	}
}

// Print encodes data as JSON or YAML. Table mode has no generic layout and
// falls back to JSON.
func (f *Formatter) Print(data interface{}) error {
	if f.Quiet {
		return nil
	}

	if f.Format == FormatYAML {
		encoder := yaml.NewEncoder(f.Writer)
		encoder.SetIndent(2)
		defer func() { _ = encoder.Close() }()
		return encoder.Encode(data)
	}

	encoder := json.NewEncoder(f.Writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// TableData represents tabular data for table output
type TableData struct {
	Headers []string
	Rows    [][]string
}

// PrintTable prints rows as an aligned table, or as a list of header-keyed
// objects in json and yaml modes
func (f *Formatter) PrintTable(data TableData) {
	if f.Quiet {
		return
	}

	if f.Format != FormatTable {
		rows := make([]map[string]string, len(data.Rows))
		for i, row := range data.Rows {
			rowMap := make(map[string]string)
			for j, cell := range row {
				if j < len(data.Headers) {
					rowMap[data.Headers[j]] = cell
				}
			}
			rows[i] = rowMap
		}
		_ = f.Print(rows)
		return
	}

	table := tablewriter.NewWriter(f.Writer)
	if !f.NoHeaders && len(data.Headers) > 0 {
		table.SetHeader(data.Headers)
	}

	// Borderless, tab padded
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetTablePadding("\t")
	table.SetNoWhiteSpace(true)

	table.AppendBulk(data.Rows)
	table.Render()
}

// PrintInfo prints a line of result output
func (f *Formatter) PrintInfo(message string) {
	if f.Quiet {
		return
	}
	_, _ = fmt.Fprintln(f.Writer, message)
}

// PrintWarning prints a build warning. Quiet suppresses it.
func (f *Formatter) PrintWarning(message string) {
	if f.Quiet {
		return
	}
	_, _ = fmt.Fprintln(f.ErrWriter, "Warning:", message)
}

// PrintError prints a message that made the command fail. It is shown even when quiet.
func (f *Formatter) PrintError(message string) {
	_, _ = fmt.Fprintln(f.ErrWriter, "Error:", message)
}

// PrintKeyValue prints a single named result
func (f *Formatter) PrintKeyValue(key, value string) {
	if f.Quiet {
		return
	}

	switch f.Format {
	case FormatJSON, FormatYAML:
		_ = f.Print(map[string]string{key: value})
	default:
		_, _ = fmt.Fprintf(f.Writer, "%s: %s\n", key, value)
	}
}

// FormatBytes renders a byte count the way sizes are shown in tables
func FormatBytes(bytes int) string {
	const (
		KB = 1024
		MB = 1024 * KB
	)
	switch {
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// FormatDuration renders a build duration in milliseconds, or seconds past one second
func FormatDuration(d time.Duration) string {
	if d >= time.Second {
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
	return fmt.Sprintf("%dms", d.Milliseconds())
}

// TruncatePath shortens a path to at most maxLen characters, keeping its tail
func TruncatePath(path string, maxLen int) string {
	if len(path) <= maxLen || maxLen <= 3 {
		return path
	}
	return "..." + path[len(path)-maxLen+3:]
}
