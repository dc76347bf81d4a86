package output

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatTable, false},
		{"table", FormatTable, false},
		{"JSON", FormatJSON, false},
		{"yml", FormatYAML, false},
		{"yaml", FormatYAML, false},
		{"xml", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func newTestFormatter(format Format) (*Formatter, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	f := NewFormatter(format, false, false)
	f.Writer = buf
	return f, buf
}

func TestFormatter_PrintTable(t *testing.T) {
	data := TableData{
		Headers: []string{"MEASURE", "SIZE"},
		Rows: [][]string{
			{"minified", "4.00 KB"},
			{"gzip", "1.50 KB"},
		},
	}

	t.Run("table", func(t *testing.T) {
		f, buf := newTestFormatter(FormatTable)
		f.PrintTable(data)
		out := buf.String()
		assert.Contains(t, out, "MEASURE")
		assert.Contains(t, out, "minified")
		assert.Contains(t, out, "1.50 KB")
	})

	t.Run("no headers", func(t *testing.T) {
		f, buf := newTestFormatter(FormatTable)
		f.NoHeaders = true
		f.PrintTable(data)
		assert.NotContains(t, buf.String(), "MEASURE")
		assert.Contains(t, buf.String(), "gzip")
	})

	t.Run("json", func(t *testing.T) {
		f, buf := newTestFormatter(FormatJSON)
		f.PrintTable(data)
		assert.JSONEq(t, `[{"MEASURE":"minified","SIZE":"4.00 KB"},{"MEASURE":"gzip","SIZE":"1.50 KB"}]`, buf.String())
	})

	t.Run("yaml", func(t *testing.T) {
		f, buf := newTestFormatter(FormatYAML)
		f.PrintTable(data)
		assert.Contains(t, buf.String(), "MEASURE: minified")
	})

	t.Run("quiet", func(t *testing.T) {
		f, buf := newTestFormatter(FormatTable)
		f.Quiet = true
		f.PrintTable(data)
		assert.Empty(t, buf.String())
	})
}

func TestFormatter_PrintKeyValue(t *testing.T) {
	f, buf := newTestFormatter(FormatTable)
	f.PrintKeyValue("url", "https://esm.sh/preact")
	assert.Equal(t, "url: https://esm.sh/preact\n", buf.String())

	f, buf = newTestFormatter(FormatJSON)
	f.PrintKeyValue("url", "https://esm.sh/preact")
	assert.JSONEq(t, `{"url":"https://esm.sh/preact"}`, buf.String())
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.00 KB", FormatBytes(1024))
	assert.Equal(t, "1.50 KB", FormatBytes(1536))
	assert.Equal(t, "2.00 MB", FormatBytes(2*1024*1024))
}

func TestTruncatePath(t *testing.T) {
	assert.Equal(t, "short", TruncatePath("short", 10))
	assert.Equal(t, "...efghij", TruncatePath("abcdefghij", 9))
}

func TestFormatter_Diagnostics(t *testing.T) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	f := NewFormatter(FormatJSON, false, false)
	f.Writer = out
	f.ErrWriter = errOut

	f.PrintWarning("no content for https://esm.sh/missing.js")
	f.PrintError(`<entry>:1:20: Could not resolve "nope"`)

	assert.Empty(t, out.String(), "diagnostics never mix into json output")
	assert.Equal(t, "Warning: no content for https://esm.sh/missing.js\n"+
		"Error: <entry>:1:20: Could not resolve \"nope\"\n", errOut.String())

	t.Run("quiet keeps errors only", func(t *testing.T) {
		errOut.Reset()
		f.Quiet = true
		f.PrintWarning("dropped")
		f.PrintError("kept")
		assert.Equal(t, "Error: kept\n", errOut.String())
	})
}

func TestFormatter_PrintYAML(t *testing.T) {
	f, buf := newTestFormatter(FormatYAML)
	require.NoError(t, f.Print(map[string]int{"gzip_size": 30}))
	assert.Equal(t, "gzip_size: 30\n", buf.String())
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0ms", FormatDuration(0))
	assert.Equal(t, "250ms", FormatDuration(250*time.Millisecond))
	assert.Equal(t, "1.50s", FormatDuration(1500*time.Millisecond))
}
