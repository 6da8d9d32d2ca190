package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/weftlabs/weft/internal/cli/config"
)

// wantJSON reports whether the configured output format selects JSON.
func wantJSON(cfg *config.Config) bool {
	return strings.EqualFold(cfg.OutputFormat, "json")
}

// newTable returns a go-pretty writer in the house style.
func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	return t
}

// renderJSON writes v as indented JSON.
func renderJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// shortHash trims a content hash for table display.
func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

// printValue renders an invocation result for terminal output. None prints
// the way script authors wrote it, scalars print bare, and composite values
// print as indented JSON.
func printValue(w io.Writer, v any) {
	switch val := v.(type) {
	case nil:
		fmt.Fprintln(w, "None")
	case string:
		fmt.Fprintln(w, val)
	case bool, int64, float64:
		fmt.Fprintln(w, val)
	default:
		data, err := json.MarshalIndent(val, "", "  ")
		if err != nil {
			fmt.Fprintf(w, "%v\n", val)
			return
		}
		fmt.Fprintln(w, string(data))
	}
}
