// =============================================================================
// CLI OUTPUT FORMATTER - TABLE, JSON, YAML OUTPUT SUPPORT
// =============================================================================
//
// Output formatting for the CLI:
//   - Table (default): human-readable aligned columns
//   - JSON: machine-readable, for scripting with jq
//   - YAML: machine-readable, configuration-friendly
//
// =============================================================================

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"
)

// OutputFormat represents the output format type.
type OutputFormat string

// Supported output formats
const (
	OutputTable OutputFormat = "table"
	OutputJSON  OutputFormat = "json"
	OutputYAML  OutputFormat = "yaml"
)

// ParseOutputFormat parses an output format string.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch strings.ToLower(s) {
	case "table", "":
		return OutputTable, nil
	case "json":
		return OutputJSON, nil
	case "yaml", "yml":
		return OutputYAML, nil
	default:
		return "", fmt.Errorf("unknown output format: %s (supported: table, json, yaml)", s)
	}
}

// Formatter handles output formatting for CLI commands.
type Formatter struct {
	format OutputFormat
	writer io.Writer
}

// NewFormatter creates a new formatter with the specified format.
func NewFormatter(format OutputFormat) *Formatter {
	return &Formatter{
		format: format,
		writer: os.Stdout,
	}
}

// SetWriter sets the output writer (for testing).
func (f *Formatter) SetWriter(w io.Writer) {
	f.writer = w
}

func (f *Formatter) formatJSON(data interface{}) error {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func (f *Formatter) formatYAML(data interface{}) error {
	encoder := yaml.NewEncoder(f.writer)
	encoder.SetIndent(2)
	return encoder.Encode(data)
}

// =============================================================================
// PER-TYPE FORMATTING
// =============================================================================

// FormatHealth outputs a health check result.
func (f *Formatter) FormatHealth(info *HealthInfo) error {
	switch f.format {
	case OutputJSON:
		return f.formatJSON(info)
	case OutputYAML:
		return f.formatYAML(info)
	}
	fmt.Fprintf(f.writer, "Status:     %s\n", info.Status)
	fmt.Fprintf(f.writer, "Partitions: %d\n", info.Partitions)
	fmt.Fprintf(f.writer, "Timestamp:  %s\n", info.Timestamp)
	return nil
}

// FormatStats outputs per-partition state sizes.
func (f *Formatter) FormatStats(info *StatsInfo) error {
	switch f.format {
	case OutputJSON:
		return f.formatJSON(info)
	case OutputYAML:
		return f.formatYAML(info)
	}
	tw := tabwriter.NewWriter(f.writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PARTITION\tRECORDS\tGROUPS\tOFFSETS\tSTATE")
	for _, p := range info.Partitions {
		state := "serving"
		switch {
		case p.Fenced:
			state = "fenced"
		case !p.Loaded:
			state = "loading"
		}
		fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%s\n",
			p.Partition, p.Records, p.Groups, p.Offsets, state)
	}
	return tw.Flush()
}

// FormatOffsets outputs a group's committed offsets.
func (f *Formatter) FormatOffsets(offsets []OffsetInfo) error {
	switch f.format {
	case OutputJSON:
		return f.formatJSON(offsets)
	case OutputYAML:
		return f.formatYAML(offsets)
	}
	if len(offsets) == 0 {
		fmt.Fprintln(f.writer, "No committed offsets.")
		return nil
	}
	tw := tabwriter.NewWriter(f.writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TOPIC\tPARTITION\tOFFSET\tCOMMITTED")
	for _, o := range offsets {
		committed := time.UnixMilli(o.CommitTimestamp).UTC().Format(time.RFC3339)
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", o.Topic, o.Partition, o.Offset, committed)
	}
	return tw.Flush()
}

// FormatDeleteResults outputs the outcome of a batch group deletion.
func (f *Formatter) FormatDeleteResults(results []DeleteGroupResult) error {
	switch f.format {
	case OutputJSON:
		return f.formatJSON(results)
	case OutputYAML:
		return f.formatYAML(results)
	}
	tw := tabwriter.NewWriter(f.writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "GROUP\tRESULT")
	for _, r := range results {
		result := "deleted"
		if r.ErrorCode != 0 {
			result = fmt.Sprintf("failed (code %d)", r.ErrorCode)
		}
		fmt.Fprintf(tw, "%s\t%s\n", r.GroupID, result)
	}
	return tw.Flush()
}

// PrintError writes an error message to stderr.
func PrintError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
