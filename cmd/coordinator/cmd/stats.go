// =============================================================================
// STATS COMMAND - INSPECT A RUNNING COORDINATOR
// =============================================================================

package cmd

import (
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show per-partition state sizes",
	Long: `Show per-partition record, group, and offset counts of a running coordinator.

Examples:
  coordinator stats
  coordinator stats -s http://coordinator:8080 -o json`,
	RunE: runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx, cancel := requestContext()
	defer cancel()

	stats, err := client.Stats(ctx)
	if err != nil {
		return handleError(err)
	}
	return formatter.FormatStats(stats)
}
