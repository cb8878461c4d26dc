// =============================================================================
// GROUP COMMAND - INSPECT AND DELETE CONSUMER GROUPS
// =============================================================================
//
// USAGE:
//   coordinator group offsets <group-id>
//   coordinator group delete <group-id> [group-id...]
//
// =============================================================================

package cmd

import (
	"github.com/spf13/cobra"
)

var groupCmd = &cobra.Command{
	Use:   "group",
	Short: "Manage consumer groups",
}

var groupOffsetsCmd = &cobra.Command{
	Use:   "offsets <group-id>",
	Short: "Show a group's committed offsets",
	Long: `Show every committed offset of a consumer group.

Examples:
  coordinator group offsets payments
  coordinator group offsets payments -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runGroupOffsets,
}

var groupDeleteCmd = &cobra.Command{
	Use:   "delete <group-id> [group-id...]",
	Short: "Delete consumer groups",
	Long: `Delete one or more consumer groups and all their committed offsets.

A group with live members refuses deletion. Deleting a group that does not
exist succeeds as a no-op.

Examples:
  coordinator group delete payments
  coordinator group delete payments orders-dlq`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGroupDelete,
}

func init() {
	groupCmd.AddCommand(groupOffsetsCmd)
	groupCmd.AddCommand(groupDeleteCmd)
}

func runGroupOffsets(cmd *cobra.Command, args []string) error {
	ctx, cancel := requestContext()
	defer cancel()

	offsets, err := client.GroupOffsets(ctx, args[0])
	if err != nil {
		return handleError(err)
	}
	return formatter.FormatOffsets(offsets)
}

func runGroupDelete(cmd *cobra.Command, args []string) error {
	ctx, cancel := requestContext()
	defer cancel()

	results, err := client.DeleteGroups(ctx, args)
	if err != nil {
		return handleError(err)
	}
	return formatter.FormatDeleteResults(results)
}
