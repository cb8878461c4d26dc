// =============================================================================
// TOPOLOGY COMMAND - PUBLISH A TOPOLOGY SNAPSHOT
// =============================================================================

package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jimbogithub/kafka/internal/cli"
)

var topologyVersionFlag int64

var topologyCmd = &cobra.Command{
	Use:   "topology <topic>:<partitions> [<topic>:<partitions>...]",
	Short: "Publish a topology snapshot",
	Long: `Publish the current topic topology to the coordinator. Every shard
refreshes its partition snapshots against the new image; groups whose
subscriptions are affected rebalance on their next heartbeat.

Examples:
  coordinator topology orders:8 payments:4
  coordinator topology orders:8 --version 42`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTopology,
}

func init() {
	topologyCmd.Flags().Int64Var(&topologyVersionFlag, "version", 0,
		"Image version (must increase monotonically)")
}

func runTopology(cmd *cobra.Command, args []string) error {
	topics := make([]cli.TopologyTopic, 0, len(args))
	for _, arg := range args {
		name, partitions, ok := strings.Cut(arg, ":")
		if !ok || name == "" {
			return fmt.Errorf("invalid topic spec %q, want <topic>:<partitions>", arg)
		}
		count, err := strconv.ParseInt(partitions, 10, 32)
		if err != nil || count <= 0 {
			return fmt.Errorf("invalid partition count in %q", arg)
		}
		topics = append(topics, cli.TopologyTopic{Name: name, Partitions: int32(count)})
	}

	ctx, cancel := requestContext()
	defer cancel()

	if err := client.PublishTopology(ctx, topologyVersionFlag, topics); err != nil {
		return handleError(err)
	}
	fmt.Printf("Published topology with %d topic(s).\n", len(topics))
	return nil
}
