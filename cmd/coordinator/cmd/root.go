// =============================================================================
// ROOT COMMAND - CLI ENTRY POINT AND GLOBAL FLAGS
// =============================================================================
//
// The root command for the group coordinator binary. Subcommands:
//
//   serve       Run the coordinator service
//   stats       Show per-partition state sizes of a running coordinator
//   group       Inspect and delete consumer groups
//   topology    Publish a topology snapshot
//   version     Show version information
//
// GLOBAL FLAGS:
//   --config        Path to a YAML configuration file (serve only)
//   --server, -s    Coordinator URL for admin commands
//   --output, -o    Output format: table, json, yaml
//   --timeout       Request timeout in seconds
//
// =============================================================================

package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/jimbogithub/kafka/internal/cli"
	"github.com/jimbogithub/kafka/internal/config"
)

var (
	configFlag  string
	serverFlag  string
	outputFlag  string
	timeoutFlag int

	cfg       config.Config
	client    *cli.Client
	formatter *cli.Formatter
)

var rootCmd = &cobra.Command{
	Use:   "coordinator",
	Short: "Replicated consumer-group and offset coordinator",
	Long: `coordinator - Group membership and offset tracking for partitioned consumers.

The coordinator shards consumer groups over a set of partitions. Each shard
keeps its state as a replayable record log, so any replica that holds the log
can rebuild the state and take over.

Use "coordinator [command] --help" for more information about a command.`,
	PersistentPreRunE: initialize,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "",
		"Path to YAML configuration file (serve only)")
	rootCmd.PersistentFlags().StringVarP(&serverFlag, "server", "s", "http://localhost:8080",
		"Coordinator URL for admin commands")
	rootCmd.PersistentFlags().StringVarP(&outputFlag, "output", "o", "table",
		"Output format: table, json, yaml")
	rootCmd.PersistentFlags().IntVar(&timeoutFlag, "timeout", 30,
		"Request timeout in seconds")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(groupCmd)
	rootCmd.AddCommand(topologyCmd)
	rootCmd.AddCommand(versionCmd)
}

// initialize resolves either the service configuration (serve) or the admin
// client (everything else) before the command runs.
func initialize(cmd *cobra.Command, args []string) error {
	switch cmd.Name() {
	case "version":
		return nil
	case "serve":
		if configFlag == "" {
			cfg = config.Default()
			return nil
		}
		loaded, err := config.Load(configFlag)
		if err != nil {
			return err
		}
		cfg = loaded
		return nil
	}

	client = cli.NewClient(cli.ClientConfig{
		ServerURL: serverFlag,
		Timeout:   time.Duration(timeoutFlag) * time.Second,
	})
	format, err := cli.ParseOutputFormat(outputFlag)
	if err != nil {
		return err
	}
	formatter = cli.NewFormatter(format)
	return nil
}

// requestContext returns a context bounded by the --timeout flag.
func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), time.Duration(timeoutFlag)*time.Second)
}

// handleError prints an error and returns it.
func handleError(err error) error {
	cli.PrintError("%v", err)
	return err
}
