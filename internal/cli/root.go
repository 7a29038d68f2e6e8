package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/agentlens/internal/config"
)

var (
	configPath string
	debugLog   bool
)

var rootCmd = &cobra.Command{
	Use:   "agentlens",
	Short: "Forward agent runtime events to a live visualization server",
	Long: "Reads an agent runtime's lifecycle, tool and error events and forwards them\n" +
		"as session, tool, prompt and notification events over HTTP and to an\n" +
		"optional NDJSON log. Delivery is best-effort and never blocks the agent.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config YAML (default ~/.agentlens/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debugLog, "debug", false, "Log delivery failures to stderr")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// changed reports whether name was set on the command line. Tests call run
// functions with a nil command.
func changed(cmd *cobra.Command, name string) bool {
	return cmd != nil && cmd.Flags().Changed(name)
}

// baseOverrides carries the persistent flags that were set explicitly.
func baseOverrides(cmd *cobra.Command) config.Overrides {
	var ov config.Overrides
	if changed(cmd, "debug") {
		ov.Debug = config.Bool(debugLog)
	}
	return ov
}
