package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/agentlens/internal/config"
)

var (
	initForce      bool
	initEnable     bool
	initServerURL  string
	initEventsFile string
)

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
	initCmd.Flags().BoolVar(&initEnable, "enable", false, "Write the config with forwarding turned on")
	initCmd.Flags().StringVar(&initServerURL, "server-url", "", "Visualization server endpoint to write")
	initCmd.Flags().StringVar(&initEventsFile, "events-file", "", "NDJSON events log path to write")
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default agentlens config file",
	Long: `Creates ~/.agentlens/config.yaml (or the --config path) with default
settings. Forwarding stays off unless --enable is given.`,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	if path == "" {
		return fmt.Errorf("cannot determine home directory; pass --config")
	}

	if !initForce {
		if _, err := os.Stat(path); err == nil {
			fmt.Printf("%s already exists (use --force to overwrite).\n", path)
			return nil
		}
	}

	opts := config.Defaults()
	opts.Enabled = initEnable
	if initServerURL != "" {
		opts.ServerURL = initServerURL
	}
	opts.EventsFilePath = initEventsFile
	if err := config.Write(path, opts); err != nil {
		return err
	}

	fmt.Println("agentlens init complete.")
	fmt.Println()
	fmt.Printf("Created:\n  %s\n", path)
	fmt.Println()
	fmt.Println("Verify:")
	fmt.Println("  agentlens doctor")
	fmt.Println()
	fmt.Println("Forward a runtime event stream:")
	fmt.Println("  <agent> | agentlens relay")
	return nil
}
