package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/agentlens/internal/config"
)

var tailLines int

func init() {
	rootCmd.AddCommand(tailCmd)
	tailCmd.Flags().IntVarP(&tailLines, "lines", "n", 10, "Number of recent events to show")
}

var tailCmd = &cobra.Command{
	Use:   "tail [path]",
	Short: "Show recent events from the NDJSON events log",
	Long:  "Reads the last N events from the events log and pretty-prints them.\nWithout a path, the events_file from the config is used.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTail,
}

func runTail(cmd *cobra.Command, args []string) error {
	path := ""
	if len(args) == 1 {
		path = args[0]
	} else {
		opts, err := config.Resolve(configPath, config.Overrides{})
		if err != nil {
			return err
		}
		path = opts.EventsFilePath
	}
	if path == "" {
		return fmt.Errorf("no events log: pass a path or set events_file in the config")
	}
	return tailFile(path, tailLines, os.Stdout)
}

func tailFile(path string, n int, out io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open events log: %w", err)
	}
	defer f.Close()

	// Keep only the last n lines in a ring.
	ring := make([]string, 0, n)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		if n <= 0 {
			continue
		}
		if len(ring) == n {
			ring = ring[1:]
		}
		ring = append(ring, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read events log: %w", err)
	}

	for _, line := range ring {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			fmt.Fprintln(out, line)
			continue
		}
		pretty, _ := json.MarshalIndent(entry, "", "  ")
		fmt.Fprintln(out, string(pretty))
	}
	return nil
}
