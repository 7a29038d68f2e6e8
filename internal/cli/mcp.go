package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/agentlens/internal/bridge"
	"github.com/ppiankov/agentlens/internal/config"
	"github.com/ppiankov/agentlens/internal/logging"
	lensmcp "github.com/ppiankov/agentlens/internal/mcp"
)

var (
	mcpServerURL  string
	mcpEventsFile string
)

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().StringVar(&mcpServerURL, "server-url", "", "Visualization server endpoint")
	mcpCmd.Flags().StringVar(&mcpEventsFile, "events-file", "", "Also append events as NDJSON to this file")
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP tool server for agent integration",
	Long:  "Runs agentlens as an MCP (Model Context Protocol) server over stdio.\nExposes tools: agentlens_emit, agentlens_status.",
	RunE:  runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	ov := baseOverrides(cmd)
	if mcpServerURL != "" {
		ov.ServerURL = config.String(mcpServerURL)
	}
	if mcpEventsFile != "" {
		ov.EventsFilePath = config.String(mcpEventsFile)
	}
	opts, err := config.Resolve(configPath, ov)
	if err != nil {
		return err
	}

	logger, level := logging.New(os.Stderr, opts.Debug)
	b := bridge.Enable(nil, opts, bridge.WithLogger(logger, level))
	srv := lensmcp.New(b)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down MCP server...")
		cancel()
	}()

	fmt.Fprintln(os.Stderr, "agentlens MCP server running on stdio")
	if !opts.Enabled {
		fmt.Fprintln(os.Stderr, "Forwarding is disabled; events will be ignored until enabled")
	}
	fmt.Fprintln(os.Stderr)

	err = srv.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), opts.Timeout+time.Second)
	defer shutdownCancel()
	b.Shutdown(shutdownCtx)

	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Session summary:")
	out, _ := json.MarshalIndent(b.Stats(), "", "  ")
	fmt.Fprintln(os.Stderr, string(out))

	return err
}
