package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/agentlens/internal/bridge"
	"github.com/ppiankov/agentlens/internal/config"
	"github.com/ppiankov/agentlens/internal/logging"
	"github.com/ppiankov/agentlens/internal/model"
)

var (
	emitServerURL  string
	emitEventsFile string
	emitEnabled    bool
)

func init() {
	rootCmd.AddCommand(emitCmd)
	emitCmd.Flags().StringVar(&emitServerURL, "server-url", "", "Visualization server endpoint")
	emitCmd.Flags().StringVar(&emitEventsFile, "events-file", "", "Also append the event to this NDJSON file")
	emitCmd.Flags().BoolVar(&emitEnabled, "enabled", false, "Turn forwarding on regardless of config")
}

var emitCmd = &cobra.Command{
	Use:   "emit",
	Short: "Forward one source event read from stdin",
	Long: "Reads a single source event as JSON from stdin, forwards it and prints the\n" +
		"delivery outcome. Delivery failures are reported, not treated as errors.",
	Args: cobra.NoArgs,
	RunE: runEmit,
}

type emitReport struct {
	EventID    string `json:"event_id,omitempty"`
	Skipped    bool   `json:"skipped,omitempty"`
	HTTPStatus int    `json:"http_status,omitempty"`
	Error      string `json:"error,omitempty"`
}

func runEmit(cmd *cobra.Command, args []string) error {
	return emitFrom(cmd, os.Stdin, os.Stdout)
}

func emitFrom(cmd *cobra.Command, in io.Reader, out io.Writer) error {
	var ev model.SourceEvent
	if err := json.NewDecoder(in).Decode(&ev); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}

	ov := baseOverrides(cmd)
	if changed(cmd, "server-url") || emitServerURL != "" {
		ov.ServerURL = config.String(emitServerURL)
	}
	if changed(cmd, "events-file") || emitEventsFile != "" {
		ov.EventsFilePath = config.String(emitEventsFile)
	}
	if changed(cmd, "enabled") || emitEnabled {
		ov.Enabled = config.Bool(emitEnabled)
	}
	opts, err := config.Resolve(configPath, ov)
	if err != nil {
		return err
	}

	logger, level := logging.New(os.Stderr, opts.Debug)
	b := bridge.Enable(nil, opts, bridge.WithLogger(logger, level))
	defer b.Shutdown(context.Background())

	res, err := b.Emit(context.Background(), ev)
	if err != nil {
		return err
	}

	report := emitReport{
		EventID:    res.EventID,
		Skipped:    res.Skipped,
		HTTPStatus: res.HTTPStatus,
	}
	if rerr := res.Err(); rerr != nil {
		report.Error = rerr.Error()
	}
	data, _ := json.MarshalIndent(report, "", "  ")
	fmt.Fprintln(out, string(data))
	return nil
}
