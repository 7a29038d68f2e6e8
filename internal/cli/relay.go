package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/ppiankov/agentlens/internal/bridge"
	"github.com/ppiankov/agentlens/internal/config"
	"github.com/ppiankov/agentlens/internal/hostbus"
	"github.com/ppiankov/agentlens/internal/logging"
)

var (
	relayServerURL   string
	relayEventsFile  string
	relayCwd         string
	relayEnabled     bool
	relayMetricsAddr string
	relayWatch       bool
	relayInput       string
)

func init() {
	rootCmd.AddCommand(relayCmd)
	relayCmd.Flags().StringVar(&relayServerURL, "server-url", "", "Visualization server endpoint (default "+config.DefaultServerURL+")")
	relayCmd.Flags().StringVar(&relayEventsFile, "events-file", "", "Also append events as NDJSON to this file")
	relayCmd.Flags().StringVar(&relayCwd, "cwd", "", "Working directory reported on events (default: process cwd)")
	relayCmd.Flags().BoolVar(&relayEnabled, "enabled", false, "Turn forwarding on regardless of config")
	relayCmd.Flags().StringVar(&relayMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9464)")
	relayCmd.Flags().BoolVar(&relayWatch, "watch", false, "Reload the config file when it changes")
	relayCmd.Flags().StringVar(&relayInput, "input", "", "Read events from this file instead of stdin")
}

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Forward a stream of runtime events",
	Long: "Reads newline-delimited source events from stdin (or --input) and forwards\n" +
		"each one until EOF or SIGINT/SIGTERM. In-flight deliveries get one delivery\n" +
		"timeout to finish on shutdown.",
	RunE: runRelay,
}

// relayOverrides collects the flags that were set explicitly.
func relayOverrides(cmd *cobra.Command) config.Overrides {
	ov := baseOverrides(cmd)
	if changed(cmd, "server-url") || relayServerURL != "" {
		ov.ServerURL = config.String(relayServerURL)
	}
	if changed(cmd, "events-file") || relayEventsFile != "" {
		ov.EventsFilePath = config.String(relayEventsFile)
	}
	if changed(cmd, "cwd") || relayCwd != "" {
		ov.Cwd = config.String(relayCwd)
	}
	if changed(cmd, "enabled") || relayEnabled {
		ov.Enabled = config.Bool(relayEnabled)
	}
	return ov
}

func runRelay(cmd *cobra.Command, args []string) error {
	ov := relayOverrides(cmd)
	opts, err := config.Resolve(configPath, ov)
	if err != nil {
		return err
	}

	in := io.Reader(os.Stdin)
	if relayInput != "" {
		f, err := os.Open(relayInput)
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		in = f
	}

	logger, level := logging.New(os.Stderr, opts.Debug)
	bus := hostbus.NewBus()
	b := bridge.Enable(bus, opts, bridge.WithLogger(logger, level))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\nShutting down relay...")
			cancel()
		case <-ctx.Done():
		}
	}()

	if relayMetricsAddr != "" {
		srv := startMetrics(relayMetricsAddr)
		defer srv.Close()
		fmt.Fprintf(os.Stderr, "metrics on %s/metrics\n", relayMetricsAddr)
	}

	if relayWatch {
		w, err := config.NewWatcher(configPath, ov, b.Reconfigure, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: config reload disabled: %v\n", err)
		} else {
			go w.Run(ctx)
		}
	}

	if !opts.Enabled {
		fmt.Fprintln(os.Stderr, "agentlens forwarding is disabled (use --enabled or set enabled: true)")
	}

	reader := hostbus.NewReader(in, bus, logger)
	n, pumpErr := pump(ctx, reader)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), opts.Timeout+time.Second)
	defer shutdownCancel()
	if err := b.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v while waiting for deliveries\n", err)
	}

	st := b.Stats()
	fmt.Fprintf(os.Stderr, "relayed %d events: %d forwarded, %d dropped (%d malformed)\n",
		n, st.Transformed, st.Dropped, st.Malformed)
	return pumpErr
}

// pump runs the reader until EOF or ctx is cancelled. A reader blocked on
// stdin is abandoned on cancel; the count is what it published until then.
func pump(ctx context.Context, r *hostbus.Reader) (int, error) {
	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := r.Pump(ctx)
		done <- result{n, err}
	}()
	select {
	case res := <-done:
		return res.n, res.err
	case <-ctx.Done():
		return r.Published(), nil
	}
}

func startMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "warning: metrics server: %v\n", err)
		}
	}()
	return srv
}
