package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/agentlens/internal/config"
	"github.com/ppiankov/agentlens/internal/dispatch"
)

func init() {
	rootCmd.AddCommand(doctorCmd)
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration and reachability of the visualization server",
	RunE:  runDoctor,
}

type checkResult struct {
	label  string
	ok     bool
	detail string
	fix    string
}

func runDoctor(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	opts, err := config.Resolve(path, baseOverrides(cmd))
	checks := doctorChecks(path, opts, err)

	hasFailures := false
	for _, c := range checks {
		mark := "\u2713" // ✓
		if !c.ok {
			mark = "\u2717" // ✗
			hasFailures = true
		}
		line := fmt.Sprintf("%s %-20s %s", mark, c.label+":", c.detail)
		if !c.ok && c.fix != "" {
			line += fmt.Sprintf("  ->  %s", c.fix)
		}
		fmt.Println(line)
	}

	if hasFailures {
		fmt.Println()
		fmt.Println("Some checks failed. Run the suggested commands to fix.")
		return fmt.Errorf("doctor found issues")
	}

	fmt.Println()
	fmt.Println("All checks passed.")
	return nil
}

func doctorChecks(path string, opts config.Options, loadErr error) []checkResult {
	var checks []checkResult

	// 1. Config file.
	switch {
	case loadErr != nil:
		return append(checks, checkResult{
			label:  "config file",
			ok:     false,
			detail: loadErr.Error(),
			fix:    "agentlens init --force",
		})
	case fileExists(path):
		checks = append(checks, checkResult{label: "config file", ok: true, detail: path})
	default:
		checks = append(checks, checkResult{
			label:  "config file",
			ok:     true,
			detail: "not found, using defaults",
		})
	}

	// 2. Master switch.
	if opts.Enabled {
		checks = append(checks, checkResult{label: "forwarding", ok: true, detail: "enabled"})
	} else {
		checks = append(checks, checkResult{
			label:  "forwarding",
			ok:     false,
			detail: "disabled",
			fix:    "agentlens init --enable --force",
		})
	}

	// 3. Warnings from validation.
	for _, w := range opts.Validate() {
		checks = append(checks, checkResult{label: "config", ok: false, detail: w})
	}

	// 4. Server reachability.
	if opts.ServerURL != "" {
		checks = append(checks, checkServer(opts))
	}

	// 5. Events log writability.
	if opts.EventsFilePath != "" {
		checks = append(checks, checkEventsFile(opts.EventsFilePath))
	}
	return checks
}

// checkServer issues a GET bounded by the delivery timeout. Any HTTP answer
// counts as reachable; the endpoint only accepts POST.
func checkServer(opts config.Options) checkResult {
	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, opts.ServerURL, nil)
	if err != nil {
		return checkResult{label: "server", ok: false, detail: err.Error(), fix: "fix server_url in the config"}
	}
	resp, err := dispatch.NewHTTPClient(opts.Timeout).Do(req)
	if err != nil {
		return checkResult{
			label:  "server",
			ok:     false,
			detail: fmt.Sprintf("%s unreachable", opts.ServerURL),
			fix:    "start the visualization server",
		}
	}
	resp.Body.Close()
	return checkResult{label: "server", ok: true, detail: fmt.Sprintf("%s (HTTP %d)", opts.ServerURL, resp.StatusCode)}
}

func checkEventsFile(path string) checkResult {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return checkResult{label: "events log", ok: false, detail: err.Error()}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return checkResult{label: "events log", ok: false, detail: err.Error()}
	}
	f.Close()
	return checkResult{label: "events log", ok: true, detail: path + " writable"}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
