package cli

import (
	"path/filepath"
	"testing"
)

// resetFlags restores every package-level flag and isolates the test from
// the user's config file and AGENTLENS_* variables.
func resetFlags(t *testing.T) string {
	t.Helper()
	for _, k := range []string{"AGENTLENS_ENABLED", "AGENTLENS_SERVER_URL", "AGENTLENS_EVENTS_FILE", "AGENTLENS_DEBUG", "AGENTLENS_CWD"} {
		t.Setenv(k, "")
	}
	dir := t.TempDir()
	t.Setenv("HOME", dir)

	configPath = filepath.Join(dir, ".agentlens", "config.yaml")
	debugLog = false

	relayServerURL, relayEventsFile, relayCwd = "", "", ""
	relayEnabled, relayWatch = false, false
	relayMetricsAddr, relayInput = "", ""

	emitServerURL, emitEventsFile, emitEnabled = "", "", false

	initForce, initEnable = false, false
	initServerURL, initEventsFile = "", ""

	tailLines = 10
	return dir
}
