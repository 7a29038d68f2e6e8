package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/agentlens/internal/hostbus"
	"github.com/ppiankov/agentlens/internal/logging"
)

type capture struct {
	mu    sync.Mutex
	types []string
	posts []map[string]any
}

func newCapture(t *testing.T) (*capture, *httptest.Server) {
	t.Helper()
	c := &capture{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var m map[string]any
		json.NewDecoder(r.Body).Decode(&m)
		c.mu.Lock()
		c.posts = append(c.posts, m)
		c.types = append(c.types, m["type"].(string))
		c.mu.Unlock()
	}))
	t.Cleanup(srv.Close)
	return c, srv
}

const relayStream = `{"stream":"lifecycle","phase":"start","runId":"run-1","ts":1000}
{"stream":"tool","phase":"pre","runId":"run-1","ts":1100,"data":{"name":"bash","toolUseId":"t1","input":{"cmd":"ls"}}}
not a json line
{"stream":"assistant","runId":"run-1","ts":1200,"data":{"text":"thinking"}}
{"stream":"tool","phase":"post","runId":"run-1","ts":1350,"data":{"name":"bash","toolUseId":"t1","result":"ok"}}
{"stream":"lifecycle","phase":"end","runId":"run-1","ts":1500}
`

func TestRunRelayForwardsStream(t *testing.T) {
	dir := resetFlags(t)
	c, srv := newCapture(t)

	relayInput = filepath.Join(dir, "in.ndjson")
	if err := os.WriteFile(relayInput, []byte(relayStream), 0o600); err != nil {
		t.Fatal(err)
	}
	relayEnabled = true
	relayServerURL = srv.URL
	relayEventsFile = filepath.Join(dir, "events.ndjson")
	relayCwd = "/work/repo"

	if err := runRelay(nil, nil); err != nil {
		t.Fatalf("runRelay: %v", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.posts) != 4 {
		t.Fatalf("expected 4 posts, got %d: %v", len(c.posts), c.types)
	}
	var post map[string]any
	for _, p := range c.posts {
		if p["type"] == "post_tool_use" {
			post = p
		}
		if p["cwd"] != "/work/repo" {
			t.Errorf("expected cwd /work/repo, got %v", p["cwd"])
		}
	}
	if post == nil {
		t.Fatalf("no post_tool_use among %v", c.types)
	}
	if post["duration"] != float64(250) {
		t.Errorf("expected duration 250, got %v", post["duration"])
	}

	data, err := os.ReadFile(relayEventsFile)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Count(string(data), "\n"); got != 4 {
		t.Errorf("expected 4 lines in events log, got %d", got)
	}
}

func TestRunRelayDisabledSendsNothing(t *testing.T) {
	dir := resetFlags(t)
	c, srv := newCapture(t)

	relayInput = filepath.Join(dir, "in.ndjson")
	if err := os.WriteFile(relayInput, []byte(relayStream), 0o600); err != nil {
		t.Fatal(err)
	}
	relayServerURL = srv.URL

	if err := runRelay(nil, nil); err != nil {
		t.Fatalf("runRelay: %v", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.posts) != 0 {
		t.Errorf("expected no posts while disabled, got %d", len(c.posts))
	}
}

func TestRunRelayMissingInput(t *testing.T) {
	dir := resetFlags(t)
	relayInput = filepath.Join(dir, "missing.ndjson")
	if err := runRelay(nil, nil); err == nil {
		t.Fatal("expected error for missing input file")
	}
}

func TestEmitFromReportsDelivery(t *testing.T) {
	resetFlags(t)
	c, srv := newCapture(t)
	emitEnabled = true
	emitServerURL = srv.URL

	var out bytes.Buffer
	in := strings.NewReader(`{"stream":"lifecycle","phase":"prompt","sessionKey":"s1","data":{"prompt":"hi"}}`)
	if err := emitFrom(nil, in, &out); err != nil {
		t.Fatal(err)
	}

	var report emitReport
	if err := json.Unmarshal(out.Bytes(), &report); err != nil {
		t.Fatalf("report is not JSON: %v\n%s", err, out.String())
	}
	if report.HTTPStatus != http.StatusOK || report.Error != "" {
		t.Errorf("unexpected report: %+v", report)
	}
	if !strings.HasPrefix(report.EventID, "s1-") {
		t.Errorf("unexpected event id %q", report.EventID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.types) != 1 || c.types[0] != "user_prompt_submit" {
		t.Errorf("expected one user_prompt_submit, got %v", c.types)
	}
}

func TestEmitFromMalformed(t *testing.T) {
	resetFlags(t)
	emitEnabled = true
	emitServerURL = ""

	var out bytes.Buffer
	err := emitFrom(nil, strings.NewReader(`{"stream":"tool","phase":"pre","runId":"r"}`), &out)
	if err == nil {
		t.Fatal("expected malformed event error")
	}
}

func TestEmitFromUnreachableServerIsReported(t *testing.T) {
	resetFlags(t)
	emitEnabled = true
	emitServerURL = "http://127.0.0.1:1/event"

	var out bytes.Buffer
	if err := emitFrom(nil, strings.NewReader(`{"stream":"lifecycle","phase":"start","runId":"r"}`), &out); err != nil {
		t.Fatalf("delivery failure must not be an error: %v", err)
	}
	if !strings.Contains(out.String(), `"error"`) {
		t.Errorf("expected error in report, got %s", out.String())
	}
}

func TestPumpCountsEventsBeforeCancel(t *testing.T) {
	pr, pw := io.Pipe()
	t.Cleanup(func() { pw.Close() })

	r := hostbus.NewReader(pr, hostbus.NewBus(), logging.Discard())
	go func() {
		pw.Write([]byte(`{"stream":"lifecycle","phase":"start","runId":"r"}` + "\n"))
		pw.Write([]byte(`{"stream":"lifecycle","phase":"end","runId":"r"}` + "\n"))
	}()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		deadline := time.Now().Add(3 * time.Second)
		for r.Published() < 2 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		cancel()
	}()

	// The reader stays blocked on the open pipe, so only cancel ends pump.
	n, err := pump(ctx, r)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("expected 2 events counted after cancel, got %d", n)
	}
}
