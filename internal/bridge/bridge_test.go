package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/agentlens/internal/config"
	"github.com/ppiankov/agentlens/internal/dispatch"
	"github.com/ppiankov/agentlens/internal/hostbus"
	"github.com/ppiankov/agentlens/internal/model"
	"github.com/ppiankov/agentlens/internal/transform"
)

// recorder is a visualization server stand-in that keeps every body.
type recorder struct {
	mu     sync.Mutex
	events []map[string]any
	srv    *httptest.Server
}

func newRecorder(t *testing.T, status int) *recorder {
	t.Helper()
	r := &recorder{}
	r.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var m map[string]any
		json.NewDecoder(req.Body).Decode(&m)
		r.mu.Lock()
		r.events = append(r.events, m)
		r.mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(r.srv.Close)
	return r
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *recorder) byType(typ string) []map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []map[string]any
	for _, e := range r.events {
		if e["type"] == typ {
			out = append(out, e)
		}
	}
	return out
}

func enabledOpts(url string) config.Options {
	opts := config.Defaults()
	opts.Enabled = true
	opts.ServerURL = url
	opts.Cwd = "/work/repo"
	return opts
}

func shutdown(t *testing.T, b *Bridge) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestEndToEndThroughHostStream(t *testing.T) {
	rec := newRecorder(t, http.StatusOK)
	bus := hostbus.NewBus()
	b := Enable(bus, enabledOpts(rec.srv.URL))

	bus.Publish(model.SourceEvent{Stream: model.StreamLifecycle, Phase: model.PhaseStart, Seq: 1, Timestamp: 900, RunID: "run-1"})
	bus.Publish(model.SourceEvent{Stream: model.StreamTool, Phase: model.PhasePre, Seq: 2, Timestamp: 1000, RunID: "run-1",
		Data: map[string]any{"name": "bash", "toolUseId": "t1"}})
	bus.Publish(model.SourceEvent{Stream: model.StreamAssistant, Seq: 3, Timestamp: 1200, RunID: "run-1"})
	bus.Publish(model.SourceEvent{Stream: model.StreamTool, Phase: model.PhasePost, Seq: 4, Timestamp: 1450, RunID: "run-1",
		Data: map[string]any{"name": "bash", "toolUseId": "t1", "result": "ok"}})
	bus.Publish(model.SourceEvent{Stream: model.StreamLifecycle, Phase: model.PhaseEnd, Seq: 5, Timestamp: 1500, RunID: "run-1",
		Data: map[string]any{"result": "done"}})
	shutdown(t, b)

	if rec.count() != 4 {
		t.Fatalf("expected 4 deliveries, got %d", rec.count())
	}
	posts := rec.byType("post_tool_use")
	if len(posts) != 1 || posts[0]["duration"] != float64(450) {
		t.Errorf("expected post_tool_use with duration 450, got %v", posts)
	}
	stops := rec.byType("stop")
	if len(stops) != 1 || stops[0]["response"] != "done" {
		t.Errorf("expected stop with response done, got %v", stops)
	}
	for _, typ := range []string{"session_start", "pre_tool_use"} {
		evs := rec.byType(typ)
		if len(evs) != 1 {
			t.Fatalf("expected one %s, got %d", typ, len(evs))
		}
		if evs[0]["sessionId"] != "run-1" || evs[0]["cwd"] != "/work/repo" {
			t.Errorf("%s: unexpected header %v", typ, evs[0])
		}
	}
}

func TestHandleReturnsMalformedError(t *testing.T) {
	b := Enable(nil, enabledOpts(""))
	defer shutdown(t, b)

	_, err := b.Handle(model.SourceEvent{Stream: model.StreamTool, Phase: model.PhasePre, RunID: "r"})
	if !errors.Is(err, transform.ErrMalformedEvent) {
		t.Fatalf("expected malformed error, got %v", err)
	}
	if s := b.Stats(); s.Malformed != 1 || s.Dropped != 1 {
		t.Errorf("expected malformed counted, got %+v", s)
	}
}

func TestMalformedEventOnStreamDoesNotStopProcessing(t *testing.T) {
	rec := newRecorder(t, http.StatusOK)
	bus := hostbus.NewBus()
	b := Enable(bus, enabledOpts(rec.srv.URL))

	bus.Publish(model.SourceEvent{Stream: model.StreamLifecycle, Phase: model.PhaseStart})
	bus.Publish(model.SourceEvent{Stream: model.StreamError, RunID: "r", Data: map[string]any{"error": "boom"}})
	shutdown(t, b)

	notes := rec.byType("notification")
	if len(notes) != 1 || notes[0]["message"] != "boom" || notes[0]["kind"] != "error" {
		t.Errorf("expected error notification after malformed event, got %v", notes)
	}
}

func TestDisabledPerformsNoDelivery(t *testing.T) {
	rec := newRecorder(t, http.StatusOK)
	path := filepath.Join(t.TempDir(), "events.jsonl")
	opts := enabledOpts(rec.srv.URL)
	opts.Enabled = false
	opts.EventsFilePath = path

	bus := hostbus.NewBus()
	b := Enable(bus, opts)
	bus.Publish(model.SourceEvent{Stream: model.StreamLifecycle, Phase: model.PhaseStart, RunID: "r"})
	bus.Publish(model.SourceEvent{Stream: model.StreamTool, Phase: model.PhasePre, RunID: "r",
		Data: map[string]any{"name": "bash", "toolUseId": "t"}})
	res, err := b.Emit(context.Background(), model.SourceEvent{Stream: model.StreamError, RunID: "r"})
	shutdown(t, b)

	if err != nil || !res.Skipped {
		t.Errorf("expected skipped emit, got %+v, %v", res, err)
	}
	if rec.count() != 0 {
		t.Errorf("expected zero network calls, got %d", rec.count())
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected no file writes, stat err=%v", err)
	}
	if s := b.Stats(); s.Received != 0 || s.Pending != 0 {
		t.Errorf("expected disabled bridge to ignore events, got %+v", s)
	}
}

func TestTeardownTwiceClearsTable(t *testing.T) {
	bus := hostbus.NewBus()
	b := Enable(bus, enabledOpts(""))

	bus.Publish(model.SourceEvent{Stream: model.StreamTool, Phase: model.PhasePre, RunID: "r",
		Data: map[string]any{"name": "bash", "toolUseId": "t1"}})
	if b.Stats().Pending != 1 {
		t.Fatalf("expected 1 pending tool call, got %d", b.Stats().Pending)
	}

	b.Teardown()
	b.Teardown()

	if b.Stats().Pending != 0 {
		t.Errorf("expected empty correlation table, got %d", b.Stats().Pending)
	}
	if bus.Len() != 0 {
		t.Errorf("expected unsubscribed, got %d subscriptions", bus.Len())
	}

	bus.Publish(model.SourceEvent{Stream: model.StreamLifecycle, Phase: model.PhaseStart, RunID: "r"})
	if b.Stats().Received != 1 {
		t.Errorf("expected no events handled after teardown, got %d", b.Stats().Received)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := b.Shutdown(ctx); err != nil {
		t.Errorf("shutdown after teardown: %v", err)
	}
}

func TestShutdownDuringHandleStartsNoLateDelivery(t *testing.T) {
	rec := newRecorder(t, http.StatusOK)
	var delivered atomic.Int64
	b := Enable(nil, enabledOpts(rec.srv.URL),
		WithDispatchOptions(dispatch.WithObserver(func(dispatch.Result) { delivered.Add(1) })))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				b.Handle(model.SourceEvent{Stream: model.StreamLifecycle, Phase: model.PhaseStart,
					RunID: "r", Seq: int64(i*100 + j)})
			}
		}(i)
	}

	shutdown(t, b)
	after := delivered.Load()
	wg.Wait()
	time.Sleep(50 * time.Millisecond)

	if got := delivered.Load(); got != after {
		t.Errorf("deliveries finished after shutdown returned: %d then %d", after, got)
	}
	if out, err := b.Handle(model.SourceEvent{Stream: model.StreamLifecycle, Phase: model.PhaseStart, RunID: "r"}); out != nil || err != nil {
		t.Errorf("expected closed bridge to ignore events, got %v, %v", out, err)
	}
}

func TestIndependentBridgesDoNotShareCorrelation(t *testing.T) {
	a := Enable(nil, enabledOpts(""))
	b := Enable(nil, enabledOpts(""))
	defer shutdown(t, a)
	defer shutdown(t, b)

	a.Handle(model.SourceEvent{Stream: model.StreamTool, Phase: model.PhasePre, RunID: "r", Timestamp: 100,
		Data: map[string]any{"name": "bash", "toolUseId": "t1"}})

	out, err := b.Handle(model.SourceEvent{Stream: model.StreamTool, Phase: model.PhasePost, RunID: "r", Timestamp: 200,
		Data: map[string]any{"name": "bash", "toolUseId": "t1"}})
	if err != nil {
		t.Fatal(err)
	}
	if out.(model.ToolPost).Duration != nil {
		t.Error("expected second bridge not to see the first bridge's start time")
	}
	if a.Stats().Pending != 1 {
		t.Errorf("expected first bridge to keep its entry, got %d", a.Stats().Pending)
	}
}

func TestEmitDeliversBeforeReturning(t *testing.T) {
	rec := newRecorder(t, http.StatusOK)
	b := Enable(nil, enabledOpts(rec.srv.URL))
	defer shutdown(t, b)

	res, err := b.Emit(context.Background(), model.SourceEvent{Stream: model.StreamLifecycle, Phase: model.PhaseStart, RunID: "r"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Err() != nil || res.HTTPStatus != http.StatusOK {
		t.Errorf("expected successful delivery, got %+v", res)
	}
	if rec.count() != 1 {
		t.Errorf("expected delivery completed on return, got %d", rec.count())
	}
}

func TestEmitSwallowsServerError(t *testing.T) {
	rec := newRecorder(t, http.StatusInternalServerError)
	b := Enable(nil, enabledOpts(rec.srv.URL))
	defer shutdown(t, b)

	res, err := b.Emit(context.Background(), model.SourceEvent{Stream: model.StreamLifecycle, Phase: model.PhaseStart, RunID: "r"})
	if err != nil {
		t.Fatalf("expected delivery failure not to surface as error, got %v", err)
	}
	if res.HTTPErr == nil {
		t.Error("expected failure recorded in result")
	}
}

func TestReconfigureSwitchesOnAndKeepsTable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.jsonl")

	var mu sync.Mutex
	var results []dispatch.Result
	observe := dispatch.WithObserver(func(r dispatch.Result) {
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
	})

	b := Enable(nil, enabledOpts(""), WithDispatchOptions(observe))
	b.Handle(model.SourceEvent{Stream: model.StreamTool, Phase: model.PhasePre, RunID: "r", Timestamp: 100,
		Data: map[string]any{"name": "bash", "toolUseId": "t1"}})

	next := enabledOpts("")
	next.EventsFilePath = path
	next.Cwd = "/elsewhere"
	b.Reconfigure(next)

	out, _ := b.Handle(model.SourceEvent{Stream: model.StreamTool, Phase: model.PhasePost, RunID: "r", Timestamp: 175,
		Data: map[string]any{"name": "bash", "toolUseId": "t1"}})
	shutdown(t, b)

	post := out.(model.ToolPost)
	if post.Duration == nil || *post.Duration != 75 {
		t.Errorf("expected duration across reload, got %v", post.Duration)
	}
	if post.Cwd != "/elsewhere" {
		t.Errorf("expected new cwd, got %s", post.Cwd)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), `"post_tool_use"`) {
		t.Errorf("expected post event in new events file, got %q", data)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(results) != 2 {
		t.Errorf("expected 2 delivery results, got %d", len(results))
	}
}

func TestEnableWithClock(t *testing.T) {
	b := Enable(nil, enabledOpts(""), WithClock(func() time.Time { return time.UnixMilli(42) }))
	defer shutdown(t, b)

	out, _ := b.Handle(model.SourceEvent{Stream: model.StreamLifecycle, Phase: model.PhaseStart, RunID: "r"})
	if out.EventHeader().Timestamp != 42 {
		t.Errorf("expected clock timestamp 42, got %d", out.EventHeader().Timestamp)
	}
}
