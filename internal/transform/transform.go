// Package transform reshapes agent runtime events into visualization
// server events. It owns the correlation table that pairs a tool's pre and
// post events to compute the call's duration.
package transform

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ppiankov/agentlens/internal/model"
)

// ErrMalformedEvent marks a recognized event shape missing required fields.
var ErrMalformedEvent = errors.New("malformed source event")

const (
	sessionSource        = "startup"
	fallbackErrorMessage = "Agent error"
)

// CwdFunc reports the working directory at event build time.
type CwdFunc func() string

// ProcessCwd reads the process working directory on every call.
func ProcessCwd() string {
	wd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return wd
}

// StaticCwd always reports dir.
func StaticCwd(dir string) CwdFunc {
	return func() string { return dir }
}

// Config tunes a Transformer. Zero values select defaults.
type Config struct {
	Cwd        CwdFunc
	Now        func() time.Time
	PendingTTL time.Duration
	MaxPending int
}

// Transformer converts SourceEvents to DestinationEvents.
// It must be driven from a single goroutine.
type Transformer struct {
	cwd     CwdFunc
	now     func() time.Time
	pending *pendingTable
}

// New creates a Transformer with an empty correlation table.
func New(cfg Config) *Transformer {
	if cfg.Cwd == nil {
		cfg.Cwd = ProcessCwd
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Transformer{
		cwd:     cfg.Cwd,
		now:     cfg.Now,
		pending: newPendingTable(cfg.PendingTTL, cfg.MaxPending),
	}
}

// SetCwd replaces the working directory resolver.
func (t *Transformer) SetCwd(fn CwdFunc) {
	if fn == nil {
		fn = ProcessCwd
	}
	t.cwd = fn
}

// Pending returns the number of tool calls awaiting their post event.
func (t *Transformer) Pending() int {
	return t.pending.Len()
}

// Reset clears the correlation table.
func (t *Transformer) Reset() {
	t.pending.Clear()
}

// Transform maps one source event. A nil event with a nil error means the
// event has no visualization counterpart. Errors wrap ErrMalformedEvent.
func (t *Transformer) Transform(ev model.SourceEvent) (model.DestinationEvent, error) {
	switch ev.Stream {
	case model.StreamLifecycle:
		return t.lifecycle(ev)
	case model.StreamTool:
		return t.tool(ev)
	case model.StreamAssistant:
		return nil, nil
	case model.StreamError:
		return t.errorEvent(ev)
	default:
		return nil, nil
	}
}

func (t *Transformer) lifecycle(ev model.SourceEvent) (model.DestinationEvent, error) {
	phase := ev.PhaseName()
	switch phase {
	case model.PhaseStart, model.PhaseEnd, model.PhasePrompt:
	default:
		return nil, nil
	}

	h, err := t.header(ev, "")
	if err != nil {
		return nil, err
	}

	switch phase {
	case model.PhaseStart:
		h.Type = model.TypeSessionStart
		return model.SessionStart{Header: h, Source: sessionSource}, nil
	case model.PhaseEnd:
		h.Type = model.TypeSessionStop
		stop := model.SessionStop{Header: h}
		stop.Response, _ = ev.Value("result", "response")
		return stop, nil
	default:
		h.Type = model.TypePromptSubmit
		return model.PromptSubmit{Header: h, Prompt: ev.String("prompt")}, nil
	}
}

func (t *Transformer) tool(ev model.SourceEvent) (model.DestinationEvent, error) {
	phase := ev.PhaseName()
	if phase != model.PhasePre && phase != model.PhasePost {
		return nil, nil
	}

	h, err := t.header(ev, "")
	if err != nil {
		return nil, err
	}
	name := ev.String("name", "toolName")
	if name == "" {
		return nil, fmt.Errorf("%w: tool event seq %d has no tool name", ErrMalformedEvent, ev.Seq)
	}
	useID := ev.String("toolUseId", "toolCallId")
	if useID == "" {
		useID = ToolUseID(h.SessionID, ev.Seq)
	}
	input, _ := ev.Value("input", "args")

	if phase == model.PhasePre {
		h.Type = model.TypeToolPre
		t.pending.Start(useID, h.Timestamp, t.now())
		return model.ToolPre{Header: h, Tool: name, ToolInput: input, ToolUseID: useID}, nil
	}

	h.Type = model.TypeToolPost
	post := model.ToolPost{
		Header:    h,
		Tool:      name,
		ToolInput: input,
		ToolUseID: useID,
		Success:   !failed(ev),
	}
	post.ToolResponse, _ = ev.Value("result", "output")
	if start, ok := t.pending.Finish(useID); ok {
		d := h.Timestamp - start
		post.Duration = &d
	}
	return post, nil
}

func (t *Transformer) errorEvent(ev model.SourceEvent) (model.DestinationEvent, error) {
	h, err := t.header(ev, model.TypeNotification)
	if err != nil {
		return nil, err
	}
	return model.Notification{Header: h, Message: errorMessage(ev), Kind: model.KindError}, nil
}

// header fills the fields shared by every variant.
func (t *Transformer) header(ev model.SourceEvent, typ model.EventType) (model.Header, error) {
	sid := ev.SessionID()
	if sid == "" {
		return model.Header{}, fmt.Errorf("%w: %s event seq %d has neither session key nor run id",
			ErrMalformedEvent, ev.Stream, ev.Seq)
	}
	ts := ev.Timestamp
	if ts == 0 {
		ts = t.now().UnixMilli()
	}
	return model.Header{
		ID:        NewEventID(sid, ts),
		Timestamp: ts,
		Type:      typ,
		SessionID: sid,
		Cwd:       t.cwd(),
	}, nil
}

// failed reports a post whose payload carries an error key, null or not.
func failed(ev model.SourceEvent) bool {
	return ev.Has("error")
}

func errorMessage(ev model.SourceEvent) string {
	v, ok := ev.Value("error", "message")
	if !ok {
		return fallbackErrorMessage
	}
	switch e := v.(type) {
	case string:
		if e != "" {
			return e
		}
	case map[string]any:
		if msg, ok := e["message"].(string); ok && msg != "" {
			return msg
		}
	}
	return fallbackErrorMessage
}
