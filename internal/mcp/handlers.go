package mcp

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/agentlens/internal/bridge"
	"github.com/ppiankov/agentlens/internal/model"
)

// EmitInput is one source event as reported by the runtime.
type EmitInput struct {
	Stream     string         `json:"stream" jsonschema:"event stream: lifecycle, tool, assistant or error"`
	Phase      string         `json:"phase,omitempty" jsonschema:"sub-tag: start/end/prompt for lifecycle, pre/post for tool"`
	Seq        int64          `json:"seq,omitempty" jsonschema:"monotonic sequence number, assigned by the server when omitted"`
	Timestamp  int64          `json:"ts,omitempty" jsonschema:"epoch milliseconds, defaults to now"`
	SessionKey string         `json:"sessionKey,omitempty" jsonschema:"session key, preferred over runId for grouping"`
	RunID      string         `json:"runId,omitempty" jsonschema:"run id, used when sessionKey is empty"`
	Data       map[string]any `json:"data,omitempty" jsonschema:"payload: name, toolUseId, input, result, error, prompt"`
}

// EmitOutput reports what the event became.
type EmitOutput struct {
	Type    string `json:"type,omitempty"`
	EventID string `json:"event_id,omitempty"`
	Dropped bool   `json:"dropped,omitempty"`
	Error   string `json:"error,omitempty"`
}

// StatusInput is empty.
type StatusInput struct{}

// StatusOutput is the bridge's point-in-time view.
type StatusOutput = bridge.Stats

func (s *Server) handleEmit(ctx context.Context, req *mcpsdk.CallToolRequest, input EmitInput) (*mcpsdk.CallToolResult, EmitOutput, error) {
	ev := model.SourceEvent{
		Stream:     model.Stream(input.Stream),
		Phase:      input.Phase,
		Seq:        input.Seq,
		Timestamp:  input.Timestamp,
		SessionKey: input.SessionKey,
		RunID:      input.RunID,
		Data:       input.Data,
	}
	if ev.Seq == 0 {
		ev.Seq = s.nextSeq()
	}

	out, err := s.bridge.Handle(ev)
	if err != nil {
		return &mcpsdk.CallToolResult{IsError: true}, EmitOutput{Dropped: true, Error: err.Error()}, nil
	}
	if out == nil {
		return nil, EmitOutput{Dropped: true}, nil
	}
	h := out.EventHeader()
	return nil, EmitOutput{Type: string(h.Type), EventID: h.ID}, nil
}

func (s *Server) handleStatus(ctx context.Context, req *mcpsdk.CallToolRequest, input StatusInput) (*mcpsdk.CallToolResult, StatusOutput, error) {
	return nil, s.bridge.Stats(), nil
}
