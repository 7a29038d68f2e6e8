package model

import "fmt"

// Stream identifies which host runtime channel an event came from.
type Stream string

const (
	StreamLifecycle Stream = "lifecycle"
	StreamTool      Stream = "tool"
	StreamAssistant Stream = "assistant"
	StreamError     Stream = "error"
)

// Phases used by the lifecycle and tool streams.
const (
	PhaseStart  = "start"
	PhaseEnd    = "end"
	PhasePrompt = "prompt"
	PhasePre    = "pre"
	PhasePost   = "post"
)

// SourceEvent is one record from the agent runtime's event stream.
// It is consumed read-only; Data is never mutated by this module.
type SourceEvent struct {
	Stream     Stream         `json:"stream"`
	Phase      string         `json:"phase,omitempty"`
	Seq        int64          `json:"seq"`
	Timestamp  int64          `json:"ts"` // epoch milliseconds
	SessionKey string         `json:"sessionKey,omitempty"`
	RunID      string         `json:"runId,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

// SessionID resolves the id all destination events of one run are grouped
// under. The session key wins when present; the run id is the fallback.
func (e SourceEvent) SessionID() string {
	if e.SessionKey != "" {
		return e.SessionKey
	}
	return e.RunID
}

// PhaseName returns the explicit phase, falling back to data.phase.
func (e SourceEvent) PhaseName() string {
	if e.Phase != "" {
		return e.Phase
	}
	return e.String("phase")
}

// Has reports whether the payload carries key, even with a nil value.
func (e SourceEvent) Has(key string) bool {
	if e.Data == nil {
		return false
	}
	_, ok := e.Data[key]
	return ok
}

// Value returns the first present payload value among keys.
func (e SourceEvent) Value(keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := e.Data[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// String returns the first present payload value among keys as a string.
// Non-string scalars are formatted; missing keys yield "".
func (e SourceEvent) String(keys ...string) string {
	v, ok := e.Value(keys...)
	if !ok {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	case map[string]any, []any:
		return ""
	default:
		return fmt.Sprint(s)
	}
}
