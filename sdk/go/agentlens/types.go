package agentlens

import (
	"github.com/ppiankov/agentlens/internal/model"
	"github.com/ppiankov/agentlens/internal/transform"
)

// SourceEvent is one event from the agent runtime.
type SourceEvent = model.SourceEvent

// Stream names the channel a source event arrived on.
type Stream = model.Stream

const (
	StreamLifecycle = model.StreamLifecycle
	StreamTool      = model.StreamTool
	StreamAssistant = model.StreamAssistant
	StreamError     = model.StreamError
)

// Host is a subscribable runtime event stream. The returned function
// removes the subscription and must tolerate repeated calls.
type Host interface {
	Subscribe(func(SourceEvent)) (unsubscribe func())
}

// ErrMalformedEvent is wrapped by errors for events missing a session or
// tool name. Check with errors.Is.
var ErrMalformedEvent = transform.ErrMalformedEvent
