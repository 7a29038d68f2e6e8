package model

// EventType is the discriminator the visualization server groups on.
type EventType string

const (
	TypeSessionStart EventType = "session_start"
	TypeSessionStop  EventType = "stop"
	TypeToolPre      EventType = "pre_tool_use"
	TypeToolPost     EventType = "post_tool_use"
	TypePromptSubmit EventType = "user_prompt_submit"
	TypeNotification EventType = "notification"
)

// Header is the part every destination event carries.
// It is embedded so the fields serialize flat next to the variant's own.
type Header struct {
	ID        string    `json:"id"`
	Timestamp int64     `json:"timestamp"`
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionId"`
	Cwd       string    `json:"cwd"`
}

// DestinationEvent is a record shaped for the visualization server.
// The set of implementations is closed to this package.
type DestinationEvent interface {
	EventHeader() Header
	isDestination()
}

func (h Header) EventHeader() Header { return h }
func (Header) isDestination()        {}

// SessionStart marks the beginning of an agent run.
type SessionStart struct {
	Header
	Source string `json:"source"`
}

// SessionStop marks the end of an agent run.
type SessionStop struct {
	Header
	Response any `json:"response,omitempty"`
}

// ToolPre is emitted before a tool executes.
type ToolPre struct {
	Header
	Tool      string `json:"tool"`
	ToolInput any    `json:"toolInput"`
	ToolUseID string `json:"toolUseId"`
}

// ToolPost is emitted after a tool returns. Duration is nil when no
// matching ToolPre start was recorded; it is then omitted on the wire.
type ToolPost struct {
	Header
	Tool         string `json:"tool"`
	ToolInput    any    `json:"toolInput"`
	ToolResponse any    `json:"toolResponse"`
	ToolUseID    string `json:"toolUseId"`
	Success      bool   `json:"success"`
	Duration     *int64 `json:"duration,omitempty"`
}

// PromptSubmit carries a user prompt handed to the agent.
type PromptSubmit struct {
	Header
	Prompt string `json:"prompt"`
}

// NotificationKind values.
const (
	KindError = "error"
)

// Notification carries out-of-band messages such as agent errors.
type Notification struct {
	Header
	Message string `json:"message"`
	Kind    string `json:"kind"`
}
