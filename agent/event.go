package agent

// EventType names a loop transition.
type EventType string

const (
	EventTypeAssistantMessage EventType = "assistant_message"
	EventTypeToolCall         EventType = "tool_call"
	EventTypeToolResult       EventType = "tool_result"
	EventTypeCompleted        EventType = "completed"
	EventTypeFailed           EventType = "failed"
)

// Event is intentionally compact so adapters can map it to logs, step logs, or streams.
// ThreadID is empty for loops that run outside a conversation thread.
type Event struct {
	ThreadID    ThreadID    `json:"thread_id,omitempty"`
	Step        int         `json:"step"`
	Type        EventType   `json:"type"`
	Message     *Message    `json:"message,omitempty"`
	ToolCall    *ToolCall   `json:"tool_call,omitempty"`
	ToolResult  *ToolResult `json:"tool_result,omitempty"`
	Description string      `json:"description,omitempty"`
}

// CloneEvent returns a deep copy of an event.
func CloneEvent(in Event) Event {
	out := in
	if in.Message != nil {
		message := CloneMessage(*in.Message)
		out.Message = &message
	}
	if in.ToolCall != nil {
		call := CloneToolCall(*in.ToolCall)
		out.ToolCall = &call
	}
	if in.ToolResult != nil {
		result := CloneToolResult(*in.ToolResult)
		out.ToolResult = &result
	}
	return out
}
