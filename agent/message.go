package agent

// Role identifies the author of a message in the conversation transcript.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry of a conversation transcript.
//
// Assistant messages may carry tool call requests; tool messages answer exactly
// one of those requests through ToolCallID.
type Message struct {
	Role       Role       `json:"role" cbor:"role"`
	Content    string     `json:"content,omitempty" cbor:"content,omitempty"`
	Name       string     `json:"name,omitempty" cbor:"name,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty" cbor:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty" cbor:"tool_calls,omitempty"`
}

// CloneMessage returns a deep copy suitable for isolation across component boundaries.
func CloneMessage(in Message) Message {
	out := in
	if len(in.ToolCalls) > 0 {
		out.ToolCalls = make([]ToolCall, len(in.ToolCalls))
		for i := range in.ToolCalls {
			out.ToolCalls[i] = CloneToolCall(in.ToolCalls[i])
		}
	}
	return out
}

// CloneMessages returns deep copies of all messages.
func CloneMessages(in []Message) []Message {
	if in == nil {
		return nil
	}
	out := make([]Message, len(in))
	for i := range in {
		out[i] = CloneMessage(in[i])
	}
	return out
}
