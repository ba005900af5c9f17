package agent

import "context"

// ModelRequest is the minimal LLM input contract required by the loop.
type ModelRequest struct {
	Messages []Message
	Tools    []ToolDefinition
}

// Model produces assistant messages that may include tool calls.
type Model interface {
	Generate(ctx context.Context, request ModelRequest) (Message, error)
}

// ToolExecutor resolves and executes tool calls.
type ToolExecutor interface {
	Execute(ctx context.Context, call ToolCall) (ToolResult, error)
}

// CheckpointStore persists and reloads conversation state by thread id.
// Load returns ErrThreadNotFound for a thread that was never saved.
// Save uses optimistic concurrency based on ConversationState.Version and bumps it by one on success.
type CheckpointStore interface {
	Load(ctx context.Context, threadID ThreadID) (ConversationState, error)
	Save(ctx context.Context, state ConversationState) error
}

// EventSink observes loop transitions.
type EventSink interface {
	Publish(ctx context.Context, event Event) error
}

// IDGenerator creates thread ids at the runtime boundary.
type IDGenerator interface {
	NewThreadID(ctx context.Context) (ThreadID, error)
}
