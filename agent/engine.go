package agent

import "context"

// Engine advances a conversation by one turn.
//
// The returned Messages must start with the input state's messages unchanged;
// engines only append.
type Engine interface {
	Execute(ctx context.Context, state ConversationState, input EngineInput) (EngineResult, error)
}

// EngineInput provides execution constraints and tool contracts.
type EngineInput struct {
	MaxSteps int
	Tools    []ToolDefinition
}

// StopReason records why a turn ended.
type StopReason string

const (
	// StopReasonFinalAnswer means the model answered without requesting tools.
	StopReasonFinalAnswer StopReason = "final_answer"
	// StopReasonDelegated means a continuation policy ended the turn after a
	// tool dispatch, without a further model call.
	StopReasonDelegated StopReason = "delegated"
)

// EngineResult is the outcome of one turn.
type EngineResult struct {
	Messages   []Message
	Output     string
	StopReason StopReason
	Steps      int
	// Outputs carries values a continuation policy surfaced to the caller, such as a run id.
	Outputs map[string]any
}
