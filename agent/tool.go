package agent

import (
	"fmt"
	"maps"
)

// ToolDefinition declares a callable capability exposed to the model.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
}

// ToolCall is requested by the assistant message and executed by ToolExecutor.
// ID is unique within a turn and correlates the eventual ToolResult.
type ToolCall struct {
	ID        string         `json:"id" cbor:"id"`
	Name      string         `json:"name" cbor:"name"`
	Arguments map[string]any `json:"arguments,omitempty" cbor:"arguments,omitempty"`
}

// ToolErrorKind classifies a failed tool execution for the model and for callers.
type ToolErrorKind string

const (
	ToolErrorKindValidation          ToolErrorKind = "validation_error"
	ToolErrorKindExecution           ToolErrorKind = "tool_execution_error"
	ToolErrorKindPlatformUnavailable ToolErrorKind = "platform_unavailable"
	ToolErrorKindInvalidHandle       ToolErrorKind = "invalid_handle"
	ToolErrorKindUnknownTool         ToolErrorKind = "unknown_tool"
)

// ToolResult is the normalized output produced by a tool execution.
//
// Content is what the model sees. Data holds the structured payload the Content
// was rendered from, for continuation policies and callers; it is not part of
// the persisted transcript.
type ToolResult struct {
	CallID    string         `json:"call_id"`
	Name      string         `json:"name"`
	Content   string         `json:"content"`
	IsError   bool           `json:"is_error,omitempty"`
	ErrorKind ToolErrorKind  `json:"error_kind,omitempty"`
	Retryable bool           `json:"retryable,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// ToolResultMessage converts a tool result to a transcript message.
func ToolResultMessage(result ToolResult) Message {
	return Message{
		Role:       RoleTool,
		Name:       result.Name,
		ToolCallID: result.CallID,
		Content:    result.Content,
	}
}

// ToolErrorResult builds the is_error result for a failed call, classifying err.
func ToolErrorResult(call ToolCall, err error) ToolResult {
	kind, retryable := ClassifyToolError(err)
	message := string(kind)
	if err != nil {
		message = fmt.Sprintf("%s: %s", kind, err.Error())
	}
	if retryable {
		message += " (transient failure, retry later)"
	}
	return ToolResult{
		CallID:    call.ID,
		Name:      call.Name,
		Content:   message,
		IsError:   true,
		ErrorKind: kind,
		Retryable: retryable,
	}
}

// CloneToolCall returns a deep copy of a tool call.
func CloneToolCall(in ToolCall) ToolCall {
	out := in
	if in.Arguments != nil {
		out.Arguments = make(map[string]any, len(in.Arguments))
		maps.Copy(out.Arguments, in.Arguments)
	}
	return out
}

// CloneToolResult returns a copy of a tool result with its own Data map.
func CloneToolResult(in ToolResult) ToolResult {
	out := in
	if in.Data != nil {
		out.Data = make(map[string]any, len(in.Data))
		maps.Copy(out.Data, in.Data)
	}
	return out
}

// CloneToolDefinitions returns copies of tool definitions with their own schema maps.
func CloneToolDefinitions(in []ToolDefinition) []ToolDefinition {
	out := make([]ToolDefinition, len(in))
	for i := range in {
		out[i] = in[i]
		if in[i].InputSchema != nil {
			out[i].InputSchema = make(map[string]any, len(in[i].InputSchema))
			maps.Copy(out[i].InputSchema, in[i].InputSchema)
		}
	}
	return out
}
