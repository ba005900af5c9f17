package agent

import (
	"context"
	"errors"
)

var (
	// ErrValidation marks bad tool arguments or malformed caller input.
	ErrValidation = errors.New("validation error")
	// ErrToolExecution marks an external call made by a tool that failed.
	ErrToolExecution = errors.New("tool execution error")
	// ErrUnknownTool is returned when a tool call names no registered tool.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrPlatformUnavailable marks a transient failure of the job platform or a store.
	// Callers may retry.
	ErrPlatformUnavailable = errors.New("platform unavailable")
	// ErrInvalidHandle marks an unknown or expired run id. It is not retryable.
	ErrInvalidHandle = errors.New("invalid job handle")
	// ErrLLMUnavailable is returned when the model call fails and the turn cannot proceed.
	ErrLLMUnavailable = errors.New("llm unavailable")
	// ErrPersistence marks a failed checkpoint or step log write.
	ErrPersistence = errors.New("persistence error")

	// ErrThreadNotFound is returned by checkpoint stores when a thread id has no checkpoint.
	ErrThreadNotFound = errors.New("thread not found")
	// ErrCheckpointConflict is returned when a save is based on a stale checkpoint version.
	ErrCheckpointConflict = errors.New("checkpoint version conflict")
	// ErrMaxStepsExceeded is returned when the loop reaches its step budget.
	ErrMaxStepsExceeded = errors.New("tool-calling loop exceeded max steps")
	// ErrEngineOutputContractViolation is returned when an engine rewrites prior history.
	ErrEngineOutputContractViolation = errors.New("engine output contract violation")
	// ErrEventInvalid is returned when an event misses fields required by its type.
	ErrEventInvalid = errors.New("event is invalid")
	// ErrContextNil is returned when a nil context is passed to a blocking call.
	ErrContextNil = errors.New("context is nil")

	ErrMissingIDGenerator  = errors.New("missing id generator")
	ErrMissingCheckpointer = errors.New("missing checkpoint store")
	ErrMissingEngine       = errors.New("missing engine")
	ErrInvalidThreadID     = errors.New("invalid thread id")
)

// ClassifyToolError maps a tool failure to its error kind and whether the model
// should be told the failure is transient.
func ClassifyToolError(err error) (ToolErrorKind, bool) {
	switch {
	case errors.Is(err, ErrValidation):
		return ToolErrorKindValidation, false
	case errors.Is(err, ErrUnknownTool):
		return ToolErrorKindUnknownTool, false
	case errors.Is(err, ErrInvalidHandle):
		return ToolErrorKindInvalidHandle, false
	case errors.Is(err, ErrPlatformUnavailable):
		return ToolErrorKindPlatformUnavailable, true
	default:
		return ToolErrorKindExecution, false
	}
}

// ContextCancellationError returns ctx's error when ctx is done, and nil
// otherwise. A deadline or cancellation inside a callee whose ctx is still live
// (an HTTP client timeout, say) is a dependency failure, not a cancellation.
func ContextCancellationError(ctx context.Context, _ error) error {
	return ctx.Err()
}
