package agent

import "fmt"

// ValidateEvent checks event payload invariants before publish boundaries.
func ValidateEvent(event Event) error {
	if event.Type == "" {
		return fmt.Errorf("%w: field=type reason=empty", ErrEventInvalid)
	}
	if event.Step < 0 {
		return fmt.Errorf(
			"%w: field=step reason=negative value=%d type=%s thread_id=%q",
			ErrEventInvalid,
			event.Step,
			event.Type,
			event.ThreadID,
		)
	}

	switch event.Type {
	case EventTypeAssistantMessage:
		if event.Message == nil {
			return fmt.Errorf(
				"%w: field=message reason=nil type=%s thread_id=%q step=%d",
				ErrEventInvalid,
				event.Type,
				event.ThreadID,
				event.Step,
			)
		}
	case EventTypeToolCall:
		if event.ToolCall == nil {
			return fmt.Errorf(
				"%w: field=tool_call reason=nil type=%s thread_id=%q step=%d",
				ErrEventInvalid,
				event.Type,
				event.ThreadID,
				event.Step,
			)
		}
		if event.ToolCall.Name == "" {
			return fmt.Errorf(
				"%w: field=tool_call.name reason=empty type=%s thread_id=%q step=%d",
				ErrEventInvalid,
				event.Type,
				event.ThreadID,
				event.Step,
			)
		}
	case EventTypeToolResult:
		if event.ToolResult == nil {
			return fmt.Errorf(
				"%w: field=tool_result reason=nil type=%s thread_id=%q step=%d",
				ErrEventInvalid,
				event.Type,
				event.ThreadID,
				event.Step,
			)
		}
		if event.ToolResult.CallID == "" {
			return fmt.Errorf(
				"%w: field=tool_result.call_id reason=empty type=%s thread_id=%q step=%d",
				ErrEventInvalid,
				event.Type,
				event.ThreadID,
				event.Step,
			)
		}
	}

	return nil
}
