package agentreact

import (
	"context"
	"fmt"
	"maps"

	"golang.org/x/sync/errgroup"

	"github.com/Gurpartap/jobagent/agent"
)

const DefaultMaxSteps = 8

// Config wires a Loop.
type Config struct {
	Model agent.Model
	Tools agent.ToolExecutor
	// Events observes every transition. Optional.
	Events agent.EventSink
	// Policy is consulted after each dispatch pass. Defaults to AlwaysContinue.
	Policy ContinuationPolicy
	// Parallel executes the tool calls of one assistant message concurrently.
	Parallel bool
}

// Loop executes the tool-calling cycle:
// model -> tool calls -> tool observations -> model -> ...
//
// The same Loop type drives the conversational agent and the background
// worker; they differ only in tools, policy and observer.
type Loop struct {
	model    agent.Model
	tools    agent.ToolExecutor
	events   agent.EventSink
	policy   ContinuationPolicy
	parallel bool
}

var _ agent.Engine = (*Loop)(nil)

func New(cfg Config) (*Loop, error) {
	if cfg.Model == nil {
		return nil, fmt.Errorf("new loop: %w", ErrMissingModel)
	}
	if cfg.Tools == nil {
		return nil, fmt.Errorf("new loop: %w", ErrMissingToolExecutor)
	}
	events := cfg.Events
	if events == nil {
		events = noopEventSink{}
	}
	policy := cfg.Policy
	if policy == nil {
		policy = AlwaysContinue
	}
	return &Loop{
		model:    cfg.Model,
		tools:    cfg.Tools,
		events:   events,
		policy:   policy,
		parallel: cfg.Parallel,
	}, nil
}

// Execute runs one turn starting in AWAIT_LLM. The returned messages extend
// state.Messages and are never persisted by the loop itself.
//
// Tool failures become is_error results and the loop continues. A failed model
// call aborts the turn with ErrLLMUnavailable.
func (l *Loop) Execute(ctx context.Context, state agent.ConversationState, input agent.EngineInput) (agent.EngineResult, error) {
	if ctx == nil {
		return agent.EngineResult{}, agent.ErrContextNil
	}
	maxSteps := input.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	defined := indexToolDefinitions(input.Tools)
	messages := agent.CloneMessages(state.Messages)
	// Call ids are unique across the whole turn, not only within one message.
	turnCallIDs := make(map[string]int)

	for step := 1; step <= maxSteps; step++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return l.fail(ctx, state.ThreadID, step, ctxErr)
		}

		// AWAIT_LLM
		assistant, err := l.model.Generate(ctx, agent.ModelRequest{
			Messages: agent.CloneMessages(messages),
			Tools:    agent.CloneToolDefinitions(input.Tools),
		})
		if err != nil {
			if cancellationErr := agent.ContextCancellationError(ctx, err); cancellationErr != nil {
				return l.fail(ctx, state.ThreadID, step, cancellationErr)
			}
			return l.fail(ctx, state.ThreadID, step, fmt.Errorf("%w: %w", agent.ErrLLMUnavailable, err))
		}
		assistant.Role = agent.RoleAssistant
		if err := validateToolCallShape(assistant.ToolCalls, turnCallIDs, step); err != nil {
			return l.fail(ctx, state.ThreadID, step, err)
		}
		messages = append(messages, agent.CloneMessage(assistant))
		l.publish(ctx, agent.Event{
			ThreadID: state.ThreadID,
			Step:     step,
			Type:     agent.EventTypeAssistantMessage,
			Message:  &assistant,
		})

		if len(assistant.ToolCalls) == 0 {
			l.publish(ctx, agent.Event{
				ThreadID:    state.ThreadID,
				Step:        step,
				Type:        agent.EventTypeCompleted,
				Message:     &assistant,
				Description: "assistant returned a final answer",
			})
			return agent.EngineResult{
				Messages:   messages,
				Output:     assistant.Content,
				StopReason: agent.StopReasonFinalAnswer,
				Steps:      step,
			}, nil
		}

		// DISPATCH_TOOLS
		calls := assistant.ToolCalls
		for i := range calls {
			call := agent.CloneToolCall(calls[i])
			l.publish(ctx, agent.Event{
				ThreadID: state.ThreadID,
				Step:     step,
				Type:     agent.EventTypeToolCall,
				ToolCall: &call,
			})
		}
		results, err := l.dispatch(ctx, calls, defined)
		if err != nil {
			return l.fail(ctx, state.ThreadID, step, err)
		}
		for i := range results {
			messages = append(messages, agent.ToolResultMessage(results[i]))
			result := agent.CloneToolResult(results[i])
			l.publish(ctx, agent.Event{
				ThreadID:   state.ThreadID,
				Step:       step,
				Type:       agent.EventTypeToolResult,
				ToolResult: &result,
			})
		}

		decision := l.policy.AfterDispatch(calls, results)
		if !decision.Stop {
			continue
		}
		closing := agent.Message{Role: agent.RoleAssistant, Content: decision.Output}
		messages = append(messages, closing)
		l.publish(ctx, agent.Event{
			ThreadID:    state.ThreadID,
			Step:        step,
			Type:        agent.EventTypeCompleted,
			Message:     &closing,
			Description: "continuation policy ended the turn",
		})
		var outputs map[string]any
		if decision.Outputs != nil {
			outputs = maps.Clone(decision.Outputs)
		}
		return agent.EngineResult{
			Messages:   messages,
			Output:     decision.Output,
			StopReason: agent.StopReasonDelegated,
			Steps:      step,
			Outputs:    outputs,
		}, nil
	}

	return l.fail(ctx, state.ThreadID, maxSteps, agent.ErrMaxStepsExceeded)
}

// dispatch returns exactly one result per call, in request order, whatever
// order the calls finish in.
func (l *Loop) dispatch(ctx context.Context, calls []agent.ToolCall, defined map[string]struct{}) ([]agent.ToolResult, error) {
	results := make([]agent.ToolResult, len(calls))
	if !l.parallel || len(calls) == 1 {
		for i := range calls {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			results[i] = l.executeTool(ctx, calls[i], defined)
		}
	} else {
		var group errgroup.Group
		for i := range calls {
			group.Go(func() error {
				results[i] = l.executeTool(ctx, calls[i], defined)
				return nil
			})
		}
		_ = group.Wait()
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	return results, nil
}

func (l *Loop) executeTool(ctx context.Context, call agent.ToolCall, defined map[string]struct{}) (result agent.ToolResult) {
	defer func() {
		if recovered := recover(); recovered != nil {
			result = agent.ToolErrorResult(call, fmt.Errorf("%w: tool %q panicked: %v", agent.ErrToolExecution, call.Name, recovered))
		}
	}()

	if defined != nil {
		if _, ok := defined[call.Name]; !ok {
			return agent.ToolErrorResult(call, fmt.Errorf("%w: tool %q is not defined", agent.ErrUnknownTool, call.Name))
		}
	}
	executed, err := l.tools.Execute(ctx, agent.CloneToolCall(call))
	if err != nil {
		return agent.ToolErrorResult(call, err)
	}
	if identityErr := validateToolResultIdentity(call, executed); identityErr != nil {
		return agent.ToolErrorResult(call, fmt.Errorf("%w: %w", agent.ErrToolExecution, identityErr))
	}
	executed.CallID = call.ID
	executed.Name = call.Name
	return executed
}

// publish drops sink failures; observers never change loop control flow.
func (l *Loop) publish(ctx context.Context, event agent.Event) {
	if agent.ValidateEvent(event) != nil {
		return
	}
	_ = l.events.Publish(context.WithoutCancel(ctx), event)
}

func (l *Loop) fail(ctx context.Context, threadID agent.ThreadID, step int, err error) (agent.EngineResult, error) {
	l.publish(ctx, agent.Event{
		ThreadID:    threadID,
		Step:        step,
		Type:        agent.EventTypeFailed,
		Description: err.Error(),
	})
	return agent.EngineResult{Steps: step}, err
}

type noopEventSink struct{}

func (noopEventSink) Publish(context.Context, agent.Event) error {
	return nil
}

func indexToolDefinitions(definitions []agent.ToolDefinition) map[string]struct{} {
	if len(definitions) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(definitions))
	for _, definition := range definitions {
		out[definition.Name] = struct{}{}
	}
	return out
}

func validateToolResultIdentity(call agent.ToolCall, result agent.ToolResult) error {
	if result.CallID != "" && result.CallID != call.ID {
		return fmt.Errorf("tool result call id mismatch: got=%q want=%q", result.CallID, call.ID)
	}
	if result.Name != "" && result.Name != call.Name {
		return fmt.Errorf("tool result name mismatch: got=%q want=%q", result.Name, call.Name)
	}
	return nil
}

// validateToolCallShape checks the calls of one assistant message. turnSeen maps
// the call ids of earlier steps in the turn to their step and is extended on success.
func validateToolCallShape(calls []agent.ToolCall, turnSeen map[string]int, step int) error {
	seen := make(map[string]int, len(calls))
	for i, call := range calls {
		if call.ID == "" {
			return fmt.Errorf("%w: index=%d reason=empty_id", ErrToolCallInvalid, i)
		}
		if call.Name == "" {
			return fmt.Errorf("%w: index=%d id=%q reason=empty_name", ErrToolCallInvalid, i, call.ID)
		}
		if firstIndex, exists := seen[call.ID]; exists {
			return fmt.Errorf(
				"%w: index=%d id=%q reason=duplicate_id first_index=%d",
				ErrToolCallInvalid,
				i,
				call.ID,
				firstIndex,
			)
		}
		if firstStep, reused := turnSeen[call.ID]; reused {
			return fmt.Errorf(
				"%w: index=%d id=%q reason=reused_id first_step=%d",
				ErrToolCallInvalid,
				i,
				call.ID,
				firstStep,
			)
		}
		seen[call.ID] = i
	}
	for id := range seen {
		turnSeen[id] = step
	}
	return nil
}
