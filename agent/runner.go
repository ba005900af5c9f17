package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"reflect"
	"strings"
)

// CustomInputThreadID is the custom_inputs key that carries the thread id.
const (
	CustomInputThreadID = "thread_id"
	CustomOutputRunID   = "run_id"
)

// Dependencies wires application services into the turn runner.
type Dependencies struct {
	IDGenerator  IDGenerator
	Checkpoints  CheckpointStore
	Engine       Engine
	Logger       *slog.Logger
	SystemPrompt string
	Tools        []ToolDefinition
	MaxSteps     int
}

// Runner executes one conversational turn per Invoke: it resumes the thread
// from the checkpoint store, lets the engine run, and persists the result.
type Runner struct {
	idGen        IDGenerator
	checkpoints  CheckpointStore
	engine       Engine
	logger       *slog.Logger
	systemPrompt string
	tools        []ToolDefinition
	maxSteps     int
}

// InputMessage is one caller-supplied conversation turn.
type InputMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// RequestContext carries optional caller context.
type RequestContext struct {
	ConversationID string `json:"conversation_id,omitempty"`
}

// Request is the agent invocation input.
type Request struct {
	Input        []InputMessage  `json:"input"`
	CustomInputs map[string]any  `json:"custom_inputs,omitempty"`
	Context      *RequestContext `json:"context,omitempty"`
}

// Response is the agent invocation output.
type Response struct {
	Output        string         `json:"output"`
	Messages      []Message      `json:"messages,omitempty"`
	CustomOutputs map[string]any `json:"custom_outputs"`
	ThreadID      ThreadID       `json:"-"`
	StopReason    StopReason     `json:"-"`
}

func NewRunner(deps Dependencies) (*Runner, error) {
	if deps.IDGenerator == nil {
		return nil, fmt.Errorf("new runner: %w", ErrMissingIDGenerator)
	}
	if deps.Checkpoints == nil {
		return nil, fmt.Errorf("new runner: %w", ErrMissingCheckpointer)
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("new runner: %w", ErrMissingEngine)
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{
		idGen:        deps.IDGenerator,
		checkpoints:  deps.Checkpoints,
		engine:       deps.Engine,
		logger:       logger,
		systemPrompt: deps.SystemPrompt,
		tools:        CloneToolDefinitions(deps.Tools),
		maxSteps:     deps.MaxSteps,
	}, nil
}

// Invoke runs one turn. Checkpoint read and write failures are fatal to the
// turn; engine failures are returned without persisting anything from this turn.
func (r *Runner) Invoke(ctx context.Context, request Request) (Response, error) {
	if ctx == nil {
		return Response{}, ErrContextNil
	}
	inputs, err := normalizeInputMessages(request.Input)
	if err != nil {
		return Response{}, err
	}

	threadID, err := r.resolveThreadID(ctx, request)
	if err != nil {
		return Response{}, err
	}
	response := Response{
		ThreadID:      threadID,
		CustomOutputs: customOutputs(request.CustomInputs, threadID),
	}
	logger := r.logger.With(slog.String("thread_id", string(threadID)))

	state, err := r.checkpoints.Load(ctx, threadID)
	switch {
	case errors.Is(err, ErrThreadNotFound):
		state = NewConversationState(threadID, r.systemPrompt)
		logger.Debug("starting new thread")
	case err != nil:
		return response, fmt.Errorf("%w: load checkpoint thread_id=%q: %w", ErrPersistence, threadID, err)
	}
	state.Messages = append(state.Messages, inputs...)

	result, runErr := r.engine.Execute(ctx, CloneConversationState(state), EngineInput{
		MaxSteps: r.maxSteps,
		Tools:    CloneToolDefinitions(r.tools),
	})
	if runErr != nil {
		logger.Warn("turn aborted", slog.Any("error", runErr))
		return response, runErr
	}
	if contractErr := validateEngineOutput(state, result); contractErr != nil {
		return response, contractErr
	}

	turnStart := len(state.Messages) - len(inputs)
	state.Messages = CloneMessages(result.Messages)
	if saveErr := r.checkpoints.Save(sideEffectContext(ctx), state); saveErr != nil {
		return response, fmt.Errorf("%w: save checkpoint thread_id=%q: %w", ErrPersistence, threadID, saveErr)
	}

	maps.Copy(response.CustomOutputs, result.Outputs)
	response.Output = result.Output
	response.StopReason = result.StopReason
	response.Messages = CloneMessages(state.Messages[turnStart:])
	logger.Info(
		"turn completed",
		slog.String("stop_reason", string(result.StopReason)),
		slog.Int("steps", result.Steps),
		slog.Int("messages", len(state.Messages)),
	)
	return response, nil
}

func (r *Runner) resolveThreadID(ctx context.Context, request Request) (ThreadID, error) {
	if raw, ok := request.CustomInputs[CustomInputThreadID]; ok {
		threadID, ok := raw.(string)
		if !ok || strings.TrimSpace(threadID) == "" {
			return "", fmt.Errorf("%w: %w: custom_inputs.thread_id must be a non-empty string", ErrValidation, ErrInvalidThreadID)
		}
		return ThreadID(threadID), nil
	}
	if request.Context != nil && strings.TrimSpace(request.Context.ConversationID) != "" {
		return ThreadID(request.Context.ConversationID), nil
	}

	generated, err := r.idGen.NewThreadID(ctx)
	if err != nil {
		return "", fmt.Errorf("generate thread id: %w", err)
	}
	if generated == "" {
		return "", ErrInvalidThreadID
	}
	return generated, nil
}

func normalizeInputMessages(in []InputMessage) ([]Message, error) {
	if len(in) == 0 {
		return nil, fmt.Errorf("%w: input must contain at least one message", ErrValidation)
	}
	out := make([]Message, 0, len(in))
	for i, message := range in {
		switch message.Role {
		case RoleUser, RoleAssistant:
		case "":
			message.Role = RoleUser
		default:
			return nil, fmt.Errorf("%w: input[%d] has unsupported role %q", ErrValidation, i, message.Role)
		}
		if strings.TrimSpace(message.Content) == "" {
			return nil, fmt.Errorf("%w: input[%d] content is empty", ErrValidation, i)
		}
		out = append(out, Message{Role: message.Role, Content: message.Content})
	}
	return out, nil
}

func customOutputs(customInputs map[string]any, threadID ThreadID) map[string]any {
	out := make(map[string]any, len(customInputs)+1)
	maps.Copy(out, customInputs)
	out[CustomInputThreadID] = string(threadID)
	return out
}

func validateEngineOutput(prev ConversationState, next EngineResult) error {
	if len(next.Messages) < len(prev.Messages) {
		return fmt.Errorf(
			"%w: invariant=messages_length input=%d output=%d thread_id=%q",
			ErrEngineOutputContractViolation,
			len(prev.Messages),
			len(next.Messages),
			prev.ThreadID,
		)
	}
	if !reflect.DeepEqual(next.Messages[:len(prev.Messages)], prev.Messages) {
		return fmt.Errorf(
			"%w: invariant=messages_prefix thread_id=%q",
			ErrEngineOutputContractViolation,
			prev.ThreadID,
		)
	}
	return nil
}

func sideEffectContext(ctx context.Context) context.Context {
	if ctx.Err() != nil {
		return context.WithoutCancel(ctx)
	}
	return ctx
}
