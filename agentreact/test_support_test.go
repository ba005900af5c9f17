package agentreact_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/Gurpartap/jobagent/agent"
	"github.com/Gurpartap/jobagent/agentreact"
	eventinginmem "github.com/Gurpartap/jobagent/eventing/inmem"
)

type handler func(ctx context.Context, arguments map[string]any) (string, error)

// executor is a map-backed ToolExecutor.
type executor map[string]handler

func (e executor) Execute(ctx context.Context, call agent.ToolCall) (agent.ToolResult, error) {
	h, ok := e[call.Name]
	if !ok {
		return agent.ToolResult{}, fmt.Errorf("%w: %q", agent.ErrUnknownTool, call.Name)
	}
	content, err := h(ctx, call.Arguments)
	if err != nil {
		return agent.ToolResult{}, err
	}
	return agent.ToolResult{CallID: call.ID, Name: call.Name, Content: content}, nil
}

func echo(content string) handler {
	return func(context.Context, map[string]any) (string, error) {
		return content, nil
	}
}

func newLoop(t *testing.T, model agent.Model, tools agent.ToolExecutor, policy agentreact.ContinuationPolicy, parallel bool) (*agentreact.Loop, *eventinginmem.Sink) {
	t.Helper()

	events := eventinginmem.New()
	loop, err := agentreact.New(agentreact.Config{
		Model:    model,
		Tools:    tools,
		Events:   events,
		Policy:   policy,
		Parallel: parallel,
	})
	if err != nil {
		t.Fatalf("new loop: %v", err)
	}
	return loop, events
}

func userState(prompt string) agent.ConversationState {
	state := agent.NewConversationState("thread-1", "system")
	state.Messages = append(state.Messages, agent.Message{Role: agent.RoleUser, Content: prompt})
	return state
}

func definitions(names ...string) []agent.ToolDefinition {
	out := make([]agent.ToolDefinition, len(names))
	for i, name := range names {
		out[i] = agent.ToolDefinition{Name: name}
	}
	return out
}

func call(id, name string, arguments map[string]any) agent.ToolCall {
	return agent.ToolCall{ID: id, Name: name, Arguments: arguments}
}
