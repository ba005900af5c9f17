// Package modeltest provides deterministic models for loop and runner tests.
package modeltest

import (
	"context"
	"fmt"
	"sync"

	"github.com/Gurpartap/jobagent/agent"
)

// Response configures one model turn in a scripted sequence.
type Response struct {
	Message agent.Message
	Err     error
}

// Text returns a scripted final answer.
func Text(content string) Response {
	return Response{Message: agent.Message{Role: agent.RoleAssistant, Content: content}}
}

// Calls returns a scripted assistant turn that requests the given tool calls.
func Calls(calls ...agent.ToolCall) Response {
	return Response{Message: agent.Message{Role: agent.RoleAssistant, ToolCalls: calls}}
}

// Fail returns a scripted model failure.
func Fail(err error) Response {
	return Response{Err: err}
}

// ScriptedModel replays responses in order and records every request it saw.
type ScriptedModel struct {
	mu        sync.Mutex
	index     int
	responses []Response
	requests  []agent.ModelRequest
}

func NewScriptedModel(responses ...Response) *ScriptedModel {
	cloned := make([]Response, len(responses))
	copy(cloned, responses)
	return &ScriptedModel{
		responses: cloned,
	}
}

var _ agent.Model = (*ScriptedModel)(nil)

func (m *ScriptedModel) Generate(ctx context.Context, request agent.ModelRequest) (agent.Message, error) {
	if err := ctx.Err(); err != nil {
		return agent.Message{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, agent.ModelRequest{
		Messages: agent.CloneMessages(request.Messages),
		Tools:    agent.CloneToolDefinitions(request.Tools),
	})
	if m.index >= len(m.responses) {
		return agent.Message{}, fmt.Errorf("script exhausted at step %d", m.index+1)
	}
	current := m.responses[m.index]
	m.index++
	if current.Err != nil {
		return agent.Message{}, current.Err
	}
	msg := agent.CloneMessage(current.Message)
	if msg.Role == "" {
		msg.Role = agent.RoleAssistant
	}
	return msg, nil
}

// Calls reports how many times Generate was invoked.
func (m *ScriptedModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Requests returns copies of the requests received so far.
func (m *ScriptedModel) Requests() []agent.ModelRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]agent.ModelRequest, len(m.requests))
	for i, request := range m.requests {
		out[i] = agent.ModelRequest{
			Messages: agent.CloneMessages(request.Messages),
			Tools:    agent.CloneToolDefinitions(request.Tools),
		}
	}
	return out
}
