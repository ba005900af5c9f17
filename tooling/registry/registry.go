// Package registry dispatches tool calls to typed tools: lookup by name,
// schema validation, then invocation.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/Gurpartap/jobagent/agent"
)

var (
	ErrToolUnregistered = fmt.Errorf("%w: tool is not registered", agent.ErrUnknownTool)
	ErrNilTool          = errors.New("tool is nil")
	ErrToolNameEmpty    = errors.New("tool name is empty")
	ErrToolDuplicate    = errors.New("tool is already registered")
)

// Tool is one callable capability. Execute receives arguments that already
// satisfy the definition's input schema and returns a JSON-serializable result.
type Tool interface {
	Definition() agent.ToolDefinition
	Execute(ctx context.Context, arguments map[string]any) (map[string]any, error)
}

// Func adapts a definition and a function to Tool.
type Func struct {
	Def agent.ToolDefinition
	Fn  func(ctx context.Context, arguments map[string]any) (map[string]any, error)
}

func (f Func) Definition() agent.ToolDefinition { return f.Def }

func (f Func) Execute(ctx context.Context, arguments map[string]any) (map[string]any, error) {
	return f.Fn(ctx, arguments)
}

// Registry stores tools by name and executes tool calls. Definitions keep
// registration order.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

var _ agent.ToolExecutor = (*Registry)(nil)

func New(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, tool := range tools {
		if err := r.Register(tool); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Register(tool Tool) error {
	if tool == nil {
		return ErrNilTool
	}
	name := tool.Definition().Name
	if name == "" {
		return ErrToolNameEmpty
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("%w: %q", ErrToolDuplicate, name)
	}
	r.tools[name] = tool
	r.order = append(r.order, name)
	return nil
}

// Definitions returns the tool contracts to advertise to the model.
func (r *Registry) Definitions() []agent.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]agent.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].Definition())
	}
	return agent.CloneToolDefinitions(out)
}

// Execute validates the call against the tool's schema before invoking it;
// invalid arguments never reach the tool.
func (r *Registry) Execute(ctx context.Context, call agent.ToolCall) (agent.ToolResult, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return agent.ToolResult{}, ctxErr
	}
	if call.Name == "" {
		return agent.ToolResult{}, fmt.Errorf("%w: call %q", ErrToolNameEmpty, call.ID)
	}

	r.mu.RLock()
	tool, ok := r.tools[call.Name]
	r.mu.RUnlock()
	if !ok {
		return agent.ToolResult{}, fmt.Errorf("%w: %q", ErrToolUnregistered, call.Name)
	}

	arguments := call.Arguments
	if arguments == nil {
		arguments = map[string]any{}
	}
	if err := agent.ValidateToolArguments(tool.Definition().InputSchema, arguments); err != nil {
		return agent.ToolResult{}, fmt.Errorf("tool %q: %w", call.Name, err)
	}

	data, err := tool.Execute(ctx, arguments)
	if err != nil {
		return agent.ToolResult{}, fmt.Errorf("tool %q: %w", call.Name, err)
	}
	content, err := json.Marshal(data)
	if err != nil {
		return agent.ToolResult{}, fmt.Errorf("%w: tool %q result is not serializable: %w", agent.ErrToolExecution, call.Name, err)
	}
	return agent.ToolResult{
		CallID:  call.ID,
		Name:    call.Name,
		Content: string(content),
		Data:    data,
	}, nil
}
