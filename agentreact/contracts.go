package agentreact

import "github.com/Gurpartap/jobagent/agent"

// Decision is a continuation policy verdict taken after one dispatch pass.
type Decision struct {
	// Stop ends the turn without another model call.
	Stop bool
	// Output becomes the closing assistant message of a stopped turn.
	Output string
	// Outputs is surfaced to the caller alongside the turn result.
	Outputs map[string]any
}

// ContinuationPolicy decides after every DISPATCH_TOOLS pass whether control
// returns to the model. Results are in request order.
type ContinuationPolicy interface {
	AfterDispatch(calls []agent.ToolCall, results []agent.ToolResult) Decision
}

// PolicyFunc adapts a function to ContinuationPolicy.
type PolicyFunc func(calls []agent.ToolCall, results []agent.ToolResult) Decision

func (f PolicyFunc) AfterDispatch(calls []agent.ToolCall, results []agent.ToolResult) Decision {
	return f(calls, results)
}

// AlwaysContinue is the default policy: every dispatch pass returns to the model.
var AlwaysContinue ContinuationPolicy = PolicyFunc(func([]agent.ToolCall, []agent.ToolResult) Decision {
	return Decision{}
})
