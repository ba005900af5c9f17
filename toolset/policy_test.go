package toolset_test

import (
	"strings"
	"testing"

	"github.com/Gurpartap/jobagent/agent"
	"github.com/Gurpartap/jobagent/toolset"
)

func TestDelegationPolicy(t *testing.T) {
	t.Parallel()

	started := agent.ToolResult{CallID: "1", Name: toolset.StartJob, Data: map[string]any{"run_id": "RUN-1"}}
	failed := agent.ToolResult{CallID: "1", Name: toolset.StartJob, IsError: true, Content: "platform_unavailable: 503"}
	polled := agent.ToolResult{CallID: "2", Name: toolset.PollJob, Data: map[string]any{"status": "RUNNING"}}

	tests := []struct {
		name       string
		calls      []agent.ToolCall
		results    []agent.ToolResult
		wantStop   bool
		wantRunID  any
		wantOutput string
	}{
		{
			name:     "no start job continues",
			calls:    []agent.ToolCall{{ID: "2", Name: toolset.PollJob}},
			results:  []agent.ToolResult{polled},
			wantStop: false,
		},
		{
			name:       "start job stops with run id",
			calls:      []agent.ToolCall{{ID: "1", Name: toolset.StartJob}, {ID: "2", Name: toolset.PollJob}},
			results:    []agent.ToolResult{started, polled},
			wantStop:   true,
			wantRunID:  "RUN-1",
			wantOutput: "Run ID: RUN-1",
		},
		{
			name:       "failed start job still stops",
			calls:      []agent.ToolCall{{ID: "1", Name: toolset.StartJob}},
			results:    []agent.ToolResult{failed},
			wantStop:   true,
			wantOutput: "couldn't start",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			decision := toolset.DelegationPolicy.AfterDispatch(tc.calls, tc.results)
			if decision.Stop != tc.wantStop {
				t.Fatalf("unexpected stop: got=%t want=%t", decision.Stop, tc.wantStop)
			}
			if tc.wantRunID != nil && decision.Outputs[agent.CustomOutputRunID] != tc.wantRunID {
				t.Fatalf("unexpected outputs: %+v", decision.Outputs)
			}
			if tc.wantRunID == nil && decision.Outputs != nil {
				t.Fatalf("no outputs expected: %+v", decision.Outputs)
			}
			if !strings.Contains(decision.Output, tc.wantOutput) {
				t.Fatalf("output %q does not contain %q", decision.Output, tc.wantOutput)
			}
		})
	}
}
