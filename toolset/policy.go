package toolset

import (
	"fmt"
	"strings"

	"github.com/Gurpartap/jobagent/agent"
	"github.com/Gurpartap/jobagent/agentreact"
)

// DelegationPolicy ends the turn in the same dispatch pass that ran start_job,
// whether or not the job started, so the caller never waits on remote work.
var DelegationPolicy agentreact.ContinuationPolicy = agentreact.PolicyFunc(delegate)

func delegate(calls []agent.ToolCall, results []agent.ToolResult) agentreact.Decision {
	var (
		runIDs   []string
		failures []string
	)
	for i, call := range calls {
		if call.Name != StartJob {
			continue
		}
		result := results[i]
		runID, _ := result.Data["run_id"].(string)
		if result.IsError || runID == "" {
			failures = append(failures, result.Content)
			continue
		}
		runIDs = append(runIDs, runID)
	}
	if len(runIDs) == 0 && len(failures) == 0 {
		return agentreact.Decision{}
	}

	var b strings.Builder
	for _, runID := range runIDs {
		fmt.Fprintf(&b, "I've started a background job for your request. Run ID: %s. Ask me about run %s to check its progress.\n", runID, runID)
	}
	for _, failure := range failures {
		fmt.Fprintf(&b, "I couldn't start the background job: %s\n", failure)
	}
	decision := agentreact.Decision{
		Stop:   true,
		Output: strings.TrimSpace(b.String()),
	}
	if len(runIDs) > 0 {
		decision.Outputs = map[string]any{agent.CustomOutputRunID: runIDs[0]}
		if len(runIDs) > 1 {
			decision.Outputs["run_ids"] = runIDs
		}
	}
	return decision
}
