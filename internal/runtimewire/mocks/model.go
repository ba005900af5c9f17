// Package mocks provides deterministic stand-ins for the model and the query
// service so the runtime can run without a Databricks workspace.
package mocks

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/Gurpartap/jobagent/agent"
)

var (
	runIDInText    = regexp.MustCompile(`\bRUN-\d+\b|\b\d{5,}\b`)
	runIDInHistory = regexp.MustCompile(`Run ID: ([A-Za-z0-9-]+)`)
)

// Model picks tools from keywords in the latest user message. Once tool
// results are in, it answers with a summary of them.
type Model struct{}

func NewModel() *Model {
	return &Model{}
}

var _ agent.Model = (*Model)(nil)

func (m *Model) Generate(ctx context.Context, request agent.ModelRequest) (agent.Message, error) {
	if err := ctx.Err(); err != nil {
		return agent.Message{}, err
	}

	messages := request.Messages
	if len(messages) > 0 && messages[len(messages)-1].Role == agent.RoleTool {
		return agent.Message{Role: agent.RoleAssistant, Content: summarize(messages)}, nil
	}

	latest := latestUserMessage(messages)
	lower := strings.ToLower(latest)
	offered := make(map[string]bool, len(request.Tools))
	for _, tool := range request.Tools {
		offered[tool.Name] = true
	}
	runID := findRunID(latest, messages)
	call := func(name string, arguments map[string]any) agent.Message {
		return agent.Message{
			Role: agent.RoleAssistant,
			ToolCalls: []agent.ToolCall{{
				ID:        fmt.Sprintf("call-%d", len(messages)),
				Name:      name,
				Arguments: arguments,
			}},
		}
	}

	switch {
	case offered["terminate_job"] && runID != "" && containsAny(lower, "cancel", "terminate", "stop"):
		return call("terminate_job", map[string]any{"run_id": runID}), nil
	case offered["poll_job"] && runID != "" && containsAny(lower, "status", "progress", "check", "done", "finished"):
		return call("poll_job", map[string]any{"run_id": runID}), nil
	case offered["start_job"] && containsAny(lower, "analyze", "analysis", "report", "background", "job"):
		return call("start_job", map[string]any{"user_request": latest}), nil
	case offered["query_data"] && (!offered["start_job"] || containsAny(lower, "how many", "what", "show", "query")):
		return call("query_data", map[string]any{"query": latest}), nil
	}

	return agent.Message{
		Role: agent.RoleAssistant,
		Content: fmt.Sprintf(
			"mock_response messages=%d tools=%d latest_user=%q",
			len(messages),
			len(request.Tools),
			latest,
		),
	}, nil
}

func summarize(messages []agent.Message) string {
	var observations []string
	for i := len(messages) - 1; i >= 0 && messages[i].Role == agent.RoleTool; i-- {
		observations = append([]string{fmt.Sprintf("%s: %s", messages[i].Name, messages[i].Content)}, observations...)
	}
	return "Here is what I found.\n" + strings.Join(observations, "\n")
}

func findRunID(latest string, messages []agent.Message) string {
	if match := runIDInText.FindString(latest); match != "" {
		return match
	}
	for i := len(messages) - 1; i >= 0; i-- {
		if match := runIDInHistory.FindStringSubmatch(messages[i].Content); match != nil {
			return match[1]
		}
	}
	return ""
}

func latestUserMessage(messages []agent.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == agent.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}

func containsAny(text string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(text, needle) {
			return true
		}
	}
	return false
}
