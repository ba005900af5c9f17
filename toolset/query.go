package toolset

import (
	"context"
	"fmt"
	"strings"

	"github.com/Gurpartap/jobagent/agent"
	"github.com/Gurpartap/jobagent/tooling/registry"
)

// QueryAnswer is the result of one natural-language data question.
type QueryAnswer struct {
	Text    string
	SQL     string
	Columns []string
	Rows    [][]string
}

// QueryService answers natural-language questions about structured data.
type QueryService interface {
	Ask(ctx context.Context, query string) (QueryAnswer, error)
}

const defaultQueryDescription = "Query structured data using natural language. Returns a text answer and, when available, the SQL and result rows."

// maxQueryRows bounds the rows returned to the model.
const maxQueryRows = 50

type queryDataTool struct {
	service     QueryService
	description string
}

// NewQueryData builds the query_data tool. An empty description uses a generic one.
func NewQueryData(service QueryService, description string) registry.Tool {
	if description == "" {
		description = defaultQueryDescription
	}
	return &queryDataTool{service: service, description: description}
}

func (t *queryDataTool) Definition() agent.ToolDefinition {
	return agent.ToolDefinition{
		Name:        QueryData,
		Description: t.description,
		InputSchema: map[string]any{
			"type":                 "object",
			"required":             []string{"query"},
			"additionalProperties": false,
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"minLength":   1,
					"description": "The natural language question to ask about the data.",
				},
			},
		},
	}
}

func (t *queryDataTool) Execute(ctx context.Context, arguments map[string]any) (map[string]any, error) {
	query := strings.TrimSpace(arguments["query"].(string))
	answer, err := t.service.Ask(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query data: %w", err)
	}

	out := success(answerText(answer), nil)
	optional(out, "sql", answer.SQL)
	if len(answer.Columns) > 0 {
		out["columns"] = answer.Columns
		rows := answer.Rows
		if len(rows) > maxQueryRows {
			out["truncated"] = true
			out["total_rows"] = len(rows)
			rows = rows[:maxQueryRows]
		}
		out["rows"] = rows
	}
	return out, nil
}

func answerText(answer QueryAnswer) string {
	if strings.TrimSpace(answer.Text) != "" {
		return answer.Text
	}
	if len(answer.Rows) > 0 {
		return fmt.Sprintf("Query returned %d rows.", len(answer.Rows))
	}
	return "The query returned no answer."
}
