package mocks

import (
	"context"
	"fmt"

	"github.com/Gurpartap/jobagent/toolset"
)

// QueryService returns the same small churn table for every question.
type QueryService struct{}

var _ toolset.QueryService = QueryService{}

func (QueryService) Ask(ctx context.Context, query string) (toolset.QueryAnswer, error) {
	if err := ctx.Err(); err != nil {
		return toolset.QueryAnswer{}, err
	}
	return toolset.QueryAnswer{
		Text:    fmt.Sprintf("Mock answer for %q: churn rose from 4.1%% to 5.3%% quarter over quarter.", query),
		SQL:     "SELECT quarter, churn_rate FROM churn_metrics ORDER BY quarter",
		Columns: []string{"quarter", "churn_rate"},
		Rows:    [][]string{{"Q2", "0.041"}, {"Q3", "0.053"}},
	}, nil
}
