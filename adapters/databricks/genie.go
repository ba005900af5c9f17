package databricks

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Gurpartap/jobagent/agent"
	"github.com/Gurpartap/jobagent/toolset"
)

const (
	defaultGeniePollInterval = 2 * time.Second
	defaultGenieTimeout      = 5 * time.Minute
)

type GenieConfig struct {
	SpaceID string
	// PollInterval is the delay between message status reads.
	PollInterval time.Duration
	// Timeout bounds one question end to end.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Genie answers questions through a Genie space. Each question starts a new
// conversation.
type Genie struct {
	workspace    *Workspace
	spaceID      string
	pollInterval time.Duration
	timeout      time.Duration
	logger       *slog.Logger
}

var _ toolset.QueryService = (*Genie)(nil)

func NewGenie(workspace *Workspace, cfg GenieConfig) (*Genie, error) {
	spaceID := strings.TrimSpace(cfg.SpaceID)
	if spaceID == "" {
		return nil, fmt.Errorf("new genie: %w: space id is required", agent.ErrValidation)
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultGeniePollInterval
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultGenieTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Genie{
		workspace:    workspace,
		spaceID:      spaceID,
		pollInterval: pollInterval,
		timeout:      timeout,
		logger:       logger.With(slog.String("space_id", spaceID)),
	}, nil
}

type startConversationResponse struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
}

type genieMessage struct {
	ID          string            `json:"id"`
	Status      string            `json:"status"`
	Attachments []genieAttachment `json:"attachments"`
	Error       *struct {
		Error string `json:"error"`
		Type  string `json:"type"`
	} `json:"error"`
}

type genieAttachment struct {
	AttachmentID string `json:"attachment_id"`
	Text         *struct {
		Content string `json:"content"`
	} `json:"text"`
	Query *struct {
		Query       string `json:"query"`
		Description string `json:"description"`
	} `json:"query"`
}

type queryResultResponse struct {
	StatementResponse struct {
		Manifest struct {
			Schema struct {
				Columns []struct {
					Name string `json:"name"`
				} `json:"columns"`
			} `json:"schema"`
		} `json:"manifest"`
		Result struct {
			DataArray [][]*string `json:"data_array"`
		} `json:"result"`
	} `json:"statement_response"`
}

func (g *Genie) Ask(ctx context.Context, query string) (toolset.QueryAnswer, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var started startConversationResponse
	path := fmt.Sprintf("/api/2.0/genie/spaces/%s/start-conversation", url.PathEscape(g.spaceID))
	if err := g.workspace.do(ctx, http.MethodPost, path, nil, map[string]string{"content": query}, &started); err != nil {
		return toolset.QueryAnswer{}, fmt.Errorf("start genie conversation: %w", err)
	}
	logger := g.logger.With(
		slog.String("conversation_id", started.ConversationID),
		slog.String("message_id", started.MessageID),
	)
	logger.Debug("genie question submitted")

	message, err := g.await(ctx, started.ConversationID, started.MessageID)
	if err != nil {
		return toolset.QueryAnswer{}, err
	}

	var answer toolset.QueryAnswer
	for _, attachment := range message.Attachments {
		if attachment.Text != nil && answer.Text == "" {
			answer.Text = attachment.Text.Content
		}
		if attachment.Query == nil || answer.SQL != "" {
			continue
		}
		answer.SQL = attachment.Query.Query
		if answer.Text == "" {
			answer.Text = attachment.Query.Description
		}
		if err := g.fetchResult(ctx, started, attachment.AttachmentID, &answer); err != nil {
			return toolset.QueryAnswer{}, err
		}
	}
	logger.Debug("genie question answered", slog.Int("rows", len(answer.Rows)))
	return answer, nil
}

func (g *Genie) await(ctx context.Context, conversationID, messageID string) (genieMessage, error) {
	path := fmt.Sprintf(
		"/api/2.0/genie/spaces/%s/conversations/%s/messages/%s",
		url.PathEscape(g.spaceID),
		url.PathEscape(conversationID),
		url.PathEscape(messageID),
	)
	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()

	for {
		var message genieMessage
		if err := g.workspace.do(ctx, http.MethodGet, path, nil, nil, &message); err != nil {
			return genieMessage{}, fmt.Errorf("read genie message: %w", err)
		}
		switch message.Status {
		case "COMPLETED":
			return message, nil
		case "FAILED", "CANCELLED", "QUERY_RESULT_EXPIRED":
			detail := message.Status
			if message.Error != nil && message.Error.Error != "" {
				detail = message.Error.Error
			}
			return genieMessage{}, fmt.Errorf("%w: genie message %s: %s", agent.ErrToolExecution, message.Status, detail)
		}

		select {
		case <-ctx.Done():
			return genieMessage{}, fmt.Errorf("%w: genie message still %s: %w", agent.ErrPlatformUnavailable, message.Status, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (g *Genie) fetchResult(ctx context.Context, started startConversationResponse, attachmentID string, answer *toolset.QueryAnswer) error {
	path := fmt.Sprintf(
		"/api/2.0/genie/spaces/%s/conversations/%s/messages/%s/attachments/%s/query-result",
		url.PathEscape(g.spaceID),
		url.PathEscape(started.ConversationID),
		url.PathEscape(started.MessageID),
		url.PathEscape(attachmentID),
	)
	var result queryResultResponse
	if err := g.workspace.do(ctx, http.MethodGet, path, nil, nil, &result); err != nil {
		return fmt.Errorf("read genie query result: %w", err)
	}

	for _, column := range result.StatementResponse.Manifest.Schema.Columns {
		answer.Columns = append(answer.Columns, column.Name)
	}
	for _, row := range result.StatementResponse.Result.DataArray {
		values := make([]string, len(row))
		for i, value := range row {
			if value != nil {
				values[i] = *value
			}
		}
		answer.Rows = append(answer.Rows, values)
	}
	return nil
}
