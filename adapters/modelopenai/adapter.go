// Package modelopenai talks to OpenAI-compatible chat-completions endpoints,
// including Databricks model serving endpoints.
package modelopenai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Gurpartap/jobagent/agent"
)

const (
	defaultEndpoint = "/chat/completions"
	defaultTimeout  = 120 * time.Second
	maxResponseSize = 2 << 20
)

var (
	ErrMissingToken   = errors.New("model adapter token is required")
	ErrMissingModel   = errors.New("model adapter model is required")
	ErrMissingBaseURL = errors.New("model adapter base url is required")
)

type Config struct {
	Token      string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

type Adapter struct {
	token       string
	model       string
	endpointURL string
	httpClient  *http.Client
}

var _ agent.Model = (*Adapter)(nil)

// ServingEndpointsBaseURL returns the OpenAI-compatible base URL of a
// Databricks workspace; the model is then the serving endpoint name.
func ServingEndpointsBaseURL(host string) string {
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	if host != "" && !strings.Contains(host, "://") {
		host = "https://" + host
	}
	return host + "/serving-endpoints"
}

func New(cfg Config) (*Adapter, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, fmt.Errorf("new model adapter: %w", ErrMissingToken)
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, fmt.Errorf("new model adapter: %w", ErrMissingModel)
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, fmt.Errorf("new model adapter: %w", ErrMissingBaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Adapter{
		token:       token,
		model:       model,
		endpointURL: strings.TrimRight(baseURL, "/") + defaultEndpoint,
		httpClient:  httpClient,
	}, nil
}

// StatusError is returned for non-2xx provider responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider response status=%d body=%s", e.StatusCode, e.Body)
}

// Temporary reports whether the provider asked to be retried later.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

func (a *Adapter) Generate(ctx context.Context, request agent.ModelRequest) (agent.Message, error) {
	requestPayload, err := buildRequest(a.model, request)
	if err != nil {
		return agent.Message{}, fmt.Errorf("provider request: %w", err)
	}
	encoded, err := json.Marshal(requestPayload)
	if err != nil {
		return agent.Message{}, fmt.Errorf("provider request encode: %w", err)
	}

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpointURL, bytes.NewReader(encoded))
	if err != nil {
		return agent.Message{}, fmt.Errorf("provider request build: %w", err)
	}
	httpRequest.Header.Set("Authorization", "Bearer "+a.token)
	httpRequest.Header.Set("Content-Type", "application/json")

	response, err := a.httpClient.Do(httpRequest)
	if err != nil {
		return agent.Message{}, fmt.Errorf("provider request execute: %w", err)
	}
	defer response.Body.Close()

	bodyBytes, err := io.ReadAll(io.LimitReader(response.Body, maxResponseSize))
	if err != nil {
		return agent.Message{}, fmt.Errorf("provider response read: %w", err)
	}
	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return agent.Message{}, &StatusError{StatusCode: response.StatusCode, Body: string(bodyBytes)}
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(bodyBytes, &parsed); err != nil {
		return agent.Message{}, fmt.Errorf("provider response decode: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return agent.Message{}, fmt.Errorf("provider response decode: no choices")
	}
	message, err := toAgentMessage(parsed.Choices[0].Message)
	if err != nil {
		return agent.Message{}, fmt.Errorf("provider response decode: %w", err)
	}
	return message, nil
}

type chatCompletionRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Tools    []chatTool    `json:"tools,omitempty"`
}

type chatCompletionResponse struct {
	Choices []chatChoice `json:"choices"`
}

type chatChoice struct {
	Message responseMessage `json:"message"`
}

type chatMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	Name       string         `json:"name,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolCalls  []chatToolCall `json:"tool_calls,omitempty"`
}

// responseMessage accepts content either as a string or as a list of
// content parts; some serving endpoints return the latter.
type responseMessage struct {
	Role      string          `json:"role"`
	Content   json.RawMessage `json:"content"`
	ToolCalls []chatToolCall  `json:"tool_calls,omitempty"`
}

type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type chatTool struct {
	Type     string           `json:"type"`
	Function chatToolFunction `json:"function"`
}

type chatToolCall struct {
	ID       string               `json:"id"`
	Type     string               `json:"type"`
	Function chatToolCallFunction `json:"function"`
}

type chatToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type chatToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"`
}

func buildRequest(model string, request agent.ModelRequest) (chatCompletionRequest, error) {
	if err := validateToolObservations(request.Messages); err != nil {
		return chatCompletionRequest{}, err
	}

	messages := make([]chatMessage, len(request.Messages))
	for i := range request.Messages {
		converted, err := toChatMessage(request.Messages[i])
		if err != nil {
			return chatCompletionRequest{}, err
		}
		messages[i] = converted
	}

	tools := make([]chatTool, len(request.Tools))
	for i := range request.Tools {
		tools[i] = chatTool{
			Type: "function",
			Function: chatToolFunction{
				Name:        request.Tools[i].Name,
				Description: request.Tools[i].Description,
				Parameters:  request.Tools[i].InputSchema,
			},
		}
	}

	return chatCompletionRequest{
		Model:    model,
		Messages: messages,
		Tools:    tools,
	}, nil
}

// validateToolObservations rejects tool messages that answer no earlier
// assistant tool call; providers refuse such transcripts.
func validateToolObservations(messages []agent.Message) error {
	requested := make(map[string]struct{}, len(messages))
	for i, message := range messages {
		switch message.Role {
		case agent.RoleAssistant:
			for _, call := range message.ToolCalls {
				requested[call.ID] = struct{}{}
			}
		case agent.RoleTool:
			toolCallID := strings.TrimSpace(message.ToolCallID)
			if toolCallID == "" {
				return fmt.Errorf("tool message at index %d missing tool_call_id", i)
			}
			if _, ok := requested[toolCallID]; !ok {
				return fmt.Errorf("tool message at index %d references unknown tool_call_id %q", i, toolCallID)
			}
		}
	}
	return nil
}

func toChatMessage(message agent.Message) (chatMessage, error) {
	role, err := toProviderRole(message.Role)
	if err != nil {
		return chatMessage{}, err
	}

	toolCalls := make([]chatToolCall, len(message.ToolCalls))
	for i := range message.ToolCalls {
		arguments := "{}"
		if len(message.ToolCalls[i].Arguments) > 0 {
			encoded, err := json.Marshal(message.ToolCalls[i].Arguments)
			if err != nil {
				return chatMessage{}, fmt.Errorf("encode tool call arguments: %w", err)
			}
			arguments = string(encoded)
		}
		toolCalls[i] = chatToolCall{
			ID:   message.ToolCalls[i].ID,
			Type: "function",
			Function: chatToolCallFunction{
				Name:      message.ToolCalls[i].Name,
				Arguments: arguments,
			},
		}
	}

	return chatMessage{
		Role:       role,
		Content:    message.Content,
		Name:       message.Name,
		ToolCallID: message.ToolCallID,
		ToolCalls:  toolCalls,
	}, nil
}

func toProviderRole(role agent.Role) (string, error) {
	switch role {
	case agent.RoleSystem:
		return "system", nil
	case agent.RoleUser:
		return "user", nil
	case agent.RoleAssistant:
		return "assistant", nil
	case agent.RoleTool:
		return "tool", nil
	default:
		return "", fmt.Errorf("unsupported message role %q", role)
	}
}

func toAgentMessage(message responseMessage) (agent.Message, error) {
	if message.Role != "assistant" {
		return agent.Message{}, fmt.Errorf("expected assistant message role, got %q", message.Role)
	}
	content, err := decodeContent(message.Content)
	if err != nil {
		return agent.Message{}, err
	}

	var toolCalls []agent.ToolCall
	for _, call := range message.ToolCalls {
		arguments := map[string]any{}
		if strings.TrimSpace(call.Function.Arguments) != "" {
			if err := json.Unmarshal([]byte(call.Function.Arguments), &arguments); err != nil {
				return agent.Message{}, fmt.Errorf("decode tool call arguments for %q: %w", call.Function.Name, err)
			}
		}
		toolCalls = append(toolCalls, agent.ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: arguments,
		})
	}

	return agent.Message{
		Role:      agent.RoleAssistant,
		Content:   content,
		ToolCalls: toolCalls,
	}, nil
}

func decodeContent(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", nil
	}
	if trimmed[0] == '"' {
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return "", fmt.Errorf("decode content: %w", err)
		}
		return text, nil
	}

	var parts []contentPart
	if err := json.Unmarshal(trimmed, &parts); err != nil {
		return "", fmt.Errorf("decode content parts: %w", err)
	}
	var builder strings.Builder
	for _, part := range parts {
		if part.Type != "text" {
			continue
		}
		builder.WriteString(part.Text)
	}
	return builder.String(), nil
}
