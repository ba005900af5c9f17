// Package databricks implements the job platform and the query service on top
// of the Databricks workspace REST API.
package databricks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Gurpartap/jobagent/agent"
)

const (
	defaultTimeout  = 60 * time.Second
	maxResponseSize = 8 << 20
)

var (
	ErrMissingHost  = errors.New("databricks host is required")
	ErrMissingToken = errors.New("databricks token is required")
)

type Config struct {
	Host       string
	Token      string
	HTTPClient *http.Client
}

// Workspace is an authenticated client for one workspace.
type Workspace struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewWorkspace(cfg Config) (*Workspace, error) {
	host := strings.TrimRight(strings.TrimSpace(cfg.Host), "/")
	if host == "" {
		return nil, fmt.Errorf("new workspace: %w", ErrMissingHost)
	}
	if !strings.Contains(host, "://") {
		host = "https://" + host
	}
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, fmt.Errorf("new workspace: %w", ErrMissingToken)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Workspace{baseURL: host, token: token, httpClient: httpClient}, nil
}

// Host returns the normalized workspace URL.
func (w *Workspace) Host() string {
	return w.baseURL
}

// APIError is a non-2xx workspace response. It unwraps to the agent error
// class the status maps to.
type APIError struct {
	StatusCode int
	ErrorCode  string `json:"error_code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.ErrorCode == "" && e.Message == "" {
		return fmt.Sprintf("databricks api status=%d", e.StatusCode)
	}
	return fmt.Sprintf("databricks api status=%d code=%s: %s", e.StatusCode, e.ErrorCode, e.Message)
}

func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError:
		return agent.ErrPlatformUnavailable
	case e.StatusCode == http.StatusNotFound,
		e.ErrorCode == "RESOURCE_DOES_NOT_EXIST",
		e.ErrorCode == "INVALID_PARAMETER_VALUE":
		return agent.ErrInvalidHandle
	default:
		return agent.ErrToolExecution
	}
}

// do sends one request. A nil body sends none; a nil out discards the response.
func (w *Workspace) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := w.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s %s: encode request: %w", method, path, err)
		}
		reader = bytes.NewReader(encoded)
	}
	request, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("%s %s: build request: %w", method, path, err)
	}
	request.Header.Set("Authorization", "Bearer "+w.token)
	request.Header.Set("Accept", "application/json")
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := w.httpClient.Do(request)
	if err != nil {
		if cancellationErr := agent.ContextCancellationError(ctx, err); cancellationErr != nil {
			return cancellationErr
		}
		return fmt.Errorf("%w: %s %s: %w", agent.ErrPlatformUnavailable, method, path, err)
	}
	defer response.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(response.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("%w: %s %s: read response: %w", agent.ErrPlatformUnavailable, method, path, err)
	}
	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		apiErr := &APIError{StatusCode: response.StatusCode}
		if json.Unmarshal(payload, apiErr) != nil {
			apiErr.Message = strings.TrimSpace(string(payload))
		}
		return fmt.Errorf("%s %s: %w", method, path, apiErr)
	}
	if out == nil || len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%w: %s %s: decode response: %w", agent.ErrToolExecution, method, path, err)
	}
	return nil
}
