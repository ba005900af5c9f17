package steplog

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/Gurpartap/jobagent/agent"
)

// NoTextOutput is the completed payload answer when the final message was empty.
const NoTextOutput = "(no text output)"

type RecorderConfig struct {
	RunID  string
	Writer Writer
	Logger *slog.Logger
	Now    func() time.Time
}

// Recorder is an agent.EventSink that turns loop transitions into step log
// entries for a single run. Writes are best-effort: failures are logged and
// never returned to the loop.
type Recorder struct {
	runID  string
	writer Writer
	logger *slog.Logger
	now    func() time.Time

	mu   sync.Mutex
	next int64
}

var _ agent.EventSink = (*Recorder)(nil)

func NewRecorder(cfg RecorderConfig) *Recorder {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Recorder{
		runID:  cfg.RunID,
		writer: cfg.Writer,
		logger: logger.With(slog.String("run_id", cfg.RunID)),
		now:    now,
	}
}

type toolCallPayload struct {
	Tool      string         `json:"tool"`
	CallID    string         `json:"call_id"`
	Arguments map[string]any `json:"arguments"`
}

type toolResultPayload struct {
	Tool    string `json:"tool"`
	CallID  string `json:"call_id"`
	Output  string `json:"output"`
	IsError bool   `json:"is_error,omitempty"`
}

type completedPayload struct {
	Answer string `json:"answer"`
}

type errorPayload struct {
	Error string `json:"error"`
}

func (r *Recorder) Publish(ctx context.Context, event agent.Event) error {
	status, payload, ok := entryFor(event)
	if !ok {
		return nil
	}
	r.Record(ctx, status, payload)
	return nil
}

// Record appends one entry with the next step number. The step counter
// advances even when the write fails.
func (r *Recorder) Record(ctx context.Context, status Status, payload any) {
	r.mu.Lock()
	step := r.next
	r.next++
	r.mu.Unlock()

	raw, err := json.Marshal(payload)
	if err != nil {
		r.logger.Warn("step log payload not serializable", slog.Int64("step", step), slog.Any("error", err))
		raw = json.RawMessage(`null`)
	}
	entry := Entry{
		RunID:     r.runID,
		Step:      step,
		Status:    status,
		Timestamp: r.now().UTC(),
		Payload:   raw,
	}
	if r.writer == nil {
		return
	}
	if err := r.writer.Append(context.WithoutCancel(ctx), entry); err != nil {
		r.logger.Warn(
			"step log write failed",
			slog.Int64("step", step),
			slog.String("status", string(status)),
			slog.Any("error", err),
		)
		return
	}
	r.logger.Debug("step logged", slog.Int64("step", step), slog.String("status", string(status)))
}

// RecordError appends an error entry, for failures outside the loop.
func (r *Recorder) RecordError(ctx context.Context, err error) {
	r.Record(ctx, StatusError, errorPayload{Error: err.Error()})
}

func entryFor(event agent.Event) (Status, any, bool) {
	switch event.Type {
	case agent.EventTypeToolCall:
		if event.ToolCall == nil {
			return "", nil, false
		}
		return StatusToolCall, toolCallPayload{
			Tool:      event.ToolCall.Name,
			CallID:    event.ToolCall.ID,
			Arguments: event.ToolCall.Arguments,
		}, true
	case agent.EventTypeToolResult:
		if event.ToolResult == nil {
			return "", nil, false
		}
		return StatusToolResult, toolResultPayload{
			Tool:    event.ToolResult.Name,
			CallID:  event.ToolResult.CallID,
			Output:  event.ToolResult.Content,
			IsError: event.ToolResult.IsError,
		}, true
	case agent.EventTypeCompleted:
		answer := ""
		if event.Message != nil {
			answer = event.Message.Content
		}
		if answer == "" {
			answer = NoTextOutput
		}
		return StatusCompleted, completedPayload{Answer: answer}, true
	case agent.EventTypeFailed:
		return StatusError, errorPayload{Error: event.Description}, true
	default:
		return "", nil, false
	}
}
