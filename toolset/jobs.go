package toolset

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Gurpartap/jobagent/agent"
	"github.com/Gurpartap/jobagent/jobs"
	"github.com/Gurpartap/jobagent/steplog"
	"github.com/Gurpartap/jobagent/tooling/registry"
)

// UserRequestParameter carries the delegated request to the worker.
const UserRequestParameter = "user_request"

var runIDSchema = map[string]any{
	"type":                 "object",
	"required":             []string{"run_id"},
	"additionalProperties": false,
	"properties": map[string]any{
		"run_id": map[string]any{
			"type":        "string",
			"minLength":   1,
			"description": "The run ID returned when the job was started.",
		},
	},
}

type startJobTool struct {
	client JobClient
}

// NewStartJob builds start_job. The job id comes from the client's default.
func NewStartJob(client JobClient) registry.Tool {
	return &startJobTool{client: client}
}

func (t *startJobTool) Definition() agent.ToolDefinition {
	return agent.ToolDefinition{
		Name: StartJob,
		Description: "Start a background job with the user's request. Use this when the user wants to kick off " +
			"a long-running analysis or workflow. The turn ends right after the job starts; tell the user the run ID.",
		InputSchema: map[string]any{
			"type":                 "object",
			"required":             []string{UserRequestParameter},
			"additionalProperties": false,
			"properties": map[string]any{
				UserRequestParameter: map[string]any{
					"type":        "string",
					"minLength":   1,
					"description": "The user's request to pass to the job.",
				},
				"parameters": map[string]any{
					"type":        "object",
					"description": "Optional additional parameters to pass to the job.",
				},
			},
		},
	}
}

func (t *startJobTool) Execute(ctx context.Context, arguments map[string]any) (map[string]any, error) {
	parameters, err := jobParameters(arguments["parameters"])
	if err != nil {
		return nil, err
	}
	parameters[UserRequestParameter] = arguments[UserRequestParameter].(string)

	handle, err := t.client.Submit(ctx, "", parameters)
	if err != nil {
		return nil, fmt.Errorf("start job: %w", err)
	}
	return success(
		fmt.Sprintf(
			"Job started successfully. Run ID: %s. The user can check the status later by asking about run %s.",
			handle.RunID,
			handle.RunID,
		),
		map[string]any{
			"run_id":       handle.RunID,
			"job_id":       handle.JobID,
			"submitted_at": handle.SubmittedAt.Format(time.RFC3339),
		},
	), nil
}

// jobParameters flattens free-form parameters to the string map job platforms take.
func jobParameters(raw any) (map[string]string, error) {
	out := map[string]string{}
	if raw == nil {
		return out, nil
	}
	values, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: parameters must be an object", agent.ErrValidation)
	}
	for key, value := range values {
		switch v := value.(type) {
		case string:
			out[key] = v
		case nil:
			out[key] = ""
		default:
			encoded, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("%w: parameter %q: %w", agent.ErrValidation, key, err)
			}
			out[key] = string(encoded)
		}
	}
	return out, nil
}

type pollJobTool struct {
	client JobClient
	steps  steplog.Reader
	limit  int
}

// NewPollJob builds poll_job. When steps is non-nil the last limit step log
// entries of the run are merged into the result.
func NewPollJob(client JobClient, steps steplog.Reader, limit int) registry.Tool {
	return &pollJobTool{client: client, steps: steps, limit: limit}
}

func (t *pollJobTool) Definition() agent.ToolDefinition {
	return agent.ToolDefinition{
		Name: PollJob,
		Description: "Check the current status of a previously started job run. Returns immediately with the " +
			"current state and recent progress; it does not wait for the job to finish.",
		InputSchema: runIDSchema,
	}
}

type stepView struct {
	Step      int64           `json:"step"`
	Status    steplog.Status  `json:"status"`
	Timestamp string          `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

func (t *pollJobTool) Execute(ctx context.Context, arguments map[string]any) (map[string]any, error) {
	runID := strings.TrimSpace(arguments["run_id"].(string))
	status, err := t.client.Status(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("get status for run %s: %w", runID, err)
	}

	running := status.Status.IsActive()
	out := success(statusMessage(status), map[string]any{
		"run_id":     runID,
		"status":     string(status.Status),
		"is_running": running,
	})
	optional(out, "life_cycle_state", status.LifeCycleState)
	optional(out, "state_message", status.StateMessage)
	optional(out, "run_page_url", status.RunPageURL)
	if status.ResultState != "" {
		out["result_state"] = status.ResultState
		out["is_successful"] = status.Status == jobs.StatusSucceeded
	}
	if !running && len(status.Tasks) > 0 {
		out["tasks"] = status.Tasks
	}

	if t.steps != nil {
		entries, err := t.steps.List(ctx, runID)
		if err != nil {
			out["steps_error"] = err.Error()
			return out, nil
		}
		recent := steplog.Tail(entries, t.limit)
		views := make([]stepView, len(recent))
		for i, entry := range recent {
			views[i] = stepView{
				Step:      entry.Step,
				Status:    entry.Status,
				Timestamp: entry.Timestamp.Format(time.RFC3339),
				Payload:   entry.Payload,
			}
		}
		out["recent_steps"] = views
		out["total_steps"] = len(entries)
	}
	return out, nil
}

func statusMessage(status jobs.RunStatus) string {
	switch status.Status {
	case jobs.StatusPending:
		return fmt.Sprintf("Job run %s is queued and has not started yet.", status.RunID)
	case jobs.StatusRunning:
		return fmt.Sprintf("Job run %s is still running.", status.RunID)
	case jobs.StatusSucceeded:
		return fmt.Sprintf("Job run %s finished successfully.", status.RunID)
	case jobs.StatusFailed:
		return fmt.Sprintf("Job run %s failed.", status.RunID)
	case jobs.StatusCancelled:
		return fmt.Sprintf("Job run %s was cancelled.", status.RunID)
	default:
		return fmt.Sprintf("The state of job run %s is unknown.", status.RunID)
	}
}

type terminateJobTool struct {
	client JobClient
}

func NewTerminateJob(client JobClient) registry.Tool {
	return &terminateJobTool{client: client}
}

func (t *terminateJobTool) Definition() agent.ToolDefinition {
	return agent.ToolDefinition{
		Name:        TerminateJob,
		Description: "Cancel a queued or running job run. Cancellation is best-effort.",
		InputSchema: runIDSchema,
	}
}

func (t *terminateJobTool) Execute(ctx context.Context, arguments map[string]any) (map[string]any, error) {
	runID := strings.TrimSpace(arguments["run_id"].(string))
	outcome, err := t.client.Cancel(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("terminate run %s: %w", runID, err)
	}

	fields := map[string]any{
		"run_id": runID,
		"status": string(outcome.Status.Status),
	}
	optional(fields, "life_cycle_state", outcome.Status.LifeCycleState)
	if !outcome.Cancelled {
		state := outcome.Status.LifeCycleState
		if state == "" {
			state = "unknown"
		}
		return failure(
			fmt.Sprintf("Job run %s is not in a cancellable state. Current state: %s", runID, state),
			fields,
		), nil
	}
	return success(fmt.Sprintf("Job run %s has been cancelled successfully.", runID), fields), nil
}
