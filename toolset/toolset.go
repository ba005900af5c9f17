// Package toolset holds the tools exposed to the conversational agent and to
// the background worker, plus the continuation policy that ends a turn once a
// job has been delegated.
package toolset

import (
	"context"
	"maps"

	"github.com/Gurpartap/jobagent/jobs"
)

const (
	QueryData    = "query_data"
	StartJob     = "start_job"
	PollJob      = "poll_job"
	TerminateJob = "terminate_job"
)

// JobClient is the job handle protocol used by the job tools. *jobs.Client implements it.
type JobClient interface {
	Submit(ctx context.Context, jobID string, parameters map[string]string) (jobs.Handle, error)
	Status(ctx context.Context, runID string) (jobs.RunStatus, error)
	Cancel(ctx context.Context, runID string) (jobs.CancelOutcome, error)
}

var _ JobClient = (*jobs.Client)(nil)

// success builds the standard tool response envelope.
func success(message string, fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields)+2)
	maps.Copy(out, fields)
	out["success"] = true
	out["message"] = message
	return out
}

// failure is the envelope for a handled outcome that did not do what was asked.
func failure(message string, fields map[string]any) map[string]any {
	out := success(message, fields)
	out["success"] = false
	return out
}

func optional(out map[string]any, key, value string) {
	if value != "" {
		out[key] = value
	}
}
