package databricks

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/Gurpartap/jobagent/agent"
	"github.com/Gurpartap/jobagent/jobs"
)

// Jobs is the Jobs 2.1 API as a jobs.Platform.
type Jobs struct {
	workspace *Workspace
}

var _ jobs.Platform = (*Jobs)(nil)

func NewJobs(workspace *Workspace) *Jobs {
	return &Jobs{workspace: workspace}
}

type runNowRequest struct {
	JobID          int64             `json:"job_id"`
	NotebookParams map[string]string `json:"notebook_params,omitempty"`
}

type runNowResponse struct {
	RunID int64 `json:"run_id"`
}

type runState struct {
	LifeCycleState string `json:"life_cycle_state"`
	ResultState    string `json:"result_state"`
	StateMessage   string `json:"state_message"`
}

type runTask struct {
	TaskKey string   `json:"task_key"`
	State   runState `json:"state"`
}

type getRunResponse struct {
	RunID      int64     `json:"run_id"`
	State      runState  `json:"state"`
	RunPageURL string    `json:"run_page_url"`
	Tasks      []runTask `json:"tasks"`
}

type cancelRunRequest struct {
	RunID int64 `json:"run_id"`
}

func (j *Jobs) RunNow(ctx context.Context, jobID string, parameters map[string]string) (string, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(jobID), 10, 64)
	if err != nil {
		return "", fmt.Errorf("%w: job id %q is not numeric", agent.ErrValidation, jobID)
	}

	var response runNowResponse
	request := runNowRequest{JobID: id, NotebookParams: parameters}
	if err := j.workspace.do(ctx, http.MethodPost, "/api/2.1/jobs/run-now", nil, request, &response); err != nil {
		return "", err
	}
	if response.RunID == 0 {
		return "", nil
	}
	return strconv.FormatInt(response.RunID, 10), nil
}

func (j *Jobs) GetRun(ctx context.Context, runID string) (jobs.RunInfo, error) {
	id, err := parseRunID(runID)
	if err != nil {
		return jobs.RunInfo{}, err
	}

	var response getRunResponse
	query := url.Values{"run_id": []string{strconv.FormatInt(id, 10)}}
	if err := j.workspace.do(ctx, http.MethodGet, "/api/2.1/jobs/runs/get", query, nil, &response); err != nil {
		return jobs.RunInfo{}, err
	}

	info := jobs.RunInfo{
		RunID:          runID,
		LifeCycleState: response.State.LifeCycleState,
		ResultState:    response.State.ResultState,
		StateMessage:   response.State.StateMessage,
		RunPageURL:     response.RunPageURL,
	}
	for _, task := range response.Tasks {
		info.Tasks = append(info.Tasks, jobs.TaskInfo{
			TaskKey:        task.TaskKey,
			LifeCycleState: task.State.LifeCycleState,
			ResultState:    task.State.ResultState,
		})
	}
	return info, nil
}

func (j *Jobs) CancelRun(ctx context.Context, runID string) error {
	id, err := parseRunID(runID)
	if err != nil {
		return err
	}
	return j.workspace.do(ctx, http.MethodPost, "/api/2.1/jobs/runs/cancel", nil, cancelRunRequest{RunID: id}, nil)
}

func parseRunID(runID string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(runID), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: run id %q is not a Databricks run id", agent.ErrInvalidHandle, runID)
	}
	return id, nil
}
