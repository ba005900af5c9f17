package databricks_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Gurpartap/jobagent/adapters/databricks"
	"github.com/Gurpartap/jobagent/agent"
	"github.com/Gurpartap/jobagent/jobs"
)

func newWorkspace(t *testing.T, handler http.Handler) *databricks.Workspace {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	workspace, err := databricks.NewWorkspace(databricks.Config{Host: server.URL, Token: "dapi-test"})
	if err != nil {
		t.Fatalf("new workspace: %v", err)
	}
	return workspace
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func TestNewWorkspace_RequiresConfig(t *testing.T) {
	t.Parallel()

	if _, err := databricks.NewWorkspace(databricks.Config{Token: "t"}); !errors.Is(err, databricks.ErrMissingHost) {
		t.Fatalf("expected ErrMissingHost, got %v", err)
	}
	if _, err := databricks.NewWorkspace(databricks.Config{Host: "adb-1.net"}); !errors.Is(err, databricks.ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}
	workspace, err := databricks.NewWorkspace(databricks.Config{Host: "adb-1.net/", Token: "t"})
	if err != nil {
		t.Fatalf("new workspace: %v", err)
	}
	if workspace.Host() != "https://adb-1.net" {
		t.Fatalf("unexpected host: %q", workspace.Host())
	}
}

func TestJobs_RunNow(t *testing.T) {
	t.Parallel()

	var payload map[string]any
	workspace := newWorkspace(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/2.1/jobs/run-now" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer dapi-test" {
			t.Errorf("unexpected authorization: %q", got)
		}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		writeJSON(w, http.StatusOK, `{"run_id":455644833,"number_in_job":1}`)
	}))

	runID, err := databricks.NewJobs(workspace).RunNow(context.Background(), "123", map[string]string{"user_request": "Analyze Q3 churn"})
	if err != nil {
		t.Fatalf("run now: %v", err)
	}
	if runID != "455644833" {
		t.Fatalf("unexpected run id: %q", runID)
	}
	if payload["job_id"] != float64(123) {
		t.Fatalf("unexpected job id payload: %+v", payload)
	}
	params, _ := payload["notebook_params"].(map[string]any)
	if params["user_request"] != "Analyze Q3 churn" {
		t.Fatalf("unexpected notebook params: %+v", payload)
	}
}

func TestJobs_RunNowRejectsNonNumericJobID(t *testing.T) {
	t.Parallel()

	workspace := newWorkspace(t, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Errorf("platform must not be called")
	}))
	_, err := databricks.NewJobs(workspace).RunNow(context.Background(), "nightly", nil)
	if !errors.Is(err, agent.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestJobs_GetRun(t *testing.T) {
	t.Parallel()

	workspace := newWorkspace(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/2.1/jobs/runs/get" || r.URL.Query().Get("run_id") != "42" {
			t.Errorf("unexpected request: %s", r.URL.String())
		}
		writeJSON(w, http.StatusOK, `{
			"run_id": 42,
			"run_page_url": "https://adb-1.net/#job/123/run/42",
			"state": {"life_cycle_state": "TERMINATED", "result_state": "SUCCESS", "state_message": ""},
			"tasks": [{"task_key": "agent_task", "state": {"life_cycle_state": "TERMINATED", "result_state": "SUCCESS"}}]
		}`)
	}))

	info, err := databricks.NewJobs(workspace).GetRun(context.Background(), "42")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if got := jobs.Normalize(info.LifeCycleState, info.ResultState); got != jobs.StatusSucceeded {
		t.Fatalf("unexpected normalized status: %s", got)
	}
	if info.RunPageURL == "" || len(info.Tasks) != 1 || info.Tasks[0].TaskKey != "agent_task" {
		t.Fatalf("unexpected run info: %+v", info)
	}
}

func TestJobs_GetRunMissingFields(t *testing.T) {
	t.Parallel()

	workspace := newWorkspace(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, `{"run_id": 42}`)
	}))
	info, err := databricks.NewJobs(workspace).GetRun(context.Background(), "42")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if got := jobs.Normalize(info.LifeCycleState, info.ResultState); got != jobs.StatusUnknown {
		t.Fatalf("missing state must normalize to UNKNOWN, got %s", got)
	}
}

func TestJobs_ErrorClasses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		runID  string
		want   error
	}{
		{name: "server error", status: http.StatusServiceUnavailable, body: `{"error_code":"TEMPORARILY_UNAVAILABLE","message":"try later"}`, runID: "42", want: agent.ErrPlatformUnavailable},
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{"error_code":"REQUEST_LIMIT_EXCEEDED"}`, runID: "42", want: agent.ErrPlatformUnavailable},
		{name: "unknown run", status: http.StatusBadRequest, body: `{"error_code":"INVALID_PARAMETER_VALUE","message":"Run 42 does not exist."}`, runID: "42", want: agent.ErrInvalidHandle},
		{name: "not found", status: http.StatusNotFound, body: `not found`, runID: "42", want: agent.ErrInvalidHandle},
		{name: "forbidden", status: http.StatusForbidden, body: `{"error_code":"PERMISSION_DENIED"}`, runID: "42", want: agent.ErrToolExecution},
		{name: "malformed run id", status: http.StatusOK, body: `{}`, runID: "RUN-1", want: agent.ErrInvalidHandle},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			workspace := newWorkspace(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, tc.status, tc.body)
			}))
			_, err := databricks.NewJobs(workspace).GetRun(context.Background(), tc.runID)
			if !errors.Is(err, tc.want) {
				t.Fatalf("unexpected error class: got=%v want=%v", err, tc.want)
			}
		})
	}
}

func TestJobs_TransportFailureIsUnavailable(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()
	workspace, err := databricks.NewWorkspace(databricks.Config{Host: server.URL, Token: "t"})
	if err != nil {
		t.Fatalf("new workspace: %v", err)
	}
	if err := databricks.NewJobs(workspace).CancelRun(context.Background(), "42"); !errors.Is(err, agent.ErrPlatformUnavailable) {
		t.Fatalf("expected ErrPlatformUnavailable, got %v", err)
	}
}

func TestJobs_ClientTimeoutIsUnavailable(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(server.Close)
	t.Cleanup(func() { close(release) })

	workspace, err := databricks.NewWorkspace(databricks.Config{
		Host:       server.URL,
		Token:      "t",
		HTTPClient: &http.Client{Timeout: 50 * time.Millisecond},
	})
	if err != nil {
		t.Fatalf("new workspace: %v", err)
	}
	_, err = databricks.NewJobs(workspace).GetRun(context.Background(), "42")
	if !errors.Is(err, agent.ErrPlatformUnavailable) {
		t.Fatalf("expected ErrPlatformUnavailable for a client timeout, got %v", err)
	}
}

func TestJobs_CancelRun(t *testing.T) {
	t.Parallel()

	var payload map[string]any
	workspace := newWorkspace(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/2.1/jobs/runs/cancel" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		writeJSON(w, http.StatusOK, `{}`)
	}))
	if err := databricks.NewJobs(workspace).CancelRun(context.Background(), "42"); err != nil {
		t.Fatalf("cancel run: %v", err)
	}
	if payload["run_id"] != float64(42) {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestGenie_Ask(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	polls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/2.0/genie/spaces/space-1/start-conversation", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["content"] != "churn by quarter" {
			t.Errorf("unexpected question: %+v", body)
		}
		writeJSON(w, http.StatusOK, `{"conversation_id":"c1","message_id":"m1"}`)
	})
	mux.HandleFunc("GET /api/2.0/genie/spaces/space-1/conversations/c1/messages/m1", func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		polls++
		current := polls
		mu.Unlock()
		if current < 2 {
			writeJSON(w, http.StatusOK, `{"id":"m1","status":"EXECUTING_QUERY"}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"id":"m1","status":"COMPLETED","attachments":[
			{"attachment_id":"a1","query":{"query":"SELECT quarter, churn FROM churn","description":"Churn per quarter."}}
		]}`)
	})
	mux.HandleFunc("GET /api/2.0/genie/spaces/space-1/conversations/c1/messages/m1/attachments/a1/query-result", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, `{"statement_response":{
			"manifest":{"schema":{"columns":[{"name":"quarter"},{"name":"churn"}]}},
			"result":{"data_array":[["Q2","0.10"],["Q3",null]]}
		}}`)
	})

	genie, err := databricks.NewGenie(newWorkspace(t, mux), databricks.GenieConfig{SpaceID: "space-1", PollInterval: time.Millisecond})
	if err != nil {
		t.Fatalf("new genie: %v", err)
	}
	answer, err := genie.Ask(context.Background(), "churn by quarter")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if answer.Text != "Churn per quarter." || answer.SQL != "SELECT quarter, churn FROM churn" {
		t.Fatalf("unexpected answer: %+v", answer)
	}
	if len(answer.Columns) != 2 || len(answer.Rows) != 2 || answer.Rows[1][0] != "Q3" || answer.Rows[1][1] != "" {
		t.Fatalf("unexpected rows: columns=%v rows=%v", answer.Columns, answer.Rows)
	}
}

func TestGenie_FailedMessage(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/2.0/genie/spaces/space-1/start-conversation", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, `{"conversation_id":"c1","message_id":"m1"}`)
	})
	mux.HandleFunc("GET /api/2.0/genie/spaces/space-1/conversations/c1/messages/m1", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, `{"id":"m1","status":"FAILED","error":{"error":"table not found","type":"SQL_EXECUTION_EXCEPTION"}}`)
	})

	genie, err := databricks.NewGenie(newWorkspace(t, mux), databricks.GenieConfig{SpaceID: "space-1", PollInterval: time.Millisecond})
	if err != nil {
		t.Fatalf("new genie: %v", err)
	}
	_, err = genie.Ask(context.Background(), "x")
	if !errors.Is(err, agent.ErrToolExecution) {
		t.Fatalf("expected ErrToolExecution, got %v", err)
	}
}

func TestNewGenie_RequiresSpace(t *testing.T) {
	t.Parallel()

	workspace, err := databricks.NewWorkspace(databricks.Config{Host: "adb-1.net", Token: "t"})
	if err != nil {
		t.Fatalf("new workspace: %v", err)
	}
	if _, err := databricks.NewGenie(workspace, databricks.GenieConfig{}); !errors.Is(err, agent.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
