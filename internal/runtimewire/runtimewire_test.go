package runtimewire_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Gurpartap/jobagent/adapters/modeltest"
	"github.com/Gurpartap/jobagent/agent"
	"github.com/Gurpartap/jobagent/internal/config"
	"github.com/Gurpartap/jobagent/internal/runtimewire"
	"github.com/Gurpartap/jobagent/jobs/jobstest"
	"github.com/Gurpartap/jobagent/steplog"
	steploginmem "github.com/Gurpartap/jobagent/steplog/inmem"
)

func TestWorkerRecordsStepTrail(t *testing.T) {
	t.Parallel()

	steps := steploginmem.New()
	worker, err := runtimewire.NewWorker(config.Default(), nil, "RUN-1", runtimewire.Options{Steps: steps})
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	defer worker.Close()

	answer, err := worker.Run(context.Background(), "show churn by quarter")
	if err != nil {
		t.Fatalf("run worker: %v", err)
	}
	if !strings.Contains(answer, "churn_rate") {
		t.Fatalf("expected answer to include query rows, got %q", answer)
	}

	entries, err := steps.List(context.Background(), "RUN-1")
	if err != nil {
		t.Fatalf("list steps: %v", err)
	}
	want := []steplog.Status{steplog.StatusToolCall, steplog.StatusToolResult, steplog.StatusCompleted}
	if len(entries) != len(want) {
		t.Fatalf("step count mismatch: got=%d want=%d", len(entries), len(want))
	}
	for i, entry := range entries {
		if entry.Status != want[i] {
			t.Fatalf("entry %d status mismatch: got=%s want=%s", i, entry.Status, want[i])
		}
		if entry.Step != int64(i) {
			t.Fatalf("entry %d step mismatch: got=%d want=%d", i, entry.Step, i)
		}
	}
}

func TestWorkerModelFailureWritesErrorEntry(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Retry.MaxAttempts = 1
	steps := steploginmem.New()
	model := modeltest.NewScriptedModel(modeltest.Fail(errors.New("endpoint down")))
	worker, err := runtimewire.NewWorker(cfg, nil, "RUN-2", runtimewire.Options{Model: model, Steps: steps})
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	defer worker.Close()

	_, err = worker.Run(context.Background(), "show churn")
	if !errors.Is(err, agent.ErrLLMUnavailable) {
		t.Fatalf("expected ErrLLMUnavailable, got %v", err)
	}

	entries, err := steps.List(context.Background(), "RUN-2")
	if err != nil {
		t.Fatalf("list steps: %v", err)
	}
	if len(entries) != 1 || entries[0].Status != steplog.StatusError {
		t.Fatalf("expected one error entry, got %+v", entries)
	}
	if !strings.Contains(string(entries[0].Payload), "endpoint down") {
		t.Fatalf("error payload mismatch: %s", entries[0].Payload)
	}
}

func TestWorkerRetriesModelEndpointTimeout(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Retry.Backoff = 0
	model := modeltest.NewScriptedModel(
		modeltest.Fail(context.DeadlineExceeded),
		modeltest.Text("recovered"),
	)
	worker, err := runtimewire.NewWorker(cfg, nil, "RUN-4", runtimewire.Options{Model: model, Steps: steploginmem.New()})
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	defer worker.Close()

	answer, err := worker.Run(context.Background(), "show churn")
	if err != nil {
		t.Fatalf("run worker: %v", err)
	}
	if answer != "recovered" || model.Calls() != 2 {
		t.Fatalf("unexpected result: answer=%q calls=%d", answer, model.Calls())
	}
}

func TestWorkerEmptyRequestIsRecorded(t *testing.T) {
	t.Parallel()

	steps := steploginmem.New()
	worker, err := runtimewire.NewWorker(config.Default(), nil, "RUN-3", runtimewire.Options{Steps: steps})
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	defer worker.Close()

	if _, err := worker.Run(context.Background(), "  "); !errors.Is(err, agent.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	entries, _ := steps.List(context.Background(), "RUN-3")
	if len(entries) != 1 || entries[0].Status != steplog.StatusError {
		t.Fatalf("expected one error entry, got %+v", entries)
	}
}

func TestNewWorkerRequiresRunID(t *testing.T) {
	t.Parallel()

	if _, err := runtimewire.NewWorker(config.Default(), nil, " ", runtimewire.Options{}); !errors.Is(err, steplog.ErrEmptyRunID) {
		t.Fatalf("expected ErrEmptyRunID, got %v", err)
	}
}

func TestSupervisorToolSurface(t *testing.T) {
	t.Parallel()

	supervisor, err := runtimewire.NewSupervisor(config.Default(), nil, runtimewire.Options{})
	if err != nil {
		t.Fatalf("new supervisor: %v", err)
	}
	defer supervisor.Close()

	var names []string
	for _, tool := range supervisor.Tools {
		names = append(names, tool.Name)
	}
	got := strings.Join(names, ",")
	if got != "query_data,start_job,poll_job,terminate_job" {
		t.Fatalf("tool surface mismatch: got=%s", got)
	}
}

func TestSupervisorSharesSQLiteStoreWithWorker(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Store.Path = filepath.Join(t.TempDir(), "agent.db")
	platform := jobstest.New()

	supervisor, err := runtimewire.NewSupervisor(cfg, nil, runtimewire.Options{Platform: platform})
	if err != nil {
		t.Fatalf("new supervisor: %v", err)
	}
	defer supervisor.Close()

	started, err := supervisor.Runner.Invoke(context.Background(), agent.Request{
		Input: []agent.InputMessage{{Role: agent.RoleUser, Content: "Analyze Q3 churn"}},
	})
	if err != nil {
		t.Fatalf("start turn: %v", err)
	}
	runID, _ := started.CustomOutputs[agent.CustomOutputRunID].(string)
	if runID != "RUN-1" {
		t.Fatalf("run id mismatch: got=%q want=%q", runID, "RUN-1")
	}
	submissions := platform.Submissions()
	if len(submissions) != 1 || submissions[0].Parameters["user_request"] != "Analyze Q3 churn" {
		t.Fatalf("submission mismatch: %+v", submissions)
	}

	worker, err := runtimewire.NewWorker(cfg, nil, runID, runtimewire.Options{})
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	if _, err := worker.Run(context.Background(), submissions[0].Parameters["user_request"]); err != nil {
		t.Fatalf("run worker: %v", err)
	}
	if err := worker.Close(); err != nil {
		t.Fatalf("close worker: %v", err)
	}

	entries, err := supervisor.Steps.List(context.Background(), runID)
	if err != nil {
		t.Fatalf("list steps: %v", err)
	}
	if len(entries) == 0 || entries[len(entries)-1].Status != steplog.StatusCompleted {
		t.Fatalf("expected the worker trail to end completed, got %+v", entries)
	}
}

func TestUnsupportedMode(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Mode = "bogus"
	if _, err := runtimewire.NewSupervisor(cfg, nil, runtimewire.Options{}); err == nil {
		t.Fatalf("expected unsupported mode error")
	}
}
