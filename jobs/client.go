// Package jobs is the client side of the asynchronous job protocol: submit a
// run, read its normalized status, and request cancellation.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/Gurpartap/jobagent/agent"
)

// Platform is the external job runner. Implementations return errors wrapping
// agent.ErrPlatformUnavailable for transient failures and agent.ErrInvalidHandle
// for unknown runs.
type Platform interface {
	RunNow(ctx context.Context, jobID string, parameters map[string]string) (string, error)
	GetRun(ctx context.Context, runID string) (RunInfo, error)
	CancelRun(ctx context.Context, runID string) error
}

// RunInfo is the raw platform view of a run. Any field may be empty.
type RunInfo struct {
	RunID          string
	LifeCycleState string
	ResultState    string
	StateMessage   string
	RunPageURL     string
	Tasks          []TaskInfo
}

// TaskInfo is one task of a multi-task run.
type TaskInfo struct {
	TaskKey        string `json:"task_key"`
	LifeCycleState string `json:"state,omitempty"`
	ResultState    string `json:"result,omitempty"`
}

// Handle identifies a submitted run. It is not persisted by this package.
type Handle struct {
	RunID       string    `json:"run_id"`
	JobID       string    `json:"job_id"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// RunStatus is the normalized status of a run plus the platform detail it was derived from.
type RunStatus struct {
	RunID          string
	Status         Status
	LifeCycleState string
	ResultState    string
	StateMessage   string
	RunPageURL     string
	Tasks          []TaskInfo
}

// CancelOutcome reports whether a cancel request was sent and the state it was based on.
type CancelOutcome struct {
	Cancelled bool
	Status    RunStatus
}

type Config struct {
	Platform          Platform
	DefaultJobID      string
	DefaultParameters map[string]string
	Logger            *slog.Logger
	Now               func() time.Time
}

// Client is safe for concurrent use when the Platform is.
type Client struct {
	platform          Platform
	defaultJobID      string
	defaultParameters map[string]string
	logger            *slog.Logger
	now               func() time.Time
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.Platform == nil {
		return nil, fmt.Errorf("new job client: missing platform")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Client{
		platform:          cfg.Platform,
		defaultJobID:      cfg.DefaultJobID,
		defaultParameters: maps.Clone(cfg.DefaultParameters),
		logger:            logger,
		now:               now,
	}, nil
}

// Submit starts a run and returns as soon as the platform accepts it. An empty
// jobID selects the configured default job. parameters override the defaults.
func (c *Client) Submit(ctx context.Context, jobID string, parameters map[string]string) (Handle, error) {
	if jobID == "" {
		jobID = c.defaultJobID
	}
	if jobID == "" {
		return Handle{}, fmt.Errorf("%w: no job id given and no default job configured", agent.ErrValidation)
	}

	merged := make(map[string]string, len(c.defaultParameters)+len(parameters))
	maps.Copy(merged, c.defaultParameters)
	maps.Copy(merged, parameters)

	c.logger.Info("submitting job run", slog.String("job_id", jobID))
	runID, err := c.platform.RunNow(ctx, jobID, merged)
	if err != nil {
		return Handle{}, fmt.Errorf("run job %s: %w", jobID, err)
	}
	if strings.TrimSpace(runID) == "" {
		return Handle{}, fmt.Errorf("%w: run job %s: platform returned no run id", agent.ErrToolExecution, jobID)
	}
	c.logger.Info("job run submitted", slog.String("job_id", jobID), slog.String("run_id", runID))
	return Handle{RunID: runID, JobID: jobID, SubmittedAt: c.now().UTC()}, nil
}

// Status reads the current state of a run. It never waits for the run to progress.
func (c *Client) Status(ctx context.Context, runID string) (RunStatus, error) {
	if err := validateRunID(runID); err != nil {
		return RunStatus{}, err
	}
	info, err := c.platform.GetRun(ctx, runID)
	if err != nil {
		return RunStatus{}, fmt.Errorf("get run %s: %w", runID, err)
	}
	status := RunStatus{
		RunID:          runID,
		Status:         Normalize(info.LifeCycleState, info.ResultState),
		LifeCycleState: info.LifeCycleState,
		ResultState:    info.ResultState,
		StateMessage:   info.StateMessage,
		RunPageURL:     info.RunPageURL,
		Tasks:          append([]TaskInfo(nil), info.Tasks...),
	}
	c.logger.Debug("job run status", slog.String("run_id", runID), slog.String("status", string(status.Status)))
	return status, nil
}

// Cancel asks the platform to cancel a queued or running run. Runs in any other
// state are reported as not cancelled without contacting the cancel endpoint.
// Cancellation is best-effort: the run may still report progress afterwards.
func (c *Client) Cancel(ctx context.Context, runID string) (CancelOutcome, error) {
	status, err := c.Status(ctx, runID)
	if err != nil {
		return CancelOutcome{}, err
	}
	if !cancellable(status) {
		c.logger.Warn(
			"job run is not cancellable",
			slog.String("run_id", runID),
			slog.String("status", string(status.Status)),
			slog.String("life_cycle_state", status.LifeCycleState),
		)
		return CancelOutcome{Status: status}, nil
	}
	if err := c.platform.CancelRun(ctx, runID); err != nil {
		return CancelOutcome{}, fmt.Errorf("cancel run %s: %w", runID, err)
	}
	c.logger.Info("job run cancel requested", slog.String("run_id", runID))
	return CancelOutcome{Cancelled: true, Status: status}, nil
}

func cancellable(status RunStatus) bool {
	if !status.Status.IsActive() {
		return false
	}
	return !strings.EqualFold(status.LifeCycleState, "TERMINATING")
}

func validateRunID(runID string) error {
	if strings.TrimSpace(runID) == "" {
		return fmt.Errorf("%w: run id is empty", agent.ErrInvalidHandle)
	}
	return nil
}
