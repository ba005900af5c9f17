// Package runtimewire composes the conversational agent and the background
// worker from a resolved configuration.
package runtimewire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Gurpartap/jobagent/adapters/databricks"
	"github.com/Gurpartap/jobagent/adapters/idgen"
	"github.com/Gurpartap/jobagent/adapters/modelopenai"
	"github.com/Gurpartap/jobagent/agent"
	"github.com/Gurpartap/jobagent/agentreact"
	checkpointinmem "github.com/Gurpartap/jobagent/checkpoint/inmem"
	checkpointsqlite "github.com/Gurpartap/jobagent/checkpoint/sqlite"
	"github.com/Gurpartap/jobagent/eventing"
	"github.com/Gurpartap/jobagent/eventing/slogsink"
	"github.com/Gurpartap/jobagent/internal/config"
	"github.com/Gurpartap/jobagent/internal/runtimewire/mocks"
	"github.com/Gurpartap/jobagent/internal/sqlitepool"
	"github.com/Gurpartap/jobagent/jobs"
	"github.com/Gurpartap/jobagent/jobs/jobstest"
	"github.com/Gurpartap/jobagent/policy/retry"
	"github.com/Gurpartap/jobagent/steplog"
	steploginmem "github.com/Gurpartap/jobagent/steplog/inmem"
	steplogsqlite "github.com/Gurpartap/jobagent/steplog/sqlite"
	"github.com/Gurpartap/jobagent/tooling/registry"
	"github.com/Gurpartap/jobagent/toolset"
)

const (
	mockJobID       = "mock-job"
	mockRunDuration = 2 * time.Minute
)

// Options replaces individual collaborators. Nil fields are built from the config.
type Options struct {
	Model       agent.Model
	Platform    jobs.Platform
	Query       toolset.QueryService
	Checkpoints agent.CheckpointStore
	Steps       steplog.Store
	IDGenerator agent.IDGenerator
}

// Supervisor is the conversational agent.
type Supervisor struct {
	Runner *agent.Runner
	Steps  steplog.Reader
	Tools  []agent.ToolDefinition

	close func() error
}

func (s *Supervisor) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

func NewSupervisor(cfg config.Config, logger *slog.Logger, opts Options) (*Supervisor, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	deps, err := resolve(cfg, logger, opts)
	if err != nil {
		return nil, err
	}

	client, err := jobs.NewClient(jobs.Config{
		Platform:          deps.platform,
		DefaultJobID:      deps.jobID,
		DefaultParameters: cfg.JobParameters,
		Logger:            logger,
	})
	if err != nil {
		return nil, errors.Join(fmt.Errorf("new job client: %w", err), deps.close())
	}

	var tools []registry.Tool
	if deps.query != nil {
		tools = append(tools, toolset.NewQueryData(deps.query, cfg.Genie.Description))
	}
	tools = append(tools,
		toolset.NewStartJob(client),
		toolset.NewPollJob(client, deps.steps, cfg.Agent.StepLogLimit),
		toolset.NewTerminateJob(client),
	)
	registered, err := registry.New(tools...)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("new tool registry: %w", err), deps.close())
	}

	loop, err := agentreact.New(agentreact.Config{
		Model:    deps.model,
		Tools:    registered,
		Events:   slogsink.New(logger, cfg.Log.Format == config.LogFormatJSON),
		Policy:   toolset.DelegationPolicy,
		Parallel: cfg.Agent.ParallelTools,
	})
	if err != nil {
		return nil, errors.Join(fmt.Errorf("new supervisor loop: %w", err), deps.close())
	}

	idGenerator := opts.IDGenerator
	if idGenerator == nil {
		idGenerator = idgen.UUID{}
	}
	runner, err := agent.NewRunner(agent.Dependencies{
		IDGenerator:  idGenerator,
		Checkpoints:  deps.checkpoints,
		Engine:       loop,
		Logger:       logger,
		SystemPrompt: cfg.SystemPrompt,
		Tools:        registered.Definitions(),
		MaxSteps:     cfg.Agent.MaxSteps,
	})
	if err != nil {
		return nil, errors.Join(fmt.Errorf("new runner: %w", err), deps.close())
	}

	return &Supervisor{
		Runner: runner,
		Steps:  deps.steps,
		Tools:  registered.Definitions(),
		close:  deps.close,
	}, nil
}

// Worker runs the delegated request of one job run and records its progress
// in the step log.
type Worker struct {
	runID        string
	loop         *agentreact.Loop
	tools        []agent.ToolDefinition
	recorder     *steplog.Recorder
	systemPrompt string
	maxSteps     int
	logger       *slog.Logger

	close func() error
}

func NewWorker(cfg config.Config, logger *slog.Logger, runID string, opts Options) (*Worker, error) {
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return nil, fmt.Errorf("new worker: %w", steplog.ErrEmptyRunID)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With(slog.String("run_id", runID))

	deps, err := resolve(cfg, logger, opts)
	if err != nil {
		return nil, err
	}

	var tools []registry.Tool
	if deps.query != nil {
		tools = append(tools, toolset.NewQueryData(deps.query, cfg.Genie.Description))
	}
	registered, err := registry.New(tools...)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("new tool registry: %w", err), deps.close())
	}

	recorder := steplog.NewRecorder(steplog.RecorderConfig{
		RunID:  runID,
		Writer: deps.steps,
		Logger: logger,
	})
	loop, err := agentreact.New(agentreact.Config{
		Model:    deps.model,
		Tools:    registered,
		Events:   eventing.NewFanout(recorder, slogsink.New(logger, cfg.Log.Format == config.LogFormatJSON)),
		Parallel: cfg.Agent.ParallelTools,
	})
	if err != nil {
		return nil, errors.Join(fmt.Errorf("new worker loop: %w", err), deps.close())
	}

	return &Worker{
		runID:        runID,
		loop:         loop,
		tools:        registered.Definitions(),
		recorder:     recorder,
		systemPrompt: cfg.WorkerSystemPrompt,
		maxSteps:     cfg.Agent.MaxSteps,
		logger:       logger,
		close:        deps.close,
	}, nil
}

// Run executes the request once and returns the final answer. Loop failures
// are already in the step log as an error entry when Run returns.
func (w *Worker) Run(ctx context.Context, userRequest string) (string, error) {
	if strings.TrimSpace(userRequest) == "" {
		err := fmt.Errorf("%w: user request is empty", agent.ErrValidation)
		w.recorder.RecordError(ctx, err)
		return "", err
	}

	state := agent.NewConversationState("", w.systemPrompt)
	state.Messages = append(state.Messages, agent.Message{Role: agent.RoleUser, Content: userRequest})

	w.logger.Info("worker run started", slog.Int("tools", len(w.tools)))
	result, err := w.loop.Execute(ctx, state, agent.EngineInput{
		MaxSteps: w.maxSteps,
		Tools:    agent.CloneToolDefinitions(w.tools),
	})
	if err != nil {
		w.logger.Error("worker run failed", slog.Int("steps", result.Steps), slog.Any("error", err))
		return "", err
	}
	w.logger.Info("worker run completed", slog.Int("steps", result.Steps))
	return result.Output, nil
}

func (w *Worker) Close() error {
	if w.close == nil {
		return nil
	}
	return w.close()
}

type dependencies struct {
	model       agent.Model
	platform    jobs.Platform
	jobID       string
	query       toolset.QueryService
	checkpoints agent.CheckpointStore
	steps       steplog.Store
	close       func() error
}

func resolve(cfg config.Config, logger *slog.Logger, opts Options) (dependencies, error) {
	deps := dependencies{
		model:       opts.Model,
		platform:    opts.Platform,
		jobID:       cfg.DatabricksJobID,
		query:       opts.Query,
		checkpoints: opts.Checkpoints,
		steps:       opts.Steps,
		close:       func() error { return nil },
	}
	retryCfg := retry.Config{MaxAttempts: cfg.Retry.MaxAttempts, Backoff: cfg.Retry.Backoff}

	switch cfg.Mode {
	case config.ModeMock:
		if deps.model == nil {
			deps.model = mocks.NewModel()
		}
		if deps.platform == nil {
			deps.platform = &jobstest.Platform{RunDuration: mockRunDuration}
		}
		if deps.query == nil {
			deps.query = mocks.QueryService{}
		}
		if deps.jobID == "" {
			deps.jobID = mockJobID
		}
	case config.ModeDatabricks:
		if err := resolveDatabricks(cfg, logger, &deps); err != nil {
			return dependencies{}, err
		}
	default:
		return dependencies{}, fmt.Errorf("resolve runtime: unsupported mode %q", cfg.Mode)
	}

	modelRetry := retryCfg
	modelRetry.ShouldRetry = retryableModelError
	deps.model = retry.WrapModel(deps.model, modelRetry)
	deps.platform = retry.WrapPlatform(deps.platform, retryCfg)

	if deps.checkpoints != nil && deps.steps != nil {
		return deps, nil
	}
	if cfg.Store.Path == "" {
		if deps.checkpoints == nil {
			deps.checkpoints = checkpointinmem.New()
		}
		if deps.steps == nil {
			deps.steps = steploginmem.New()
		}
		return deps, nil
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Store.Path,
		PoolSize: cfg.Store.PoolSize,
		Logger:   logger,
		Schema:   sqlitepool.Schema,
	})
	if err != nil {
		return dependencies{}, fmt.Errorf("open store: %w", err)
	}
	deps.close = pool.Close
	if deps.checkpoints == nil {
		deps.checkpoints = checkpointsqlite.New(pool)
	}
	if deps.steps == nil {
		deps.steps = steplogsqlite.New(pool)
	}
	return deps, nil
}

func resolveDatabricks(cfg config.Config, logger *slog.Logger, deps *dependencies) error {
	workspace, err := databricks.NewWorkspace(databricks.Config{
		Host:  cfg.Databricks.Host,
		Token: cfg.Databricks.Token,
	})
	if err != nil {
		return fmt.Errorf("resolve runtime: %w", err)
	}

	if deps.model == nil {
		model, err := modelopenai.New(modelopenai.Config{
			Token:   cfg.Databricks.Token,
			Model:   cfg.LLMEndpointName,
			BaseURL: modelopenai.ServingEndpointsBaseURL(workspace.Host()),
		})
		if err != nil {
			return fmt.Errorf("resolve runtime: %w", err)
		}
		deps.model = model
	}
	if deps.platform == nil {
		deps.platform = databricks.NewJobs(workspace)
	}
	if deps.query == nil && cfg.Genie.SpaceID != "" {
		genie, err := databricks.NewGenie(workspace, databricks.GenieConfig{
			SpaceID:      cfg.Genie.SpaceID,
			PollInterval: cfg.Genie.PollInterval,
			Timeout:      cfg.Genie.Timeout,
			Logger:       logger,
		})
		if err != nil {
			return fmt.Errorf("resolve runtime: %w", err)
		}
		deps.query = genie
	}
	return nil
}

// retryableModelError retries transport failures, endpoint timeouts and
// provider overload, but not requests the provider rejected. Caller
// cancellation is handled by the retry loop itself.
func retryableModelError(err error) bool {
	var statusErr *modelopenai.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}
	return true
}
