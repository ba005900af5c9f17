// Package config resolves runtime configuration from one YAML file plus
// environment overrides. Components receive resolved values only.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "127.0.0.1:8080"
	defaultShutdownTimeout = 5 * time.Second
	defaultRequestTimeout  = 120 * time.Second
	defaultMaxSteps        = 8
	defaultStepLogLimit    = 10
	defaultRetryAttempts   = 3
	defaultRetryBackoff    = 500 * time.Millisecond
	defaultGenieAgentName  = "Genie"
	defaultSystemPrompt    = "You are a data assistant. Answer quick questions with query_data. " +
		"For long-running analysis, call start_job with the user's request and tell the user the run ID. " +
		"When the user asks about a run, call poll_job; to stop one, call terminate_job."
	defaultWorkerSystemPrompt = "You are a data analyst working on a background job. Use query_data to " +
		"gather the data you need, then reply with a concise written summary of the findings."
)

type Mode string

const (
	ModeMock       Mode = "mock"
	ModeDatabricks Mode = "databricks"
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// Config is the resolved configuration shared by the server and the worker.
type Config struct {
	Mode               Mode              `yaml:"mode"`
	LLMEndpointName    string            `yaml:"llm_endpoint_name"`
	SystemPrompt       string            `yaml:"system_prompt"`
	WorkerSystemPrompt string            `yaml:"worker_system_prompt"`
	DatabricksJobID    string            `yaml:"databricks_job_id"`
	JobParameters      map[string]string `yaml:"job_parameters"`
	Genie              GenieConfig       `yaml:"genie"`
	Store              StoreConfig       `yaml:"store"`
	HTTP               HTTPConfig        `yaml:"http"`
	Log                LogConfig         `yaml:"log"`
	Agent              AgentConfig       `yaml:"agent"`
	Retry              RetryConfig       `yaml:"retry"`

	// Databricks credentials come from the environment only.
	Databricks DatabricksConfig `yaml:"-"`
}

type GenieConfig struct {
	SpaceID      string        `yaml:"space_id"`
	AgentName    string        `yaml:"agent_name"`
	Description  string        `yaml:"description"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Timeout      time.Duration `yaml:"timeout"`
}

// StoreConfig selects the checkpoint and step log backend. An empty path keeps
// both in memory.
type StoreConfig struct {
	Path     string `yaml:"path"`
	PoolSize int    `yaml:"pool_size"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// RequestTimeout bounds one agent invocation.
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	// AuthToken, when set, is required as a bearer token on API routes.
	AuthToken       string        `yaml:"auth_token"`
}

type LogConfig struct {
	Level  string    `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

type AgentConfig struct {
	MaxSteps      int  `yaml:"max_steps"`
	StepLogLimit  int  `yaml:"step_log_limit"`
	ParallelTools bool `yaml:"parallel_tools"`
}

type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Backoff     time.Duration `yaml:"backoff"`
}

type DatabricksConfig struct {
	Host  string
	Token string
}

func Default() Config {
	return Config{
		Mode:               ModeMock,
		LLMEndpointName:    "databricks-claude-sonnet-4",
		SystemPrompt:       defaultSystemPrompt,
		WorkerSystemPrompt: defaultWorkerSystemPrompt,
		Genie:              GenieConfig{AgentName: defaultGenieAgentName},
		HTTP:               HTTPConfig{Addr: defaultHTTPAddr, ShutdownTimeout: defaultShutdownTimeout, RequestTimeout: defaultRequestTimeout},
		Log:                LogConfig{Level: "info", Format: LogFormatText},
		Agent:              AgentConfig{MaxSteps: defaultMaxSteps, StepLogLimit: defaultStepLogLimit},
		Retry:              RetryConfig{MaxAttempts: defaultRetryAttempts, Backoff: defaultRetryBackoff},
	}
}

// Load reads the YAML file at path (JOBAGENT_CONFIG when path is empty; no
// file at all is allowed), applies environment overrides and validates.
func Load(path string, getenv func(string) string) (Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	cfg := Default()

	if path == "" {
		path = strings.TrimSpace(getenv("JOBAGENT_CONFIG"))
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := cfg.decode(data); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnvironment(getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnvironment(getenv func(string) string) error {
	lookup := func(key string) string {
		return strings.TrimSpace(getenv(key))
	}

	c.Databricks.Host = lookup("DATABRICKS_HOST")
	c.Databricks.Token = lookup("DATABRICKS_TOKEN")
	if mode := lookup("JOBAGENT_MODE"); mode != "" {
		c.Mode = Mode(strings.ToLower(mode))
	}
	if addr := lookup("JOBAGENT_HTTP_ADDR"); addr != "" {
		c.HTTP.Addr = addr
	}
	if level := lookup("JOBAGENT_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if format := lookup("JOBAGENT_LOG_FORMAT"); format != "" {
		c.Log.Format = LogFormat(strings.ToLower(format))
	}
	if token := lookup("JOBAGENT_AUTH_TOKEN"); token != "" {
		c.HTTP.AuthToken = token
	}
	if path := lookup("JOBAGENT_STORE_PATH"); path != "" {
		c.Store.Path = path
	}
	if jobID := lookup("JOBAGENT_JOB_ID"); jobID != "" {
		c.DatabricksJobID = jobID
	}
	if raw := lookup("JOBAGENT_MAX_STEPS"); raw != "" {
		steps, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("parse JOBAGENT_MAX_STEPS: %w", err)
		}
		c.Agent.MaxSteps = steps
	}
	return nil
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error

	switch c.Mode {
	case ModeMock:
	case ModeDatabricks:
		if c.Databricks.Host == "" {
			errs = append(errs, errors.New("databricks mode requires DATABRICKS_HOST"))
		}
		if c.Databricks.Token == "" {
			errs = append(errs, errors.New("databricks mode requires DATABRICKS_TOKEN"))
		}
		if strings.TrimSpace(c.LLMEndpointName) == "" {
			errs = append(errs, errors.New("databricks mode requires llm_endpoint_name"))
		}
		if strings.TrimSpace(c.DatabricksJobID) == "" {
			errs = append(errs, errors.New("databricks mode requires databricks_job_id"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported mode %q (allowed: %q, %q)", c.Mode, ModeMock, ModeDatabricks))
	}

	if _, err := ParseLogLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case LogFormatText, LogFormatJSON:
	default:
		errs = append(errs, fmt.Errorf("unsupported log format %q (allowed: %q, %q)", c.Log.Format, LogFormatText, LogFormatJSON))
	}

	if c.HTTP.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("http.shutdown_timeout must be > 0"))
	}
	if c.HTTP.RequestTimeout <= 0 {
		errs = append(errs, errors.New("http.request_timeout must be > 0"))
	}
	if c.Agent.MaxSteps <= 0 {
		errs = append(errs, errors.New("agent.max_steps must be > 0"))
	}
	if c.Agent.StepLogLimit < 0 {
		errs = append(errs, errors.New("agent.step_log_limit must be >= 0"))
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("retry.max_attempts must be >= 1"))
	}
	if c.Retry.Backoff < 0 {
		errs = append(errs, errors.New("retry.backoff must be >= 0"))
	}
	if c.Store.PoolSize < 0 {
		errs = append(errs, errors.New("store.pool_size must be >= 0"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validate config: %w", errors.Join(errs...))
	}
	return nil
}

// LogLevel returns the parsed log level. It is valid after Validate.
func (c Config) LogLevel() slog.Level {
	level, _ := ParseLogLevel(c.Log.Level)
	return level
}

func ParseLogLevel(input string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf(
			"unsupported log level %q (allowed: %q, %q, %q, %q)",
			input,
			slog.LevelDebug.String(),
			slog.LevelInfo.String(),
			slog.LevelWarn.String(),
			slog.LevelError.String(),
		)
	}
}
