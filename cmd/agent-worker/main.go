// agent-worker executes one delegated request inside a job run and records
// its progress in the step log that the conversational agent polls.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/Gurpartap/jobagent/internal/config"
	"github.com/Gurpartap/jobagent/internal/logging"
	"github.com/Gurpartap/jobagent/internal/runtimewire"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Getenv, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, getenv func(string) string, stdout, stderr io.Writer) error {
	var (
		configPath  string
		envFile     string
		runID       string
		userRequest string
	)
	flagSet := pflag.NewFlagSet("agent-worker", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVarP(&configPath, "config", "c", "", "path to a YAML config file (default: $JOBAGENT_CONFIG)")
	flagSet.StringVar(&envFile, "env-file", "", "dotenv file loaded before reading the environment")
	flagSet.StringVar(&runID, "run-id", "", "job run id the step log is keyed by (default: $JOBAGENT_RUN_ID)")
	flagSet.StringVar(&userRequest, "user-request", "", "request to execute (default: $JOBAGENT_USER_REQUEST)")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}
	if runID == "" {
		runID = strings.TrimSpace(getenv("JOBAGENT_RUN_ID"))
	}
	if userRequest == "" {
		userRequest = getenv("JOBAGENT_USER_REQUEST")
	}

	cfg, err := config.Load(configPath, getenv)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.FromConfig(stderr, cfg)

	worker, err := runtimewire.NewWorker(cfg, logger, runID, runtimewire.Options{})
	if err != nil {
		return err
	}
	defer worker.Close()

	answer, err := worker.Run(ctx, userRequest)
	if err != nil {
		return fmt.Errorf("run %s: %w", runID, err)
	}
	_, err = fmt.Fprintln(stdout, answer)
	return err
}
