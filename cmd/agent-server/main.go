// agent-server serves the conversational job agent over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/Gurpartap/jobagent/internal/app"
	"github.com/Gurpartap/jobagent/internal/config"
	"github.com/Gurpartap/jobagent/internal/logging"
	"github.com/Gurpartap/jobagent/internal/runtimewire"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		configPath string
		envFile    string
	)
	flagSet := pflag.NewFlagSet("agent-server", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "path to a YAML config file (default: $JOBAGENT_CONFIG)")
	flagSet.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if err := loadEnvFile(envFile); err != nil {
		return err
	}
	cfg, err := config.Load(configPath, os.Getenv)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.FromConfig(os.Stderr, cfg)

	application, err := app.New(cfg, logger, runtimewire.Options{})
	if err != nil {
		return err
	}

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- application.Start()
	}()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-serverErrCh:
		if err != nil {
			return fmt.Errorf("server exited: %w", err)
		}
		return nil
	case <-sigCtx.Done():
	}
	logger.Info("shutting down", slog.Duration("timeout", cfg.HTTP.ShutdownTimeout))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}
	if err := <-serverErrCh; err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}

// loadEnvFile leaves variables that are already set untouched. A missing
// file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}
