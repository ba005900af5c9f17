// Package app owns the supervisor runtime and the HTTP server lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/Gurpartap/jobagent/internal/config"
	"github.com/Gurpartap/jobagent/internal/httpapi"
	"github.com/Gurpartap/jobagent/internal/runtimewire"
)

type App struct {
	cfg        config.Config
	logger     *slog.Logger
	supervisor *runtimewire.Supervisor
	server     *http.Server
	ready      atomic.Bool
}

// New builds the app. opts replaces runtime collaborators and is usually empty.
func New(cfg config.Config, logger *slog.Logger, opts runtimewire.Options) (*App, error) {
	if logger == nil {
		return nil, errors.New("new app: nil logger")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("new app config: %w", err)
	}

	supervisor, err := runtimewire.NewSupervisor(cfg, logger, opts)
	if err != nil {
		return nil, fmt.Errorf("new app runtime: %w", err)
	}

	a := &App{
		cfg:        cfg,
		logger:     logger,
		supervisor: supervisor,
	}

	apiRouter := httpapi.NewRouter(supervisor.Runner, supervisor.Steps, httpapi.PolicyConfig{
		AuthToken:        cfg.HTTP.AuthToken,
		RequestTimeout:   cfg.HTTP.RequestTimeout,
		DefaultStepLimit: cfg.Agent.StepLogLimit,
	})
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", a.handleHealthz)
	mux.HandleFunc("/readyz", a.handleReadyz)
	mux.Handle("/", apiRouter)
	a.server = &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: requestLoggingMiddleware(logger)(mux),
	}
	return a, nil
}

// Handler returns the root handler, for serving the app without a listener.
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

func (a *App) Start() error {
	a.ready.Store(true)
	a.logger.Info("http server listening", slog.String("addr", a.cfg.HTTP.Addr), slog.String("mode", string(a.cfg.Mode)))

	err := a.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	a.ready.Store(false)
	return err
}

// Shutdown drains in-flight requests until ctx expires, then force-closes
// the remaining connections. The runtime stores are closed either way.
func (a *App) Shutdown(ctx context.Context) error {
	if ctx == nil {
		return errors.New("shutdown: nil context")
	}
	a.ready.Store(false)

	err := a.server.Shutdown(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		a.logger.Warn("graceful shutdown timed out; forcing connection close")
		if closeErr := a.server.Close(); closeErr != nil {
			err = fmt.Errorf("shutdown timeout and forced close failed: %w", errors.Join(err, closeErr))
		} else {
			err = nil
		}
	}
	if closeErr := a.supervisor.Close(); closeErr != nil {
		err = errors.Join(err, fmt.Errorf("close runtime: %w", closeErr))
	}
	return err
}

func (a *App) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writePlain(w, http.StatusOK, "ok")
}

func (a *App) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !a.ready.Load() || a.supervisor == nil {
		writePlain(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	writePlain(w, http.StatusOK, "ready")
}

func writePlain(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}
