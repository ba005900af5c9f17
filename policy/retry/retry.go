// Package retry wraps models and job platforms with bounded, error-only retries.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/Gurpartap/jobagent/agent"
	"github.com/Gurpartap/jobagent/jobs"
)

// Config controls retry behavior for wrapped calls.
type Config struct {
	MaxAttempts int
	// Backoff is the delay before the second attempt; it doubles per attempt.
	// Zero retries immediately.
	Backoff time.Duration
	// ShouldRetry overrides the default retry predicate.
	ShouldRetry func(error) bool
}

// WrapModel wraps a model with error-only retries. By default every error is
// retried until the caller's context is done.
func WrapModel(model agent.Model, cfg Config) agent.Model {
	if model == nil {
		return nil
	}
	return &modelWrapper{next: model, cfg: cfg}
}

type modelWrapper struct {
	next agent.Model
	cfg  Config
}

func (w *modelWrapper) Generate(ctx context.Context, request agent.ModelRequest) (agent.Message, error) {
	var msg agent.Message
	err := do(ctx, w.cfg, retryAlways, func() error {
		var err error
		msg, err = w.next.Generate(ctx, request)
		return err
	})
	if err != nil {
		return agent.Message{}, err
	}
	return msg, nil
}

// WrapPlatform retries status reads and cancellations that fail with
// agent.ErrPlatformUnavailable. Submissions are never retried: a lost response
// from RunNow may still have started a run.
func WrapPlatform(platform jobs.Platform, cfg Config) jobs.Platform {
	if platform == nil {
		return nil
	}
	return &platformWrapper{next: platform, cfg: cfg}
}

type platformWrapper struct {
	next jobs.Platform
	cfg  Config
}

func (w *platformWrapper) RunNow(ctx context.Context, jobID string, parameters map[string]string) (string, error) {
	return w.next.RunNow(ctx, jobID, parameters)
}

func (w *platformWrapper) GetRun(ctx context.Context, runID string) (jobs.RunInfo, error) {
	var info jobs.RunInfo
	err := do(ctx, w.cfg, retryUnavailable, func() error {
		var err error
		info, err = w.next.GetRun(ctx, runID)
		return err
	})
	if err != nil {
		return jobs.RunInfo{}, err
	}
	return info, nil
}

func (w *platformWrapper) CancelRun(ctx context.Context, runID string) error {
	return do(ctx, w.cfg, retryUnavailable, func() error {
		return w.next.CancelRun(ctx, runID)
	})
}

func do(ctx context.Context, cfg Config, fallback func(error) bool, call func() error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	predicate := cfg.ShouldRetry
	if predicate == nil {
		predicate = fallback
	}

	attempts := normalizedAttempts(cfg.MaxAttempts)
	delay := cfg.Backoff
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := call()
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt == attempts || ctx.Err() != nil || !predicate(err) {
			break
		}
		if waitErr := sleep(ctx, delay); waitErr != nil {
			return errors.Join(lastErr, waitErr)
		}
		delay *= 2
	}
	return lastErr
}

func sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func normalizedAttempts(maxAttempts int) int {
	if maxAttempts < 1 {
		return 1
	}
	return maxAttempts
}

func retryAlways(error) bool {
	return true
}

func retryUnavailable(err error) bool {
	return errors.Is(err, agent.ErrPlatformUnavailable)
}
