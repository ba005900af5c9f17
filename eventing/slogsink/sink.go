// Package slogsink logs loop events at debug level.
package slogsink

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/Gurpartap/jobagent/agent"
)

type sink struct {
	logger     *slog.Logger
	structured bool
}

// New returns a sink that logs every event. Structured loggers (JSON handlers)
// receive the event as a nested attribute; text loggers receive it as one JSON
// string. A nil logger yields a nil sink.
func New(logger *slog.Logger, structured bool) agent.EventSink {
	if logger == nil {
		return nil
	}
	return sink{logger: logger, structured: structured}
}

func (s sink) Publish(ctx context.Context, event agent.Event) error {
	if ctx == nil {
		return agent.ErrContextNil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if !s.logger.Enabled(ctx, slog.LevelDebug) {
		return nil
	}

	attrs := []any{
		slog.String("thread_id", string(event.ThreadID)),
		slog.Int("step", event.Step),
		slog.String("type", string(event.Type)),
	}
	if s.structured {
		s.logger.DebugContext(ctx, "loop event", append(attrs, slog.Any("event", event))...)
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	s.logger.DebugContext(ctx, "loop event", append(attrs, slog.String("event", string(payload)))...)
	return nil
}
