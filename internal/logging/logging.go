// Package logging builds the process logger.
package logging

import (
	"io"
	"log/slog"

	"github.com/lmittmann/tint"

	"github.com/Gurpartap/jobagent/internal/config"
)

const timeFormat = "2006-01-02 15:04:05.000Z07:00"

// New returns a tint text logger or a JSON logger writing to output.
func New(output io.Writer, level slog.Level, format config.LogFormat) *slog.Logger {
	if format == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(output, &slog.HandlerOptions{Level: level}))
	}

	handler := tint.NewHandler(output, &tint.Options{
		Level:      level,
		TimeFormat: timeFormat,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Value.Kind() == slog.KindAny {
				if _, ok := a.Value.Any().(error); ok {
					return tint.Attr(9, a)
				}
			}
			return a
		},
	})
	return slog.New(handler)
}

// FromConfig builds the logger described by cfg.
func FromConfig(output io.Writer, cfg config.Config) *slog.Logger {
	return New(output, cfg.LogLevel(), cfg.Log.Format)
}
