// Package steplog is the append-only progress trail written by background
// workers and read by status pollers.
package steplog

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Status classifies a step log entry.
type Status string

const (
	StatusToolCall   Status = "tool_call"
	StatusToolResult Status = "tool_result"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Entry is one row of a run's step log. Steps start at 0 and strictly increase
// within a run; gaps are allowed.
type Entry struct {
	RunID     string          `json:"run_id"`
	Step      int64           `json:"step"`
	Status    Status          `json:"status"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

var (
	ErrEmptyRunID = errors.New("step log run id is empty")
	// ErrDuplicateStep is returned when (run_id, step) was already written.
	ErrDuplicateStep = errors.New("step log entry already exists")
)

// Writer appends entries.
type Writer interface {
	Append(ctx context.Context, entry Entry) error
}

// Reader lists all entries of a run ordered by step. An unknown run has no entries.
type Reader interface {
	List(ctx context.Context, runID string) ([]Entry, error)
}

type Store interface {
	Writer
	Reader
}

// Tail returns the last n entries, or all of them when n <= 0.
func Tail(entries []Entry, n int) []Entry {
	if n <= 0 || len(entries) <= n {
		return entries
	}
	return entries[len(entries)-n:]
}
