// Package sqlite stores step logs in the step_logs table, keyed by (run_id, step).
package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/Gurpartap/jobagent/internal/sqlitepool"
	"github.com/Gurpartap/jobagent/steplog"
)

type Store struct {
	pool *sqlitepool.Pool
}

var _ steplog.Store = (*Store)(nil)

// New uses a pool opened with sqlitepool.Schema.
func New(pool *sqlitepool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Append(ctx context.Context, entry steplog.Entry) error {
	if entry.RunID == "" {
		return steplog.ErrEmptyRunID
	}
	payload := entry.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`null`)
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("step log append: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `
		INSERT INTO step_logs (run_id, step, status, timestamp, payload) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (run_id, step) DO NOTHING`, &sqlitex.ExecOptions{
		Args: []any{
			entry.RunID,
			entry.Step,
			string(entry.Status),
			entry.Timestamp.UTC().Format(time.RFC3339Nano),
			string(payload),
		},
	})
	if err != nil {
		return fmt.Errorf("step log append run_id=%q step=%d: %w", entry.RunID, entry.Step, err)
	}
	if conn.Changes() == 0 {
		return fmt.Errorf("%w: run_id=%q step=%d", steplog.ErrDuplicateStep, entry.RunID, entry.Step)
	}
	return nil
}

func (s *Store) List(ctx context.Context, runID string) ([]steplog.Entry, error) {
	if runID == "" {
		return nil, steplog.ErrEmptyRunID
	}
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("step log list: %w", err)
	}
	defer s.pool.Put(conn)

	entries := make([]steplog.Entry, 0)
	err = sqlitex.Execute(conn, `
		SELECT step, status, timestamp, payload FROM step_logs
		WHERE run_id = ? ORDER BY step`, &sqlitex.ExecOptions{
		Args: []any{runID},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			timestamp, err := time.Parse(time.RFC3339Nano, stmt.ColumnText(2))
			if err != nil {
				return fmt.Errorf("parse timestamp: %w", err)
			}
			entries = append(entries, steplog.Entry{
				RunID:     runID,
				Step:      stmt.ColumnInt64(0),
				Status:    steplog.Status(stmt.ColumnText(1)),
				Timestamp: timestamp,
				Payload:   json.RawMessage(stmt.ColumnText(3)),
			})
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("step log list run_id=%q: %w", runID, err)
	}
	return entries, nil
}
