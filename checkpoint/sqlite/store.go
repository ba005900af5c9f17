// Package sqlite stores conversation checkpoints in SQLite, one row per
// thread holding the CBOR-encoded state.
package sqlite

import (
	"context"
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/Gurpartap/jobagent/agent"
	"github.com/Gurpartap/jobagent/internal/codec"
	"github.com/Gurpartap/jobagent/internal/sqlitepool"
)

// Store implements agent.CheckpointStore. Save runs the version check and the
// write in one IMMEDIATE transaction.
type Store struct {
	pool *sqlitepool.Pool
	now  func() time.Time
}

var _ agent.CheckpointStore = (*Store)(nil)

// New uses a pool opened with sqlitepool.Schema.
func New(pool *sqlitepool.Pool) *Store {
	return &Store{pool: pool, now: time.Now}
}

func (s *Store) Load(ctx context.Context, threadID agent.ThreadID) (agent.ConversationState, error) {
	if ctx == nil {
		return agent.ConversationState{}, agent.ErrContextNil
	}
	if threadID == "" {
		return agent.ConversationState{}, agent.ErrInvalidThreadID
	}
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return agent.ConversationState{}, fmt.Errorf("checkpoint load: %w", err)
	}
	defer s.pool.Put(conn)

	var (
		found   bool
		version int64
		blob    []byte
	)
	err = sqlitex.Execute(conn, "SELECT version, state FROM checkpoints WHERE thread_id = ?", &sqlitex.ExecOptions{
		Args: []any{string(threadID)},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			found = true
			version = stmt.ColumnInt64(0)
			blob = make([]byte, stmt.ColumnLen(1))
			stmt.ColumnBytes(1, blob)
			return nil
		},
	})
	if err != nil {
		return agent.ConversationState{}, fmt.Errorf("checkpoint load thread_id=%q: %w", threadID, err)
	}
	if !found {
		return agent.ConversationState{}, agent.ErrThreadNotFound
	}

	var state agent.ConversationState
	if err := codec.Unmarshal(blob, &state); err != nil {
		return agent.ConversationState{}, fmt.Errorf("checkpoint decode thread_id=%q: %w", threadID, err)
	}
	state.ThreadID = threadID
	state.Version = version
	return state, nil
}

func (s *Store) Save(ctx context.Context, state agent.ConversationState) (err error) {
	if ctx == nil {
		return agent.ErrContextNil
	}
	if state.ThreadID == "" {
		return agent.ErrInvalidThreadID
	}
	next := agent.CloneConversationState(state)
	next.Version = state.Version + 1
	blob, err := codec.Marshal(next)
	if err != nil {
		return fmt.Errorf("checkpoint encode thread_id=%q: %w", state.ThreadID, err)
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("checkpoint save: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("checkpoint save: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	var current int64
	err = sqlitex.Execute(conn, "SELECT version FROM checkpoints WHERE thread_id = ?", &sqlitex.ExecOptions{
		Args: []any{string(state.ThreadID)},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			current = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		return fmt.Errorf("checkpoint save thread_id=%q: %w", state.ThreadID, err)
	}
	if state.Version != current {
		return fmt.Errorf(
			"%w: thread %q expected version %d, got %d",
			agent.ErrCheckpointConflict,
			state.ThreadID,
			current,
			state.Version,
		)
	}

	err = sqlitex.Execute(conn, `
		INSERT INTO checkpoints (thread_id, version, state, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (thread_id) DO UPDATE SET
			version = excluded.version,
			state = excluded.state,
			updated_at = excluded.updated_at`, &sqlitex.ExecOptions{
		Args: []any{string(state.ThreadID), next.Version, blob, s.now().UTC().Format(time.RFC3339Nano)},
	})
	if err != nil {
		return fmt.Errorf("checkpoint save thread_id=%q: %w", state.ThreadID, err)
	}
	return nil
}
