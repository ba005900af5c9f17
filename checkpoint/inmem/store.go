package inmem

import (
	"context"
	"fmt"
	"sync"

	"github.com/Gurpartap/jobagent/agent"
)

// Store keeps conversation checkpoints in memory with optimistic version checks.
type Store struct {
	mu     sync.RWMutex
	states map[agent.ThreadID]agent.ConversationState
}

var _ agent.CheckpointStore = (*Store)(nil)

func New() *Store {
	return &Store{states: map[agent.ThreadID]agent.ConversationState{}}
}

func (s *Store) Save(ctx context.Context, state agent.ConversationState) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	if state.ThreadID == "" {
		return agent.ErrInvalidThreadID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.states[state.ThreadID]
	switch {
	case !exists && state.Version != 0:
		return fmt.Errorf(
			"%w: thread %q expected version 0 on create, got %d",
			agent.ErrCheckpointConflict,
			state.ThreadID,
			state.Version,
		)
	case exists && state.Version != current.Version:
		return fmt.Errorf(
			"%w: thread %q expected version %d, got %d",
			agent.ErrCheckpointConflict,
			state.ThreadID,
			current.Version,
			state.Version,
		)
	}

	next := agent.CloneConversationState(state)
	next.Version = state.Version + 1
	s.states[state.ThreadID] = next
	return nil
}

func (s *Store) Load(ctx context.Context, threadID agent.ThreadID) (agent.ConversationState, error) {
	if err := checkContext(ctx); err != nil {
		return agent.ConversationState{}, err
	}
	if threadID == "" {
		return agent.ConversationState{}, agent.ErrInvalidThreadID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[threadID]
	if !ok {
		return agent.ConversationState{}, agent.ErrThreadNotFound
	}
	return agent.CloneConversationState(state), nil
}

func checkContext(ctx context.Context) error {
	if ctx == nil {
		return agent.ErrContextNil
	}
	return ctx.Err()
}
