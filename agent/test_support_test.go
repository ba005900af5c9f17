package agent_test

import (
	"context"
	"sync"

	"github.com/Gurpartap/jobagent/agent"
)

type engineSpy struct {
	mu        sync.Mutex
	calls     int
	executeFn func(ctx context.Context, state agent.ConversationState, input agent.EngineInput) (agent.EngineResult, error)
}

func (e *engineSpy) Execute(ctx context.Context, state agent.ConversationState, input agent.EngineInput) (agent.EngineResult, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	return e.executeFn(ctx, state, input)
}

// appendingEngine answers every turn with a fixed assistant message.
func appendingEngine(answer string) *engineSpy {
	return &engineSpy{
		executeFn: func(_ context.Context, state agent.ConversationState, _ agent.EngineInput) (agent.EngineResult, error) {
			messages := append(agent.CloneMessages(state.Messages), agent.Message{Role: agent.RoleAssistant, Content: answer})
			return agent.EngineResult{
				Messages:   messages,
				Output:     answer,
				StopReason: agent.StopReasonFinalAnswer,
				Steps:      1,
			}, nil
		},
	}
}

type checkpointStub struct {
	loadErr error
	saveErr error
	saves   int
}

func (s *checkpointStub) Load(context.Context, agent.ThreadID) (agent.ConversationState, error) {
	if s.loadErr != nil {
		return agent.ConversationState{}, s.loadErr
	}
	return agent.ConversationState{}, agent.ErrThreadNotFound
}

func (s *checkpointStub) Save(context.Context, agent.ConversationState) error {
	s.saves++
	return s.saveErr
}
