package inmem

import (
	"context"
	"sync"

	"github.com/Gurpartap/jobagent/agent"
)

// Sink captures loop events in memory and exposes deterministic snapshots.
type Sink struct {
	mu     sync.RWMutex
	events []agent.Event
}

var _ agent.EventSink = (*Sink)(nil)

func New() *Sink {
	return &Sink{events: make([]agent.Event, 0)}
}

func (s *Sink) Publish(ctx context.Context, event agent.Event) error {
	if ctx == nil {
		return agent.ErrContextNil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err := agent.ValidateEvent(event); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, agent.CloneEvent(event))
	return nil
}

func (s *Sink) Events() []agent.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]agent.Event, len(s.events))
	for i := range s.events {
		out[i] = agent.CloneEvent(s.events[i])
	}
	return out
}

// Types returns the event types in publish order.
func (s *Sink) Types() []agent.EventType {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]agent.EventType, len(s.events))
	for i := range s.events {
		out[i] = s.events[i].Type
	}
	return out
}
