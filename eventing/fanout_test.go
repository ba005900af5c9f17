package eventing_test

import (
	"context"
	"errors"
	"testing"

	"github.com/Gurpartap/jobagent/agent"
	"github.com/Gurpartap/jobagent/eventing"
	eventinginmem "github.com/Gurpartap/jobagent/eventing/inmem"
)

type failingSink struct {
	err error
}

func (s failingSink) Publish(context.Context, agent.Event) error {
	return s.err
}

func completedEvent() agent.Event {
	return agent.Event{
		ThreadID: "thread-1",
		Step:     1,
		Type:     agent.EventTypeCompleted,
		Message:  &agent.Message{Role: agent.RoleAssistant, Content: "done"},
	}
}

func TestNewFanout_CollapsesSinks(t *testing.T) {
	t.Parallel()

	if sink := eventing.NewFanout(nil, nil); sink != nil {
		t.Fatalf("expected nil sink, got %T", sink)
	}
	single := eventinginmem.New()
	if sink := eventing.NewFanout(nil, single); sink != single {
		t.Fatalf("expected the single sink to be returned as-is, got %T", sink)
	}
}

func TestFanout_PublishesToEverySink(t *testing.T) {
	t.Parallel()

	first := eventinginmem.New()
	second := eventinginmem.New()
	boom := errors.New("boom")
	sink := eventing.NewFanout(first, failingSink{err: boom}, second)

	err := sink.Publish(context.Background(), completedEvent())
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined sink error, got %v", err)
	}
	if len(first.Events()) != 1 || len(second.Events()) != 1 {
		t.Fatalf("every sink must observe the event: first=%d second=%d", len(first.Events()), len(second.Events()))
	}
}
