// Package eventing combines loop observers.
package eventing

import (
	"context"
	"errors"

	"github.com/Gurpartap/jobagent/agent"
)

// Fanout publishes each event to every sink in order. Every sink sees the
// event even when an earlier one fails; the failures are joined.
type Fanout []agent.EventSink

var _ agent.EventSink = Fanout(nil)

// NewFanout drops nil sinks. It returns nil when no sink remains.
func NewFanout(sinks ...agent.EventSink) agent.EventSink {
	out := make(Fanout, 0, len(sinks))
	for _, sink := range sinks {
		if sink != nil {
			out = append(out, sink)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	default:
		return out
	}
}

func (f Fanout) Publish(ctx context.Context, event agent.Event) error {
	if ctx == nil {
		return agent.ErrContextNil
	}
	var errs []error
	for _, sink := range f {
		if err := sink.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
