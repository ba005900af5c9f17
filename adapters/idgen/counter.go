// Package idgen provides thread id generators.
package idgen

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/Gurpartap/jobagent/agent"
)

// Counter provides deterministic in-process thread ids.
type Counter struct {
	prefix  string
	counter atomic.Uint64
}

var _ agent.IDGenerator = (*Counter)(nil)

func NewCounter(prefix string) *Counter {
	if prefix == "" {
		prefix = "thread"
	}
	return &Counter{
		prefix: prefix,
	}
}

func (g *Counter) NewThreadID(_ context.Context) (agent.ThreadID, error) {
	next := g.counter.Add(1)
	return agent.ThreadID(fmt.Sprintf("%s-%06d", g.prefix, next)), nil
}
