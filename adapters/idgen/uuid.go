package idgen

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/Gurpartap/jobagent/agent"
)

// UUID generates random version 4 thread ids.
type UUID struct{}

var _ agent.IDGenerator = UUID{}

func (UUID) NewThreadID(_ context.Context) (agent.ThreadID, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate uuid: %w", err)
	}
	return agent.ThreadID(id.String()), nil
}
