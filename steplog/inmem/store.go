package inmem

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/Gurpartap/jobagent/steplog"
)

// Store keeps step logs in memory, keyed by run id.
type Store struct {
	mu   sync.RWMutex
	runs map[string][]steplog.Entry
}

var _ steplog.Store = (*Store)(nil)

func New() *Store {
	return &Store{runs: map[string][]steplog.Entry{}}
}

func (s *Store) Append(ctx context.Context, entry steplog.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if entry.RunID == "" {
		return steplog.ErrEmptyRunID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.runs[entry.RunID]
	index, found := slices.BinarySearchFunc(entries, entry.Step, func(e steplog.Entry, step int64) int {
		switch {
		case e.Step < step:
			return -1
		case e.Step > step:
			return 1
		default:
			return 0
		}
	})
	if found {
		return fmt.Errorf("%w: run_id=%q step=%d", steplog.ErrDuplicateStep, entry.RunID, entry.Step)
	}
	entry.Payload = bytes.Clone(entry.Payload)
	s.runs[entry.RunID] = slices.Insert(entries, index, entry)
	return nil
}

func (s *Store) List(ctx context.Context, runID string) ([]steplog.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if runID == "" {
		return nil, steplog.ErrEmptyRunID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.runs[runID]
	out := make([]steplog.Entry, len(entries))
	for i, entry := range entries {
		out[i] = entry
		out[i].Payload = bytes.Clone(entry.Payload)
	}
	return out, nil
}
