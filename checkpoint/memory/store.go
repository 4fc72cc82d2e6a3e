package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/taskpilot/taskpilot/checkpoint"
	"github.com/taskpilot/taskpilot/conversation"
)

// Store is an in-memory checkpoint backend for tests and ephemeral runs.
// Snapshots are stored as encoded bytes so a loaded state never aliases the
// saved one.
type Store struct {
	mu      sync.RWMutex
	threads map[string][]byte
}

func New() *Store {
	return &Store{threads: make(map[string][]byte)}
}

func (s *Store) Save(ctx context.Context, threadID string, state *conversation.State) error {
	_ = ctx
	if strings.TrimSpace(threadID) == "" {
		return fmt.Errorf("thread_id is required")
	}
	if state == nil {
		return fmt.Errorf("state is required")
	}
	raw, err := state.Snapshot()
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[threadID] = raw
	return nil
}

func (s *Store) Load(ctx context.Context, threadID string) (*conversation.State, error) {
	_ = ctx
	if strings.TrimSpace(threadID) == "" {
		return nil, fmt.Errorf("thread_id is required")
	}

	s.mu.RLock()
	raw, ok := s.threads[threadID]
	s.mu.RUnlock()
	if !ok {
		return nil, checkpoint.ErrNotFound
	}
	return conversation.Restore(raw)
}

func (s *Store) Close() error { return nil }

// Len reports the number of stored threads.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.threads)
}
