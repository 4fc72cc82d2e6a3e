package checkpoint

import (
	"context"
	"errors"

	"github.com/taskpilot/taskpilot/conversation"
)

// ErrNotFound is returned by Load for a thread that has never been saved.
// Callers use it as the explicit new-thread signal.
var ErrNotFound = errors.New("checkpoint: not found")

// IsNotFound reports whether err is the unknown-thread signal.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Store persists conversation state per thread. Save is called after every
// graph node execution, so an implementation must tolerate frequent small
// writes; Load must return the most recently committed snapshot.
type Store interface {
	Save(ctx context.Context, threadID string, state *conversation.State) error
	Load(ctx context.Context, threadID string) (*conversation.State, error)
	Close() error
}
