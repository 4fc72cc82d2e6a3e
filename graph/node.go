package graph

import (
	"context"
	"fmt"

	"github.com/taskpilot/taskpilot/conversation"
)

// Node is one step of the agent state machine. A node reads the current
// conversation state and returns a partial update; the executor merges the
// update and checkpoints before selecting the next node. Nodes that interact
// with unreliable collaborators are expected to convert failures into
// displayable assistant messages rather than returning errors; a returned
// error aborts the whole invocation and is reserved for programming or
// storage faults.
type Node interface {
	Run(ctx context.Context, state *conversation.State) (conversation.Update, error)
}

// NodeFunc adapts a function to the Node interface.
type NodeFunc func(ctx context.Context, state *conversation.State) (conversation.Update, error)

func (f NodeFunc) Run(ctx context.Context, state *conversation.State) (conversation.Update, error) {
	if f == nil {
		return conversation.Update{}, fmt.Errorf("node func is nil")
	}
	return f(ctx, state)
}
