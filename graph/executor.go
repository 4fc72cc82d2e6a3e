package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/taskpilot/taskpilot/checkpoint"
	"github.com/taskpilot/taskpilot/conversation"
	"github.com/taskpilot/taskpilot/observe"
)

const defaultMaxTransitions = 24

// Executor drives a compiled graph over one conversation invocation. Nodes
// run strictly sequentially; after each node the merged state is durably
// checkpointed under its thread id, so a crash mid-graph resumes from the
// last completed node rather than the start of the conversation.
type Executor struct {
	graph          *Graph
	store          checkpoint.Store
	observer       observe.Sink
	maxTransitions int
}

type ExecutorOption func(*Executor)

func WithStore(store checkpoint.Store) ExecutorOption {
	return func(e *Executor) { e.store = store }
}

func WithObserver(observer observe.Sink) ExecutorOption {
	return func(e *Executor) { e.observer = observer }
}

// WithMaxTransitions bounds node executions per invocation. The reasoning
// loop is cyclic, so a runaway model that keeps requesting tools would
// otherwise never halt.
func WithMaxTransitions(max int) ExecutorOption {
	return func(e *Executor) {
		if max > 0 {
			e.maxTransitions = max
		}
	}
}

func NewExecutor(g *Graph, opts ...ExecutorOption) (*Executor, error) {
	if g == nil {
		return nil, fmt.Errorf("graph is required")
	}
	if err := g.Compile(); err != nil {
		return nil, err
	}
	e := &Executor{graph: g, maxTransitions: defaultMaxTransitions}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Run executes the graph on the given state until no edge matches (HALT).
// The state is mutated in place; the caller owns it for the duration of the
// invocation.
func (e *Executor) Run(ctx context.Context, state *conversation.State) error {
	if e == nil || e.graph == nil {
		return fmt.Errorf("executor is not initialized")
	}
	if state == nil {
		return fmt.Errorf("state is required")
	}

	runID := uuid.NewString()
	e.emit(ctx, observe.Event{
		RunID:    runID,
		ThreadID: state.ThreadID,
		Kind:     observe.KindRun,
		Status:   observe.StatusStarted,
		Name:     e.graph.Name(),
	})

	transitions := 0
	currentNodeID := e.graph.startNodeID
	for currentNodeID != "" {
		if transitions >= e.maxTransitions {
			err := fmt.Errorf("graph %q exceeded %d transitions", e.graph.Name(), e.maxTransitions)
			e.emitFailure(ctx, runID, state.ThreadID, currentNodeID, err)
			return err
		}
		transitions++

		node, ok := e.graph.nodes[currentNodeID]
		if !ok {
			err := fmt.Errorf("node %q does not exist", currentNodeID)
			e.emitFailure(ctx, runID, state.ThreadID, currentNodeID, err)
			return err
		}

		started := time.Now()
		e.emit(ctx, observe.Event{
			RunID:    runID,
			ThreadID: state.ThreadID,
			Kind:     observe.KindNode,
			Status:   observe.StatusStarted,
			Name:     currentNodeID,
		})

		update, err := node.Run(ctx, state)
		if err != nil {
			e.emitFailure(ctx, runID, state.ThreadID, currentNodeID, err)
			return fmt.Errorf("node %q failed: %w", currentNodeID, err)
		}
		state.Apply(update)

		if err := e.saveCheckpoint(ctx, runID, currentNodeID, state); err != nil {
			e.emitFailure(ctx, runID, state.ThreadID, currentNodeID, err)
			return err
		}

		nextNodeID, err := e.selectNextNode(ctx, currentNodeID, state)
		if err != nil {
			e.emitFailure(ctx, runID, state.ThreadID, currentNodeID, err)
			return err
		}

		e.emit(ctx, observe.Event{
			RunID:      runID,
			ThreadID:   state.ThreadID,
			Kind:       observe.KindNode,
			Status:     observe.StatusCompleted,
			Name:       currentNodeID,
			DurationMs: time.Since(started).Milliseconds(),
			Attributes: map[string]any{"next": nextNodeID},
		})

		currentNodeID = nextNodeID
	}

	e.emit(ctx, observe.Event{
		RunID:    runID,
		ThreadID: state.ThreadID,
		Kind:     observe.KindRun,
		Status:   observe.StatusCompleted,
		Name:     e.graph.Name(),
		Attributes: map[string]any{
			"transitions": transitions,
		},
	})
	return nil
}

// selectNextNode evaluates the current node's edges in order and returns the
// first match. An empty result means no edge matched: the graph halts.
func (e *Executor) selectNextNode(ctx context.Context, from string, state *conversation.State) (string, error) {
	for _, edge := range e.graph.edges[from] {
		if edge.Condition == nil {
			return edge.To, nil
		}
		ok, err := edge.Condition(ctx, state)
		if err != nil {
			return "", fmt.Errorf("edge %q -> %q condition failed: %w", edge.From, edge.To, err)
		}
		if ok {
			return edge.To, nil
		}
	}
	return "", nil
}

func (e *Executor) saveCheckpoint(ctx context.Context, runID, nodeID string, state *conversation.State) error {
	if e.store == nil || state.ThreadID == "" {
		return nil
	}
	if err := e.store.Save(ctx, state.ThreadID, state); err != nil {
		return fmt.Errorf("failed to checkpoint after node %q: %w", nodeID, err)
	}
	e.emit(ctx, observe.Event{
		RunID:    runID,
		ThreadID: state.ThreadID,
		Kind:     observe.KindCheckpoint,
		Status:   observe.StatusCompleted,
		Name:     nodeID,
	})
	return nil
}

func (e *Executor) emitFailure(ctx context.Context, runID, threadID, nodeID string, err error) {
	e.emit(ctx, observe.Event{
		RunID:    runID,
		ThreadID: threadID,
		Kind:     observe.KindRun,
		Status:   observe.StatusFailed,
		Name:     nodeID,
		Error:    err.Error(),
	})
}

func (e *Executor) emit(ctx context.Context, event observe.Event) {
	if e == nil || e.observer == nil {
		return
	}
	_ = e.observer.Emit(ctx, event)
}
