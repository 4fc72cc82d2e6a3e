// Package agent wires the planner, reasoning, tool-execution, and reflection
// nodes into the execution graph and exposes the one public operation: one
// inbound user message in, one reply string out.
package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/taskpilot/taskpilot/checkpoint"
	"github.com/taskpilot/taskpilot/conversation"
	"github.com/taskpilot/taskpilot/graph"
	"github.com/taskpilot/taskpilot/llm"
	"github.com/taskpilot/taskpilot/observe"
	"github.com/taskpilot/taskpilot/tools"
	"github.com/taskpilot/taskpilot/types"
)

const welcomeBanner = "👋 Hi! I'm your to-do assistant. I can add tasks, set reminders, show your list, and help you plan. What would you like to do?"

const noReplyFallback = "Hmm, I don't have a response for that. Could you rephrase?"

// Options configures an Agent.
type Options struct {
	Provider llm.Provider
	Model    string
	Registry *tools.Registry
	Store    checkpoint.Store
	Observer observe.Sink
	Logger   zerolog.Logger
	Retry    RetryPolicy

	// DefaultTimezone fills the timezone argument of tools when the model
	// omits it.
	DefaultTimezone string

	// MaxTransitions bounds graph node executions per inbound message.
	MaxTransitions int
}

// Agent handles conversation threads end to end: load state, run the graph,
// persist, reply. Invocations on the same thread are serialized; distinct
// threads run concurrently.
type Agent struct {
	executor *graph.Executor
	store    checkpoint.Store
	logger   zerolog.Logger

	mu      sync.Mutex
	threads map[string]*sync.Mutex
}

func New(opts Options) (*Agent, error) {
	if opts.Provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("tool registry is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("checkpoint store is required")
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = DefaultRetryPolicy()
	}

	g, err := BuildGraph(opts)
	if err != nil {
		return nil, err
	}
	logTopology(opts.Logger, g)

	execOpts := []graph.ExecutorOption{graph.WithStore(opts.Store)}
	if opts.Observer != nil {
		execOpts = append(execOpts, graph.WithObserver(opts.Observer))
	}
	if opts.MaxTransitions > 0 {
		execOpts = append(execOpts, graph.WithMaxTransitions(opts.MaxTransitions))
	}
	executor, err := graph.NewExecutor(g, execOpts...)
	if err != nil {
		return nil, err
	}

	return &Agent{
		executor: executor,
		store:    opts.Store,
		logger:   opts.Logger,
		threads:  make(map[string]*sync.Mutex),
	}, nil
}

// BuildGraph assembles the agent state machine:
//
//	intake -> planner (complex request) -> reasoning
//	intake -> reasoning (otherwise)
//	reasoning -> tools (tool calls pending), else HALT
//	tools -> reflection (plan active) -> reasoning
//	tools -> reasoning (otherwise)
func BuildGraph(opts Options) (*graph.Graph, error) {
	reasoning := NewReasoningNode(opts.Provider, opts.Model, opts.Registry, opts.Retry, opts.Observer, opts.Logger)
	planner := NewPlannerNode(opts.Provider, opts.Model, opts.Logger)
	toolExec := NewToolExecNode(opts.Registry, opts.DefaultTimezone, opts.Observer)
	reflection := NewReflectionNode()

	intake := graph.NodeFunc(func(ctx context.Context, state *conversation.State) (conversation.Update, error) {
		return conversation.Update{}, nil
	})

	g := graph.New("taskpilot").
		AddNode("intake", intake).
		AddNode("planner", planner).
		AddNode("reasoning", reasoning).
		AddNode("tools", toolExec).
		AddNode("reflection", reflection).
		SetStart("intake").
		AllowCycles(true).
		AddEdge("intake", "planner", NeedsPlanning).
		AddEdge("intake", "reasoning", nil).
		AddEdge("planner", "reasoning", nil).
		AddEdge("reasoning", "tools", HasToolCalls).
		AddEdge("tools", "reflection", PlanActive).
		AddEdge("tools", "reasoning", nil).
		AddEdge("reflection", "reasoning", nil)

	if err := g.Compile(); err != nil {
		return nil, err
	}
	return g, nil
}

// logTopology records the compiled state machine once at startup, so a log
// capture shows which nodes and transitions this build runs with.
func logTopology(logger zerolog.Logger, g *graph.Graph) {
	nodes := make([]string, 0, len(g.NodeInfos()))
	for _, info := range g.NodeInfos() {
		nodes = append(nodes, info.ID)
	}
	edges := make([]string, 0, len(g.EdgeInfos()))
	for _, info := range g.EdgeInfos() {
		label := info.From + "->" + info.To
		if info.Conditional {
			label += "?"
		}
		edges = append(edges, label)
	}
	logger.Debug().
		Str("graph", g.Name()).
		Str("start", g.StartNodeID()).
		Strs("nodes", nodes).
		Strs("edges", edges).
		Msg("conversation graph compiled")
}

// HandleMessage processes one inbound utterance on a thread and returns the
// reply. The contract is total: once input validation passes, every runtime
// failure surfaces as reply text rather than an error.
func (a *Agent) HandleMessage(ctx context.Context, threadID, userID, text string) (string, error) {
	if strings.TrimSpace(threadID) == "" {
		return "", fmt.Errorf("thread id is required")
	}
	if strings.TrimSpace(userID) == "" {
		return "", fmt.Errorf("user id is required")
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("message text is required")
	}

	unlock := a.lockThread(threadID)
	defer unlock()

	state, newThread, err := a.loadThread(ctx, threadID, userID)
	if err != nil {
		a.logger.Error().Err(err).Str("thread_id", threadID).Msg("failed to load thread state")
		return unexpectedFailureReply, nil
	}

	state.Append(types.UserMessage(text))

	if err := a.executor.Run(ctx, state); err != nil {
		a.logger.Error().Err(err).Str("thread_id", threadID).Msg("graph execution failed")
		return unexpectedFailureReply, nil
	}

	reply := state.LastAssistantText()
	if reply == "" {
		reply = noReplyFallback
	}
	if newThread {
		reply = welcomeBanner + "\n\n" + reply
	}
	return reply, nil
}

// loadThread returns the thread's state, creating a fresh one for threads
// the checkpoint store has never seen. The not-found signal is what drives
// the welcome banner: an explicit new-thread flag instead of guessing from
// message counts.
func (a *Agent) loadThread(ctx context.Context, threadID, userID string) (*conversation.State, bool, error) {
	state, err := a.store.Load(ctx, threadID)
	switch {
	case err == nil:
		return state, false, nil
	case checkpoint.IsNotFound(err):
		return conversation.New(threadID, userID), true, nil
	default:
		return nil, false, err
	}
}

func (a *Agent) lockThread(threadID string) func() {
	a.mu.Lock()
	m, ok := a.threads[threadID]
	if !ok {
		m = &sync.Mutex{}
		a.threads[threadID] = m
	}
	a.mu.Unlock()

	m.Lock()
	return m.Unlock
}
