package agent

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/taskpilot/taskpilot/conversation"
	"github.com/taskpilot/taskpilot/llm"
	"github.com/taskpilot/taskpilot/observe"
	"github.com/taskpilot/taskpilot/tools"
	"github.com/taskpilot/taskpilot/types"
)

// Fixed replies for the three model-failure branches. The reasoning node
// never propagates a provider error: every failure becomes a displayable
// assistant message.
const (
	transientFailureReply  = "😔 I'm having trouble connecting to my brain right now. Please try again in a moment!"
	authFailureReply       = "🔐 There's an authentication issue with my AI service. Please contact support."
	unexpectedFailureReply = "❌ Sorry, I hit an unexpected error. Please try again."
)

// ReasoningNode sends the conversation to the model with the tool catalog
// bound and appends the model's reply, which may carry tool calls.
type ReasoningNode struct {
	provider llm.Provider
	model    string
	registry *tools.Registry
	retry    RetryPolicy
	observer observe.Sink
	logger   zerolog.Logger
}

func NewReasoningNode(provider llm.Provider, model string, registry *tools.Registry, retry RetryPolicy, observer observe.Sink, logger zerolog.Logger) *ReasoningNode {
	return &ReasoningNode{
		provider: provider,
		model:    model,
		registry: registry,
		retry:    retry,
		observer: observer,
		logger:   logger,
	}
}

func (n *ReasoningNode) Run(ctx context.Context, state *conversation.State) (conversation.Update, error) {
	ensurePersona(state)

	req := types.Request{
		Model:    n.model,
		Messages: state.Messages,
		Tools:    n.registry.Definitions(),
	}

	n.emit(ctx, observe.Event{
		ThreadID: state.ThreadID,
		Kind:     observe.KindProvider,
		Status:   observe.StatusStarted,
		Provider: n.provider.Name(),
	})
	started := time.Now()
	resp, err := n.retry.generate(ctx, n.provider, req)
	if err != nil {
		n.emit(ctx, observe.Event{
			ThreadID:   state.ThreadID,
			Kind:       observe.KindProvider,
			Status:     observe.StatusFailed,
			Provider:   n.provider.Name(),
			Error:      err.Error(),
			DurationMs: time.Since(started).Milliseconds(),
		})
		return conversation.Update{
			Messages: []types.Message{types.AssistantMessage(n.failureReply(err))},
		}, nil
	}
	n.emit(ctx, observe.Event{
		ThreadID:   state.ThreadID,
		Kind:       observe.KindProvider,
		Status:     observe.StatusCompleted,
		Provider:   n.provider.Name(),
		DurationMs: time.Since(started).Milliseconds(),
	})

	msg := resp.Message
	msg.Role = types.RoleAssistant
	return conversation.Update{Messages: []types.Message{msg}}, nil
}

func (n *ReasoningNode) emit(ctx context.Context, event observe.Event) {
	if n.observer == nil {
		return
	}
	_ = n.observer.Emit(ctx, event)
}

func (n *ReasoningNode) failureReply(err error) string {
	switch {
	case llm.Unauthorized(err):
		n.logger.Error().Err(err).Str("provider", n.provider.Name()).Msg("model authentication failed")
		return authFailureReply
	case llm.Transient(err):
		n.logger.Warn().Err(err).Str("provider", n.provider.Name()).Msg("model unreachable after retries")
		return transientFailureReply
	default:
		n.logger.Error().Err(err).Str("provider", n.provider.Name()).Msg("model call failed unexpectedly")
		return unexpectedFailureReply
	}
}

// ensurePersona injects the persona directive at position 0 exactly once.
func ensurePersona(state *conversation.State) {
	if len(state.Messages) > 0 &&
		state.Messages[0].Role == types.RoleSystem &&
		state.Messages[0].Content == personaPrompt {
		return
	}
	state.Messages = append([]types.Message{types.SystemMessage(personaPrompt)}, state.Messages...)
}
