package agent

import (
	"context"
	"strings"

	"github.com/taskpilot/taskpilot/conversation"
	"github.com/taskpilot/taskpilot/types"
)

// complexityKeywords mark requests that benefit from an upfront plan. Any
// match routes to the planner; simple requests skip it so "add milk" costs
// no extra model call.
var complexityKeywords = []string{
	"organize",
	"plan",
	"prepare",
	"prioritize",
	"schedule",
	"what should i",
}

// ClassifyComplexity reports whether an utterance needs planning. Matching
// is case-insensitive substring; deterministic by construction.
func ClassifyComplexity(text string) bool {
	lowered := strings.ToLower(text)
	for _, kw := range complexityKeywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}

// NeedsPlanning is the graph entry condition: the latest user utterance
// matches a complexity keyword. No user utterance means no planning.
func NeedsPlanning(_ context.Context, state *conversation.State) (bool, error) {
	return ClassifyComplexity(state.LatestUserText()), nil
}

// HasToolCalls routes reasoning to tool execution when the last message is
// an assistant message carrying at least one tool call.
func HasToolCalls(_ context.Context, state *conversation.State) (bool, error) {
	last, ok := state.LastMessage()
	if !ok {
		return false, nil
	}
	return last.Role == types.RoleAssistant && len(last.ToolCalls) > 0, nil
}

// PlanActive routes tool execution to reflection while a plan is being
// followed.
func PlanActive(_ context.Context, state *conversation.State) (bool, error) {
	return state.PlanActive(), nil
}
