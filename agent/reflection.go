package agent

import (
	"context"
	"fmt"

	"github.com/taskpilot/taskpilot/conversation"
	"github.com/taskpilot/taskpilot/types"
)

// ReflectionNode inspects the most recent tool result against the active
// plan and either advances the step pointer or declares the plan complete.
// It never halts the graph itself: both outcomes hand control back to
// reasoning through a steering system note.
type ReflectionNode struct{}

func NewReflectionNode() *ReflectionNode {
	return &ReflectionNode{}
}

func (n *ReflectionNode) Run(ctx context.Context, state *conversation.State) (conversation.Update, error) {
	_ = ctx
	if !state.PlanActive() {
		return conversation.Update{}, nil
	}
	last, ok := state.LastMessage()
	if !ok || last.Role != types.RoleTool {
		// Progress is only judged right after a tool ran.
		return conversation.Update{}, nil
	}

	total := CountPlanSteps(state.Plan)
	next := state.PlanStep + 1

	if next >= total {
		return conversation.Update{
			Plan:     conversation.PlanOf(""),
			PlanStep: conversation.StepOf(0),
			Messages: []types.Message{types.SystemMessage(
				"✅ Plan completed! Give the user a brief summary of what was accomplished.",
			)},
		}, nil
	}

	return conversation.Update{
		PlanStep: conversation.StepOf(next),
		Messages: []types.Message{types.SystemMessage(
			fmt.Sprintf("Step %d complete. Moving to step %d of the plan.", next, next+1),
		)},
	}, nil
}
