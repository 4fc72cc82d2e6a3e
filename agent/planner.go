package agent

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/taskpilot/taskpilot/conversation"
	"github.com/taskpilot/taskpilot/llm"
	"github.com/taskpilot/taskpilot/types"
)

// PlannerNode asks the model for a short numbered plan before the reasoning
// loop starts. Planning failures never block the user's request: any error
// falls back to running without a plan.
type PlannerNode struct {
	provider llm.Provider
	model    string
	logger   zerolog.Logger
}

func NewPlannerNode(provider llm.Provider, model string, logger zerolog.Logger) *PlannerNode {
	return &PlannerNode{provider: provider, model: model, logger: logger}
}

func (n *PlannerNode) Run(ctx context.Context, state *conversation.State) (conversation.Update, error) {
	noPlan := conversation.Update{
		Plan:     conversation.PlanOf(""),
		PlanStep: conversation.StepOf(0),
	}

	utterance := state.LatestUserText()
	if strings.TrimSpace(utterance) == "" {
		return noPlan, nil
	}

	req := types.Request{
		Model: n.model,
		Messages: []types.Message{
			types.SystemMessage(plannerPrompt),
			types.UserMessage(utterance),
		},
	}
	resp, err := n.provider.Generate(ctx, req)
	if err != nil {
		n.logger.Warn().Err(err).Msg("planning call failed, continuing without a plan")
		return noPlan, nil
	}

	plan := strings.TrimSpace(resp.Message.Content)
	if plan == "" || strings.Contains(strings.ToUpper(plan), noPlanSentinel) {
		return noPlan, nil
	}

	return conversation.Update{
		Plan:     conversation.PlanOf(plan),
		PlanStep: conversation.StepOf(0),
		Messages: []types.Message{types.SystemMessage("📋 Plan:\n" + plan)},
	}, nil
}
