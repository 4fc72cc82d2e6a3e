package agent

import (
	"context"
	"testing"

	"github.com/taskpilot/taskpilot/conversation"
	"github.com/taskpilot/taskpilot/types"
)

const twoStepPlan = "1. List all tasks\n2. Prioritize by due date"

func TestReflectionAdvancesPlanStep(t *testing.T) {
	st := conversation.New("t", "u")
	st.Plan = twoStepPlan
	st.PlanStep = 0
	st.Append(types.ToolMessage("list_tasks", "c1", "Your tasks:\n1. buy milk"))

	update, err := NewReflectionNode().Run(context.Background(), st)
	if err != nil {
		t.Fatalf("reflection: %v", err)
	}
	if update.PlanStep == nil || *update.PlanStep != 1 {
		t.Fatalf("plan step = %v, want 1", update.PlanStep)
	}
	if update.Plan != nil {
		t.Fatalf("plan must stay active mid-way")
	}
	if len(update.Messages) != 1 || update.Messages[0].Content != "Step 1 complete. Moving to step 2 of the plan." {
		t.Fatalf("steering note = %+v", update.Messages)
	}
}

func TestReflectionCompletesPlan(t *testing.T) {
	st := conversation.New("t", "u")
	st.Plan = twoStepPlan
	st.PlanStep = 1
	st.Append(types.ToolMessage("list_tasks", "c2", "done"))

	update, err := NewReflectionNode().Run(context.Background(), st)
	if err != nil {
		t.Fatalf("reflection: %v", err)
	}
	if update.Plan == nil || *update.Plan != "" {
		t.Fatalf("plan should be cleared, got %v", update.Plan)
	}
	if update.PlanStep == nil || *update.PlanStep != 0 {
		t.Fatalf("plan step should reset, got %v", update.PlanStep)
	}
	want := "✅ Plan completed! Give the user a brief summary of what was accomplished."
	if len(update.Messages) != 1 || update.Messages[0].Content != want {
		t.Fatalf("completion note = %+v", update.Messages)
	}
}

func TestReflectionIgnoresInactivePlan(t *testing.T) {
	st := conversation.New("t", "u")
	st.Append(types.ToolMessage("list_tasks", "c1", "done"))

	update, err := NewReflectionNode().Run(context.Background(), st)
	if err != nil {
		t.Fatalf("reflection: %v", err)
	}
	if update.Plan != nil || update.PlanStep != nil || len(update.Messages) != 0 {
		t.Fatalf("expected no-op, got %+v", update)
	}
}

func TestReflectionOnlyJudgesToolResults(t *testing.T) {
	st := conversation.New("t", "u")
	st.Plan = twoStepPlan
	st.Append(types.AssistantMessage("thinking"))

	update, err := NewReflectionNode().Run(context.Background(), st)
	if err != nil {
		t.Fatalf("reflection: %v", err)
	}
	if update.PlanStep != nil || len(update.Messages) != 0 {
		t.Fatalf("expected no-op when last message is not a tool result, got %+v", update)
	}
}
