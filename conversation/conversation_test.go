package conversation

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/taskpilot/taskpilot/types"
)

func TestApplyAppendsMessages(t *testing.T) {
	st := New("thread-1", "user-1")
	st.Append(types.UserMessage("add milk"))

	st.Apply(Update{Messages: []types.Message{types.AssistantMessage("done")}})

	if len(st.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(st.Messages))
	}
	if st.Messages[0].Content != "add milk" {
		t.Fatalf("prior history was replaced: %q", st.Messages[0].Content)
	}
}

func TestApplyPlanFieldsLastWriteWins(t *testing.T) {
	st := New("thread-1", "user-1")

	st.Apply(Update{Plan: PlanOf("1. A\n2. B"), PlanStep: StepOf(0)})
	if !st.PlanActive() {
		t.Fatalf("expected plan to be active")
	}

	st.Apply(Update{PlanStep: StepOf(1)})
	if st.PlanStep != 1 {
		t.Fatalf("expected plan step 1, got %d", st.PlanStep)
	}
	if st.Plan != "1. A\n2. B" {
		t.Fatalf("plan was clobbered by unrelated update: %q", st.Plan)
	}

	st.Apply(Update{Plan: PlanOf(""), PlanStep: StepOf(0)})
	if st.PlanActive() {
		t.Fatalf("expected empty plan update to clear the plan")
	}
}

func TestZeroUpdateIsNoOp(t *testing.T) {
	st := New("thread-1", "user-1")
	st.Apply(Update{Plan: PlanOf("1. A"), PlanStep: StepOf(0)})
	st.Append(types.UserMessage("hi"))

	st.Apply(Update{})

	if st.Plan != "1. A" || st.PlanStep != 0 || len(st.Messages) != 1 {
		t.Fatalf("zero update changed state: plan=%q step=%d msgs=%d", st.Plan, st.PlanStep, len(st.Messages))
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	st := New("thread-9", "user-9")
	st.Append(
		types.UserMessage("organize my week"),
		types.Message{
			Role: types.RoleAssistant,
			ToolCalls: []types.ToolCall{
				{ID: "call-1", Name: "list_tasks", Arguments: []byte(`{"user_id":"user-9"}`)},
			},
		},
		types.ToolMessage("list_tasks", "call-1", "You have no tasks! 🎉"),
	)
	st.Apply(Update{Plan: PlanOf("1. List\n2. Review"), PlanStep: StepOf(1)})

	raw, err := st.Snapshot()
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	got, err := Restore(raw)
	if err != nil {
		t.Fatalf("restore failed: %v", err)
	}

	if diff := cmp.Diff(st, got); diff != "" {
		t.Fatalf("state changed across snapshot/restore (-want +got):\n%s", diff)
	}
}

func TestRestoreRejectsEmptyAndGarbage(t *testing.T) {
	if _, err := Restore(nil); err == nil {
		t.Fatalf("expected error for empty snapshot")
	}
	if _, err := Restore([]byte("{not json")); err == nil {
		t.Fatalf("expected error for malformed snapshot")
	}
}

func TestLastAssistantTextSkipsToolCallOnlyTurns(t *testing.T) {
	st := New("thread-1", "user-1")
	st.Append(
		types.UserMessage("add milk"),
		types.Message{
			Role:      types.RoleAssistant,
			ToolCalls: []types.ToolCall{{ID: "c1", Name: "add_task"}},
		},
		types.ToolMessage("add_task", "c1", "✓ Added task #1: 'milk'"),
	)

	if got := st.LastAssistantText(); got != "" {
		t.Fatalf("expected no user-facing assistant text yet, got %q", got)
	}

	st.Append(types.AssistantMessage("Added milk to your list! ✅"))
	if got := st.LastAssistantText(); got != "Added milk to your list! ✅" {
		t.Fatalf("unexpected assistant text %q", got)
	}
}

func TestLatestUserText(t *testing.T) {
	st := New("thread-1", "user-1")
	if got := st.LatestUserText(); got != "" {
		t.Fatalf("expected empty text for empty history, got %q", got)
	}

	st.Append(
		types.UserMessage("first"),
		types.AssistantMessage("ok"),
		types.UserMessage("second"),
		types.AssistantMessage("ok"),
	)
	if got := st.LatestUserText(); got != "second" {
		t.Fatalf("expected latest user utterance, got %q", got)
	}
}
