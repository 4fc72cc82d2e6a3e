package conversation

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/taskpilot/taskpilot/types"
)

// State is the unit of truth flowing through the agent graph: the full
// message history plus the plan bookkeeping for multi-step requests. One
// State exists per conversation thread; the graph executor owns the in-memory
// copy during an invocation and the checkpoint store owns the durable copy.
type State struct {
	ThreadID  string          `json:"threadId"`
	UserID    string          `json:"userId"`
	Messages  []types.Message `json:"messages"`
	Plan      string          `json:"plan,omitempty"`
	PlanStep  int             `json:"planStep"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Update is the partial state a graph node returns. Messages are appended to
// the history; Plan and PlanStep overwrite when set. A zero Update is a no-op.
type Update struct {
	Messages []types.Message
	Plan     *string // empty string clears the plan
	PlanStep *int
}

// PlanOf builds a plan update value.
func PlanOf(plan string) *string { return &plan }

// StepOf builds a plan-step update value.
func StepOf(step int) *int { return &step }

func New(threadID, userID string) *State {
	now := time.Now().UTC()
	return &State{
		ThreadID:  threadID,
		UserID:    userID,
		Messages:  []types.Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Apply merges a node's partial update into the state. Messages append and
// never replace prior history; all other fields are last-write-wins.
func (s *State) Apply(u Update) {
	if len(u.Messages) > 0 {
		s.Messages = append(s.Messages, u.Messages...)
	}
	if u.Plan != nil {
		s.Plan = *u.Plan
	}
	if u.PlanStep != nil {
		s.PlanStep = *u.PlanStep
	}
	s.UpdatedAt = time.Now().UTC()
}

// Append adds messages directly to the history.
func (s *State) Append(msgs ...types.Message) {
	s.Messages = append(s.Messages, msgs...)
	s.UpdatedAt = time.Now().UTC()
}

// PlanActive reports whether a multi-step plan is being followed.
func (s *State) PlanActive() bool {
	return s != nil && strings.TrimSpace(s.Plan) != ""
}

// LastMessage returns the most recent message, if any.
func (s *State) LastMessage() (types.Message, bool) {
	if s == nil || len(s.Messages) == 0 {
		return types.Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// LatestUserText returns the content of the most recent user utterance, or
// the empty string when the history holds none.
func (s *State) LatestUserText() string {
	if s == nil {
		return ""
	}
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == types.RoleUser {
			return s.Messages[i].Content
		}
	}
	return ""
}

// LastAssistantText returns the content of the most recent assistant message
// that carries user-facing text, skipping tool-call-only turns.
func (s *State) LastAssistantText() string {
	if s == nil {
		return ""
	}
	for i := len(s.Messages) - 1; i >= 0; i-- {
		m := s.Messages[i]
		if m.Role == types.RoleAssistant && strings.TrimSpace(m.Content) != "" {
			return m.Content
		}
	}
	return ""
}

// Snapshot encodes the state for durable checkpointing.
func (s *State) Snapshot() ([]byte, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal conversation state: %w", err)
	}
	return raw, nil
}

// Restore decodes a checkpointed state snapshot.
func Restore(raw []byte) (*State, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("conversation snapshot is empty")
	}
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("failed to decode conversation state: %w", err)
	}
	if st.Messages == nil {
		st.Messages = []types.Message{}
	}
	return &st, nil
}
