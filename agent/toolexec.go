package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/taskpilot/taskpilot/conversation"
	"github.com/taskpilot/taskpilot/observe"
	"github.com/taskpilot/taskpilot/tools"
	"github.com/taskpilot/taskpilot/types"
)

// ToolExecNode runs the tool calls requested by the immediately preceding
// assistant message and appends one tool-result message per call, in call
// order. Tool results answering anything other than that message cannot
// occur by construction, which is how the protocol stays in sync. Each call
// is reported to the observer as a tool event.
type ToolExecNode struct {
	registry        *tools.Registry
	defaultTimezone string
	observer        observe.Sink
}

func NewToolExecNode(registry *tools.Registry, defaultTimezone string, observer observe.Sink) *ToolExecNode {
	if defaultTimezone == "" {
		defaultTimezone = "UTC"
	}
	return &ToolExecNode{registry: registry, defaultTimezone: defaultTimezone, observer: observer}
}

func (n *ToolExecNode) Run(ctx context.Context, state *conversation.State) (conversation.Update, error) {
	last, ok := state.LastMessage()
	if !ok || last.Role != types.RoleAssistant || len(last.ToolCalls) == 0 {
		return conversation.Update{}, nil
	}

	results := make([]types.Message, 0, len(last.ToolCalls))
	for _, call := range last.ToolCalls {
		args, err := n.prepareArgs(call, state.UserID)
		if err != nil {
			n.emit(ctx, observe.Event{
				ThreadID: state.ThreadID,
				Kind:     observe.KindTool,
				Status:   observe.StatusFailed,
				ToolName: call.Name,
				Error:    err.Error(),
			})
			results = append(results, types.ToolMessage(call.Name, call.ID, fmt.Sprintf("❌ %v", err)))
			continue
		}

		n.emit(ctx, observe.Event{
			ThreadID: state.ThreadID,
			Kind:     observe.KindTool,
			Status:   observe.StatusStarted,
			ToolName: call.Name,
		})
		started := time.Now()
		out, err := n.registry.Execute(ctx, call.Name, args)
		if err != nil {
			// Unknown tool or schema violation: report back to the model
			// instead of failing the graph.
			n.emit(ctx, observe.Event{
				ThreadID:   state.ThreadID,
				Kind:       observe.KindTool,
				Status:     observe.StatusFailed,
				ToolName:   call.Name,
				Error:      err.Error(),
				DurationMs: time.Since(started).Milliseconds(),
			})
			results = append(results, types.ToolMessage(call.Name, call.ID, fmt.Sprintf("❌ %v", err)))
			continue
		}
		n.emit(ctx, observe.Event{
			ThreadID:   state.ThreadID,
			Kind:       observe.KindTool,
			Status:     observe.StatusCompleted,
			ToolName:   call.Name,
			DurationMs: time.Since(started).Milliseconds(),
		})
		results = append(results, types.ToolMessage(call.Name, call.ID, out))
	}
	return conversation.Update{Messages: results}, nil
}

func (n *ToolExecNode) emit(ctx context.Context, event observe.Event) {
	if n.observer == nil {
		return
	}
	_ = n.observer.Emit(ctx, event)
}

// prepareArgs overwrites user_id with the thread's owner so the model can
// never act on another user's data, and fills the timezone default where the
// tool accepts one.
func (n *ToolExecNode) prepareArgs(call types.ToolCall, userID string) (json.RawMessage, error) {
	args := map[string]any{}
	if len(call.Arguments) > 0 {
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			return nil, fmt.Errorf("malformed arguments for tool %q: %w", call.Name, err)
		}
	}
	args["user_id"] = userID

	if tool, ok := n.registry.Lookup(call.Name); ok {
		if schema := tool.Definition().JSONSchema; schema != nil {
			if props, ok := schema["properties"].(map[string]any); ok {
				if _, hasTZ := props["timezone"]; hasTZ {
					if tz, _ := args["timezone"].(string); tz == "" {
						args["timezone"] = n.defaultTimezone
					}
				}
			}
		}
	}

	raw, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to encode arguments for tool %q: %w", call.Name, err)
	}
	return raw, nil
}
