// Package tools holds the functions the model can call to act on the user's
// behalf. Every tool returns a user-facing string: operational failures
// ("task not found", "calendar unreachable") come back as chat text, not
// errors, so the model can relay them verbatim. The error return is reserved
// for malformed invocations.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/taskpilot/taskpilot/types"
)

type Tool interface {
	Definition() types.ToolDefinition
	Execute(ctx context.Context, args json.RawMessage) (string, error)
}

type FuncTool struct {
	def types.ToolDefinition
	fn  func(ctx context.Context, args json.RawMessage) (string, error)
}

func NewFuncTool(name, description string, schema map[string]any, fn func(ctx context.Context, args json.RawMessage) (string, error)) *FuncTool {
	return &FuncTool{
		def: types.ToolDefinition{
			Name:        name,
			Description: description,
			JSONSchema:  schema,
		},
		fn: fn,
	}
}

func (t *FuncTool) Definition() types.ToolDefinition {
	return t.def
}

func (t *FuncTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	if t.fn == nil {
		return "", fmt.Errorf("tool %q has no execute function", t.def.Name)
	}
	return t.fn(ctx, args)
}
