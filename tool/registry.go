package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/parley-ai/parley/core"
)

// Registry is the tool-execution collaborator consumed by the engine. It maps
// tool names to implementations and turns a model-issued core.ToolCall into a
// string result: argument JSON is decoded, validated by the tool, executed,
// and the result serialized back.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry constructs a Registry holding the given tools.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		r.tools[t.Name()] = t
	}
	return r
}

// Register adds or replaces a tool by name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Tools returns the registered tools sorted by name.
func (r *Registry) Tools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// ProcessToolCall executes one model-issued tool call and returns the result
// rendered as a string. Unknown tools and malformed arguments are returned as
// errors; the engine converts any error into an error-text tool result rather
// than aborting the turn.
func (r *Registry) ProcessToolCall(ctx context.Context, call core.ToolCall) (string, error) {
	r.mu.RLock()
	t, ok := r.tools[call.Name]
	r.mu.RUnlock()
	if !ok {
		return "", NewToolError(call.Name, "unknown tool", "UNKNOWN_TOOL")
	}

	args := map[string]any{}
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return "", &ToolError{
				Tool:    call.Name,
				Message: fmt.Sprintf("malformed arguments: %v", err),
				Code:    "VALIDATION_ERROR",
			}
		}
	}

	result, err := t.Call(ctx, args)
	if err != nil {
		return "", err
	}

	switch v := result.(type) {
	case string:
		return v, nil
	case nil:
		return "", nil
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return "", &ToolError{
				Tool:    call.Name,
				Message: fmt.Sprintf("unserializable result: %v", err),
				Code:    "EXECUTION_ERROR",
			}
		}
		return string(encoded), nil
	}
}
