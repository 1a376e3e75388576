package model

import (
	"context"

	"github.com/parley-ai/parley/core"
)

// ToolDefinition declaratively exposes a callable function to the model.
// Parameters is a JSON Schema object (draft agnostic, minimal subset expected).
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request captures the normalized model input produced by the engine. The
// message slice already contains the system/context message first, followed by
// history, the user message and any turn-buffer messages.
type Request struct {
	Messages    []core.Message   `json:"messages"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
	Temperature *float64         `json:"temperature,omitempty"` // nil = provider default
	MaxTokens   int64            `json:"max_tokens,omitempty"`  // 0 = provider default
}

// Chunk is one incremental fragment of a streaming completion. Exactly one of
// Content / ToolCallDelta is meaningful per chunk; FinishReason and Usage
// arrive on terminal chunks.
type Chunk struct {
	Content       string
	ToolCallDelta *ToolCallDelta
	FinishReason  core.FinishReason
	Usage         *core.TokenUsage
}

// ToolCallDelta is a partial tool call fragment. Fragments sharing an Index
// belong to the same call and must be merged (id and name replace, arguments
// append) by the consumer.
type ToolCallDelta struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}

// Result is the outcome of a non-streaming completion.
type Result struct {
	Message core.Message
	Usage   *core.TokenUsage
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "mock", ...
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the language-model provider contract consumed by the engine.
// Implementations must be safe for concurrent use by many workflows.
type Model interface {
	// CompletionStream starts a streaming completion. Chunks are delivered in
	// provider order on the first channel; a terminal provider failure is
	// delivered on the second. Both channels are closed when the call ends.
	CompletionStream(ctx context.Context, req Request) (<-chan Chunk, <-chan error)

	// Completion performs a non-streaming completion returning the complete
	// assistant message and token usage in one shot.
	Completion(ctx context.Context, req Request) (*Result, error)

	// Info returns information about the model implementation.
	Info() Info
}
