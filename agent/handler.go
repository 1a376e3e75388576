package agent

import (
	"context"

	"github.com/parley-ai/parley/core"
)

// EventHandler receives engine events during one turn. Implementations are
// invoked from the turn's task in emission order; a nil handler is valid and
// simply observes nothing.
type EventHandler interface {
	// OnStreamChunk delivers one partial content fragment, in provider order.
	OnStreamChunk(chunk string)

	// OnToolCall announces a tool invocation about to execute.
	OnToolCall(call core.ToolCall)

	// OnToolResult announces the (possibly error-text) result of a tool call.
	OnToolResult(call core.ToolCall, result string)
}

// ToolExecutor is the tool-execution collaborator. A returned error is
// converted by the engine into an error-text result fed back to the model,
// never into a turn abort. *tool.Registry satisfies this interface.
type ToolExecutor interface {
	ProcessToolCall(ctx context.Context, call core.ToolCall) (string, error)
}

// Enricher augments the user text before the first model call of a turn
// (retrieval augmentation and similar). Enrichers run in registration order;
// a failing enricher is skipped so enrichment never breaks the turn.
type Enricher interface {
	Enrich(ctx context.Context, text string) (string, error)
}

// EnricherFunc adapts a function to the Enricher interface.
type EnricherFunc func(ctx context.Context, text string) (string, error)

// Enrich implements Enricher.
func (f EnricherFunc) Enrich(ctx context.Context, text string) (string, error) {
	return f(ctx, text)
}
