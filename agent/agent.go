package agent

import (
	"context"
	"sort"
	"strings"

	"github.com/parley-ai/parley/core"
	"github.com/parley-ai/parley/history"
	"github.com/parley-ai/parley/logging"
	"github.com/parley-ai/parley/model"
	"github.com/parley-ai/parley/tool"
	"github.com/parley-ai/parley/usage"
)

// DefaultMaxToolAttempts caps how many model calls of one turn may offer
// tools; the final attempt always runs without tools so the loop cannot
// recurse forever.
const DefaultMaxToolAttempts = 5

// DefaultErrorMessage is the user-facing fallback when an agent has no
// configured error string.
const DefaultErrorMessage = "Something went wrong while generating a response. Please try again."

// Options configure an Agent.
type Options struct {
	// SystemContext is prepended fresh on every model call; it is never part
	// of history.
	SystemContext string
	// Temperature overrides the provider default when non-nil.
	Temperature *float64
	// MaxTokens caps completion length; 0 uses the provider default.
	MaxTokens int64
	// MaxToolAttempts bounds model calls per turn (see DefaultMaxToolAttempts).
	MaxToolAttempts int
	// ErrorMessage is the user-facing text surfaced when a turn fails.
	ErrorMessage string
	// Tools executes model-issued tool calls; nil disables function calling.
	Tools *tool.Registry
	// Enrichers run over the user text before the first model call.
	Enrichers []Enricher
	// Usage receives token accounting per settled model call.
	Usage usage.Recorder
	// Logger receives engine events.
	Logger logging.Logger
}

// Agent is the reusable, conversation-independent configuration driving
// completions for a workflow: model, system context, completion parameters,
// tools and the bounded history. One Agent belongs to exactly one workflow;
// the single-in-flight-turn invariant makes its methods effectively serial
// per workflow.
type Agent struct {
	model           model.Model
	history         history.History
	systemContext   string
	temperature     *float64
	maxTokens       int64
	maxToolAttempts int
	errorMessage    string
	tools           *tool.Registry
	enrichers       []Enricher
	usage           usage.Recorder
	logger          logging.Logger
}

// New constructs an Agent bound to a model and a history policy.
func New(m model.Model, h history.History, optFns ...func(o *Options)) *Agent {
	opts := Options{
		MaxToolAttempts: DefaultMaxToolAttempts,
		ErrorMessage:    DefaultErrorMessage,
		Usage:           usage.NoOpRecorder{},
		Logger:          logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxToolAttempts <= 0 {
		opts.MaxToolAttempts = DefaultMaxToolAttempts
	}
	if opts.ErrorMessage == "" {
		opts.ErrorMessage = DefaultErrorMessage
	}

	return &Agent{
		model:           m,
		history:         h,
		systemContext:   opts.SystemContext,
		temperature:     opts.Temperature,
		maxTokens:       opts.MaxTokens,
		maxToolAttempts: opts.MaxToolAttempts,
		errorMessage:    opts.ErrorMessage,
		tools:           opts.Tools,
		enrichers:       opts.Enrichers,
		usage:           opts.Usage,
		logger:          opts.Logger,
	}
}

// ErrorMessage returns the configured user-facing error text.
func (a *Agent) ErrorMessage() string { return a.errorMessage }

// History returns the agent's bounded history.
func (a *Agent) History() history.History { return a.history }

// Model returns the underlying model collaborator.
func (a *Agent) Model() model.Model { return a.model }

// AddToHistory commits accepted messages into the bounded history. Called by
// the workflow only after a turn's assistant message is finalized.
func (a *Agent) AddToHistory(ctx context.Context, messages ...core.Message) {
	a.history.Add(ctx, messages...)
}

// Stream executes the recursive tool-call loop in streaming mode, forwarding
// every content fragment to the handler. The returned finish reason tags the
// turn outcome; buffered messages reflect the retain/discard cancellation
// rules.
func (a *Agent) Stream(ctx context.Context, userMessage *core.Message, buffer *Buffer, handler EventHandler) (core.FinishReason, error) {
	return a.run(ctx, userMessage, buffer, handler, true)
}

// Completion executes the recursive tool-call loop in non-streaming mode: the
// assistant message of each attempt arrives atomically.
func (a *Agent) Completion(ctx context.Context, userMessage *core.Message, buffer *Buffer, handler EventHandler) (core.FinishReason, error) {
	return a.run(ctx, userMessage, buffer, handler, false)
}

func (a *Agent) run(ctx context.Context, userMessage *core.Message, buffer *Buffer, handler EventHandler, streaming bool) (core.FinishReason, error) {
	// The model sees the enriched text; the caller's message keeps the
	// original user text for history and persistence. Enrichment runs once
	// per turn, before the first attempt.
	callMessage := *userMessage
	a.enrich(ctx, &callMessage)

	for attempt := 0; ; attempt++ {
		// The final attempt runs without tools, capping the recursion.
		toolsEnabled := a.tools != nil && attempt+1 < a.maxToolAttempts

		req := a.buildRequest(&callMessage, buffer, toolsEnabled)

		var (
			msg       core.Message
			cancelled bool
			err       error
		)
		if streaming {
			msg, cancelled, err = a.streamOnce(ctx, req, handler)
		} else {
			msg, cancelled, err = a.completeOnce(ctx, req)
		}
		if err != nil {
			return "", err
		}

		if cancelled {
			// Partial text survives as a ManualStop assistant message; a
			// partial tool call must never be treated as a final answer, so
			// an empty message leaves the buffer for this attempt untouched.
			if msg.Content != "" {
				buffer.Append(msg)
			}
			return core.FinishManualStop, nil
		}

		buffer.Append(msg)

		if !msg.IsToolCall() {
			return msg.FinishReason, nil
		}

		if !toolsEnabled {
			// The model produced calls we never offered (or the attempt cap
			// was reached); the tool-call tail is discarded at reconciliation.
			a.logger.Warn("agent.tool_loop.capped", "attempts", attempt+1)
			return msg.FinishReason, nil
		}

		if handlerDeclinesTools(handler) {
			return msg.FinishReason, nil
		}

		if reason, done := a.executeToolCalls(ctx, msg.ToolCalls, buffer, handler); done {
			return reason, nil
		}
	}
}

// handlerDeclinesTools reports whether no handler is registered to observe
// tool results; without one the loop aborts rather than executing side
// effects nobody consumes.
func handlerDeclinesTools(handler EventHandler) bool {
	return handler == nil
}

// executeToolCalls runs each call in order, appending one tool-result message
// per call. Tool failures become error-text results fed back to the model.
// Cancellation between calls ends the turn with ManualStop; the partially
// populated tool tail is dropped at reconciliation.
func (a *Agent) executeToolCalls(ctx context.Context, calls []core.ToolCall, buffer *Buffer, handler EventHandler) (core.FinishReason, bool) {
	for _, call := range calls {
		if ctx.Err() != nil {
			return core.FinishManualStop, true
		}

		handler.OnToolCall(call)

		result, err := a.tools.ProcessToolCall(ctx, call)
		if err != nil {
			a.logger.Warn("agent.tool.failed", "tool", call.Name, "error", err.Error())
			result = "Error: " + err.Error()
		} else {
			a.logger.Debug("agent.tool.executed", "tool", call.Name)
		}

		handler.OnToolResult(call, result)
		buffer.Append(core.NewToolResultMessage(call, result))
	}
	return "", false
}

// buildRequest assembles the model input: system context + history snapshot +
// user message + everything accumulated so far in the turn buffer.
func (a *Agent) buildRequest(userMessage *core.Message, buffer *Buffer, toolsEnabled bool) model.Request {
	snapshot := a.history.Snapshot()

	messages := make([]core.Message, 0, len(snapshot)+buffer.Len()+2)
	if a.systemContext != "" {
		messages = append(messages, core.NewSystemMessage(a.systemContext))
	}
	messages = append(messages, snapshot...)
	messages = append(messages, *userMessage)
	messages = append(messages, buffer.Messages()...)

	req := model.Request{
		Messages:    messages,
		Temperature: a.temperature,
		MaxTokens:   a.maxTokens,
	}
	if toolsEnabled {
		req.Tools = a.toolDefinitions()
	}
	return req
}

func (a *Agent) toolDefinitions() []model.ToolDefinition {
	tools := a.tools.Tools()
	defs := make([]model.ToolDefinition, len(tools))
	for i, t := range tools {
		defs[i] = model.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		}
	}
	return defs
}

// enrich runs the context-enrichment chain over the given message, replacing
// its text with the enriched version. Callers must pass a copy when the
// original text has to survive the turn.
func (a *Agent) enrich(ctx context.Context, userMessage *core.Message) {
	if userMessage.Content == "" {
		return
	}
	text := userMessage.Content
	for _, enricher := range a.enrichers {
		enriched, err := enricher.Enrich(ctx, text)
		if err != nil {
			a.logger.Warn("agent.enrich.failed", "error", err.Error())
			continue
		}
		text = enriched
	}
	userMessage.Content = text
}

// toolCallAgg merges partial tool call streaming deltas (id, name, arguments)
// keyed by call index so fragments for the same call accumulate instead of
// overwriting each other.
type toolCallAgg struct{ id, name, args string }

// streamOnce performs one streaming model call, forwarding content fragments
// and aggregating tool-call deltas. It reports cancellation separately from
// provider failure so the caller can apply the retain/discard rules.
func (a *Agent) streamOnce(ctx context.Context, req model.Request, handler EventHandler) (core.Message, bool, error) {
	chunks, errCh := a.model.CompletionStream(ctx, req)

	var (
		text    strings.Builder
		agg     = map[int]*toolCallAgg{}
		reason  core.FinishReason
		tokens  *core.TokenUsage
		callErr error
	)

	cancelled := false

loop:
	for {
		select {
		case <-ctx.Done():
			cancelled = true
			break loop
		case chunk, ok := <-chunks:
			if !ok {
				break loop
			}
			if chunk.Content != "" {
				text.WriteString(chunk.Content)
				if handler != nil {
					handler.OnStreamChunk(chunk.Content)
				}
			}
			if delta := chunk.ToolCallDelta; delta != nil {
				ac, ok := agg[delta.Index]
				if !ok {
					ac = &toolCallAgg{}
					agg[delta.Index] = ac
				}
				if delta.ID != "" {
					ac.id = delta.ID
				}
				if delta.Name != "" {
					ac.name = delta.Name
				}
				ac.args += delta.Arguments
			}
			if chunk.FinishReason != "" {
				reason = chunk.FinishReason
			}
			if chunk.Usage != nil {
				tokens = chunk.Usage
			}
		case err, ok := <-errCh:
			if !ok {
				continue
			}
			if ctx.Err() != nil {
				cancelled = true
			} else {
				callErr = err
			}
			break loop
		}
	}

	if tokens != nil {
		a.usage.Record(a.model.Info().Name, *tokens)
	}
	if callErr != nil {
		return core.Message{}, false, callErr
	}

	if cancelled {
		if text.Len() > 0 {
			return core.NewAssistantMessage(text.String(), core.FinishManualStop), true, nil
		}
		// Only an incomplete tool call (or nothing at all) accumulated:
		// nothing valid to retain.
		return core.Message{}, true, nil
	}

	if len(agg) > 0 {
		return core.NewToolCallMessage(orderedCalls(agg)), false, nil
	}

	if reason == "" {
		reason = core.FinishStop
	}
	return core.NewAssistantMessage(text.String(), reason), false, nil
}

// completeOnce performs one non-streaming model call.
func (a *Agent) completeOnce(ctx context.Context, req model.Request) (core.Message, bool, error) {
	result, err := a.model.Completion(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return core.Message{}, true, nil
		}
		return core.Message{}, false, err
	}
	if result.Usage != nil {
		a.usage.Record(a.model.Info().Name, *result.Usage)
	}
	return result.Message, false, nil
}

// orderedCalls flattens the aggregation map into calls sorted by stream index.
func orderedCalls(agg map[int]*toolCallAgg) []core.ToolCall {
	indexes := make([]int, 0, len(agg))
	for i := range agg {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	calls := make([]core.ToolCall, 0, len(indexes))
	for _, i := range indexes {
		ac := agg[i]
		calls = append(calls, core.ToolCall{ID: ac.id, Name: ac.name, Arguments: ac.args})
	}
	return calls
}
