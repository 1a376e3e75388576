package model

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/parley-ai/parley/core"
)

// MockTurn scripts one model call of a MockModel. Either Text or ToolCalls is
// produced; FinishReason defaults to stop (tool_calls when calls are present).
type MockTurn struct {
	Text         string
	ToolCalls    []core.ToolCall
	FinishReason core.FinishReason
	Usage        *core.TokenUsage
	ChunkDelay   time.Duration // pause between streamed fragments
	Err          error         // terminal provider error instead of output
}

// MockModel is a lightweight in-memory Model useful for tests. Calls consume
// scripted turns in order; once the script is exhausted (or when none was
// provided) the model echoes the last user message.
type MockModel struct {
	mu     sync.Mutex
	info   Info
	script []MockTurn
	reqs   []Request
	calls  int
}

// NewMockModel constructs a MockModel with tool support enabled.
func NewMockModel(name string) *MockModel {
	return &MockModel{
		info: Info{Name: name, Provider: "mock", SupportsTools: true},
	}
}

// Enqueue appends scripted turns consumed by subsequent calls in order.
func (m *MockModel) Enqueue(turns ...MockTurn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, turns...)
}

// Calls reports how many completions (streaming or not) were requested.
func (m *MockModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Requests returns a copy of every request received, in call order.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.reqs))
	copy(out, m.reqs)
	return out
}

func (m *MockModel) next(req Request) MockTurn {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.reqs = append(m.reqs, req)
	if len(m.script) > 0 {
		turn := m.script[0]
		m.script = m.script[1:]
		return turn
	}
	var last string
	for _, msg := range req.Messages {
		if msg.Role == core.RoleUser {
			last = msg.Content
		}
	}
	return MockTurn{Text: fmt.Sprintf("Mock response to: %s", last)}
}

// CompletionStream implements Model; emits rune-sized content fragments (or
// per-call tool fragments) followed by a terminal chunk.
func (m *MockModel) CompletionStream(ctx context.Context, req Request) (<-chan Chunk, <-chan error) {
	out := make(chan Chunk, 16)
	errCh := make(chan error, 1)

	turn := m.next(req)

	go func() {
		defer close(out)
		defer close(errCh)

		if turn.Err != nil {
			errCh <- turn.Err
			return
		}

		for _, r := range turn.Text {
			if turn.ChunkDelay > 0 {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case <-time.After(turn.ChunkDelay):
				}
			}
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case out <- Chunk{Content: string(r)}:
			}
		}

		for i, call := range turn.ToolCalls {
			if turn.ChunkDelay > 0 {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case <-time.After(turn.ChunkDelay):
				}
			}
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case out <- Chunk{ToolCallDelta: &ToolCallDelta{
				Index:     i,
				ID:        call.ID,
				Name:      call.Name,
				Arguments: call.Arguments,
			}}:
			}
		}

		reason := turn.FinishReason
		if reason == "" {
			reason = core.FinishStop
			if len(turn.ToolCalls) > 0 {
				reason = core.FinishToolCalls
			}
		}

		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case out <- Chunk{FinishReason: reason, Usage: turn.Usage}:
		}
	}()

	return out, errCh
}

// Completion implements Model; returns the scripted turn atomically.
func (m *MockModel) Completion(ctx context.Context, req Request) (*Result, error) {
	turn := m.next(req)
	if turn.Err != nil {
		return nil, turn.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reason := turn.FinishReason
	if reason == "" {
		reason = core.FinishStop
	}

	msg := core.NewAssistantMessage(turn.Text, reason)
	if len(turn.ToolCalls) > 0 {
		msg = core.NewToolCallMessage(turn.ToolCalls)
	}

	return &Result{Message: msg, Usage: turn.Usage}, nil
}

// Info implements Model.
func (m *MockModel) Info() Info { return m.info }
