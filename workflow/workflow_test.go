package workflow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-ai/parley/agent"
	"github.com/parley-ai/parley/core"
	"github.com/parley-ai/parley/history"
	"github.com/parley-ai/parley/model"
	"github.com/parley-ai/parley/store"
	"github.com/parley-ai/parley/wire"
)

// recordEmitter collects every emitted frame in order.
type recordEmitter struct {
	mu     sync.Mutex
	events []any
}

func (e *recordEmitter) Emit(msg any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, msg)
	return nil
}

func (e *recordEmitter) EmitError(err error) error {
	return e.Emit(wire.NewError(err.Error()))
}

func (e *recordEmitter) all() []any {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]any, len(e.events))
	copy(out, e.events)
	return out
}

func (e *recordEmitter) completes() []wire.StreamComplete {
	var out []wire.StreamComplete
	for _, ev := range e.all() {
		if sc, ok := ev.(wire.StreamComplete); ok {
			out = append(out, sc)
		}
	}
	return out
}

func (e *recordEmitter) titles() []wire.ChatTitle {
	var out []wire.ChatTitle
	for _, ev := range e.all() {
		if ct, ok := ev.(wire.ChatTitle); ok {
			out = append(out, ct)
		}
	}
	return out
}

func newTestWorkflow(t *testing.T, m *model.MockModel, emitter core.Emitter) (*Workflow, store.ChatStore) {
	t.Helper()

	st := store.NewInMemoryStore()
	ag := agent.New(m, history.NewCountBounded(20))

	builder := func(string, string) (*agent.Agent, error) { return ag, nil }
	factory := NewFactory(builder, st)

	wf, err := factory.New(context.Background(), core.NewSession("alice", "tok"), "", "agent-1", emitter)
	require.NoError(t, err)

	return wf, st
}

func TestWorkflow_EndToEnd(t *testing.T) {
	m := model.NewMockModel("test")
	m.Enqueue(
		model.MockTurn{Text: "hi there"},
		model.MockTurn{Text: "Friendly greeting"}, // title call
	)

	emitter := &recordEmitter{}
	wf, st := newTestWorkflow(t, m, emitter)

	require.Equal(t, StateNew, wf.State())

	require.NoError(t, wf.Execute(&wire.Input{Text: "hello"}))
	wf.Wait()

	completes := emitter.completes()
	require.Len(t, completes, 1)
	assert.Equal(t, core.FinishStop, completes[0].Reason)
	assert.NotEmpty(t, completes[0].MessageGroupID)
	assert.Equal(t, "hi there", completes[0].Content)

	titles := emitter.titles()
	require.Len(t, titles, 1)
	assert.Equal(t, "Friendly greeting", titles[0].Title)

	// chat.title arrives before stream_complete
	events := emitter.all()
	titleIdx, completeIdx := -1, -1
	for i, ev := range events {
		switch ev.(type) {
		case wire.ChatTitle:
			titleIdx = i
		case wire.StreamComplete:
			completeIdx = i
		}
	}
	assert.Less(t, titleIdx, completeIdx)

	assert.Equal(t, StatePersisted, wf.State())

	chat, err := st.GetChat(context.Background(), wf.ID())
	require.NoError(t, err)
	assert.Equal(t, "Friendly greeting", chat.Title)

	messages, err := st.LoadHistory(context.Background(), wf.ID())
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "hello", messages[0].Content)
	assert.Equal(t, "hi there", messages[1].Content)
}

func TestWorkflow_BusyRejectsSecondTurn(t *testing.T) {
	m := model.NewMockModel("test")
	m.Enqueue(
		model.MockTurn{Text: "slow answer streaming", ChunkDelay: 10 * time.Millisecond},
		model.MockTurn{Text: "title"},
	)

	emitter := &recordEmitter{}
	wf, _ := newTestWorkflow(t, m, emitter)

	require.NoError(t, wf.Execute(&wire.Input{Text: "first"}))

	err := wf.Execute(&wire.Input{Text: "second"})
	assert.ErrorIs(t, err, core.ErrBusy)

	wf.Wait()

	// The rejected turn left the first one untouched.
	completes := emitter.completes()
	require.Len(t, completes, 1)
	assert.Equal(t, "slow answer streaming", completes[0].Content)

	// Busy flag released; a later turn runs normally.
	require.NoError(t, wf.Execute(&wire.Input{Text: "third"}))
	wf.Wait()
	assert.Len(t, emitter.completes(), 2)
}

func TestWorkflow_RejectsEmptyInput(t *testing.T) {
	emitter := &recordEmitter{}
	wf, _ := newTestWorkflow(t, model.NewMockModel("test"), emitter)

	err := wf.Execute(&wire.Input{})
	assert.ErrorIs(t, err, core.ErrEmptyInput)
	assert.False(t, wf.Busy())
}

func TestWorkflow_CancelCommitsPartialText(t *testing.T) {
	m := model.NewMockModel("test")
	m.Enqueue(
		model.MockTurn{Text: "a long answer that keeps streaming for a while", ChunkDelay: 5 * time.Millisecond},
		model.MockTurn{Text: "title"},
	)

	emitter := &recordEmitter{}
	wf, _ := newTestWorkflow(t, m, emitter)

	require.NoError(t, wf.Execute(&wire.Input{Text: "go"}))
	time.Sleep(25 * time.Millisecond)
	wf.CancelStream()
	wf.Wait()

	completes := emitter.completes()
	require.Len(t, completes, 1)
	assert.Equal(t, core.FinishManualStop, completes[0].Reason)
	assert.NotEmpty(t, completes[0].MessageGroupID, "partial text must be committed")
	assert.NotEmpty(t, completes[0].Content)
}

func TestWorkflow_CancelWithoutActiveTurnIsNoOp(t *testing.T) {
	emitter := &recordEmitter{}
	wf, _ := newTestWorkflow(t, model.NewMockModel("test"), emitter)

	wf.CancelStream()
	assert.False(t, wf.Busy())
	assert.Empty(t, emitter.all())
}

func TestWorkflow_ProviderErrorSurfacesGenericMessage(t *testing.T) {
	m := model.NewMockModel("test")
	m.Enqueue(model.MockTurn{Err: assert.AnError})

	emitter := &recordEmitter{}
	wf, _ := newTestWorkflow(t, m, emitter)

	require.NoError(t, wf.Execute(&wire.Input{Text: "go"}))
	wf.Wait()

	events := emitter.all()
	require.Len(t, events, 1)
	errFrame, ok := events[0].(wire.Error)
	require.True(t, ok)
	assert.Equal(t, agent.DefaultErrorMessage, errFrame.Message)
	assert.NotContains(t, errFrame.Message, assert.AnError.Error())

	assert.False(t, wf.Busy(), "busy flag released even on error")
}

func TestWorkflow_NonStreamingEmitsNoChunks(t *testing.T) {
	m := model.NewMockModel("test")
	m.Enqueue(
		model.MockTurn{Text: "all at once"},
		model.MockTurn{Text: "title"},
	)

	st := store.NewInMemoryStore()
	ag := agent.New(m, history.NewCountBounded(20))
	factory := NewFactory(func(string, string) (*agent.Agent, error) { return ag, nil }, st,
		func(o *FactoryOptions) { o.NonStreaming = true })

	emitter := &recordEmitter{}
	wf, err := factory.New(context.Background(), core.NewSession("alice", "tok"), "", "a1", emitter)
	require.NoError(t, err)

	require.NoError(t, wf.Execute(&wire.Input{Text: "hello"}))
	wf.Wait()

	for _, ev := range emitter.all() {
		_, isChunk := ev.(wire.StreamChunk)
		assert.False(t, isChunk, "non-streaming turns must not emit stream_chunk frames")
	}

	completes := emitter.completes()
	require.Len(t, completes, 1)
	assert.Equal(t, "all at once", completes[0].Content)
}

func TestReconcile_TrimsDiscardableTail(t *testing.T) {
	tests := []struct {
		name     string
		messages []core.Message
		want     int
	}{
		{
			name: "final answer kept",
			messages: []core.Message{
				core.NewAssistantMessage("answer", core.FinishStop),
			},
			want: 1,
		},
		{
			name: "tool exchange followed by answer kept whole",
			messages: []core.Message{
				core.NewToolCallMessage([]core.ToolCall{{ID: "1", Name: "t"}}),
				core.NewToolResultMessage(core.ToolCall{ID: "1", Name: "t"}, "r"),
				core.NewAssistantMessage("answer", core.FinishStop),
			},
			want: 3,
		},
		{
			name: "unanswered tool call dropped",
			messages: []core.Message{
				core.NewToolCallMessage([]core.ToolCall{{ID: "1", Name: "t"}}),
			},
			want: 0,
		},
		{
			name: "dangling tool result tail dropped",
			messages: []core.Message{
				core.NewToolCallMessage([]core.ToolCall{{ID: "1", Name: "t"}}),
				core.NewToolResultMessage(core.ToolCall{ID: "1", Name: "t"}, "r"),
			},
			want: 0,
		},
		{
			name: "contentless assistant message dropped",
			messages: []core.Message{
				core.NewAssistantMessage("answer", core.FinishStop),
				core.NewAssistantMessage("", core.FinishStop),
			},
			want: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buffer := agent.NewBuffer()
			buffer.Append(tt.messages...)

			reconcile(buffer)

			assert.Equal(t, tt.want, buffer.Len())
		})
	}
}

func TestWorkflow_EnrichedTextStaysOutOfPersistence(t *testing.T) {
	m := model.NewMockModel("test")
	m.Enqueue(
		model.MockTurn{Text: "hi there"},
		model.MockTurn{Text: "Greeting"}, // title call
	)

	st := store.NewInMemoryStore()
	ag := agent.New(m, history.NewCountBounded(20), func(o *agent.Options) {
		o.Enrichers = []agent.Enricher{agent.EnricherFunc(func(_ context.Context, text string) (string, error) {
			return text + "\n\nRelevant documents: doc-7", nil
		})}
	})
	factory := NewFactory(func(string, string) (*agent.Agent, error) { return ag, nil }, st)

	emitter := &recordEmitter{}
	wf, err := factory.New(context.Background(), core.NewSession("alice", "tok"), "", "agent-1", emitter)
	require.NoError(t, err)

	require.NoError(t, wf.Execute(&wire.Input{Text: "hello"}))
	wf.Wait()

	// the model saw the enriched text
	reqs := m.Requests()
	require.NotEmpty(t, reqs)
	require.NotEmpty(t, reqs[0].Messages)
	assert.Equal(t, "hello\n\nRelevant documents: doc-7", reqs[0].Messages[0].Content)

	// the store committed the original user text
	persisted, err := st.LoadHistory(context.Background(), wf.ID())
	require.NoError(t, err)
	require.NotEmpty(t, persisted)
	assert.Equal(t, core.RoleUser, persisted[0].Role)
	assert.Equal(t, "hello", persisted[0].Content)

	// so did the in-memory history
	snapshot := ag.History().Snapshot()
	require.NotEmpty(t, snapshot)
	assert.Equal(t, "hello", snapshot[0].Content)
}
