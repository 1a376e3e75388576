package session

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-ai/parley/agent"
	"github.com/parley-ai/parley/core"
	"github.com/parley-ai/parley/history"
	"github.com/parley-ai/parley/model"
	"github.com/parley-ai/parley/store"
	"github.com/parley-ai/parley/wire"
	"github.com/parley-ai/parley/workflow"
)

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

func (e *recordEmitter) ofType(match func(any) bool) []any {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []any
	for _, ev := range e.events {
		if match(ev) {
			out = append(out, ev)
		}
	}
	return out
}

func (e *recordEmitter) opens() []wire.WorkflowOpen {
	var out []wire.WorkflowOpen
	for _, ev := range e.ofType(func(ev any) bool { _, ok := ev.(wire.WorkflowOpen); return ok }) {
		out = append(out, ev.(wire.WorkflowOpen))
	}
	return out
}

func newTestRegistry(t *testing.T) (*Registry, *store.InMemoryStore) {
	t.Helper()

	st := store.NewInMemoryStore()
	builder := func(workflowType, agentID string) (*agent.Agent, error) {
		return agent.New(model.NewMockModel("test"), history.NewCountBounded(20)), nil
	}

	return NewRegistry(workflow.NewFactory(builder, st)), st
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestRegistry_NewWorkflowAnnouncesOpen(t *testing.T) {
	r, _ := newTestRegistry(t)
	sess := core.NewSession("alice", "tok-1")
	emitter := &recordEmitter{}

	raw := mustJSON(t, map[string]string{"type": wire.TypeWorkflowNew, "agentId": "a1"})
	require.NoError(t, r.HandleMessage(context.Background(), sess, raw, emitter))

	opens := emitter.opens()
	require.Len(t, opens, 1)
	assert.NotEmpty(t, opens[0].ID)

	wf, ok := r.Workflow(sess)
	require.True(t, ok)
	assert.Equal(t, opens[0].ID, wf.ID())
}

func TestRegistry_IdempotentReload(t *testing.T) {
	r, _ := newTestRegistry(t)
	sess := core.NewSession("alice", "tok-1")
	emitter := &recordEmitter{}

	raw := mustJSON(t, map[string]string{"type": wire.TypeWorkflowNew})
	require.NoError(t, r.HandleMessage(context.Background(), sess, raw, emitter))

	first, ok := r.Workflow(sess)
	require.True(t, ok)

	load := mustJSON(t, map[string]string{"type": wire.TypeWorkflowExisting, "workflowId": first.ID()})
	require.NoError(t, r.HandleMessage(context.Background(), sess, load, emitter))
	require.NoError(t, r.HandleMessage(context.Background(), sess, load, emitter))

	// Same instance both times; never recreated.
	current, ok := r.Workflow(sess)
	require.True(t, ok)
	assert.Same(t, first, current)

	// workflow.open re-announced on each load.
	assert.Len(t, emitter.opens(), 3)
}

func TestRegistry_LoadReplacesDifferentWorkflow(t *testing.T) {
	r, _ := newTestRegistry(t)
	sess := core.NewSession("alice", "tok-1")
	emitter := &recordEmitter{}

	create := mustJSON(t, map[string]string{"type": wire.TypeWorkflowNew})
	require.NoError(t, r.HandleMessage(context.Background(), sess, create, emitter))
	first, _ := r.Workflow(sess)

	require.NoError(t, r.HandleMessage(context.Background(), sess, create, emitter))
	second, _ := r.Workflow(sess)
	require.NotEqual(t, first.ID(), second.ID())

	load := mustJSON(t, map[string]string{"type": wire.TypeWorkflowExisting, "workflowId": first.ID()})
	require.NoError(t, r.HandleMessage(context.Background(), sess, load, emitter))

	current, ok := r.Workflow(sess)
	require.True(t, ok)
	assert.Equal(t, first.ID(), current.ID())
	assert.NotSame(t, first, current, "reloaded from persisted state")
}

func TestRegistry_CloseRemovesWorkflow(t *testing.T) {
	r, _ := newTestRegistry(t)
	sess := core.NewSession("alice", "tok-1")
	emitter := &recordEmitter{}

	create := mustJSON(t, map[string]string{"type": wire.TypeWorkflowNew})
	require.NoError(t, r.HandleMessage(context.Background(), sess, create, emitter))

	closeMsg := mustJSON(t, map[string]string{"type": wire.TypeWorkflowClose})
	require.NoError(t, r.HandleMessage(context.Background(), sess, closeMsg, emitter))

	_, ok := r.Workflow(sess)
	assert.False(t, ok)

	closed := emitter.ofType(func(ev any) bool { _, ok := ev.(wire.WorkflowClosed); return ok })
	assert.Len(t, closed, 1)

	// Closing again is a protocol error.
	err := r.HandleMessage(context.Background(), sess, closeMsg, emitter)
	assert.ErrorIs(t, err, core.ErrNoWorkflow)
}

func TestRegistry_InputWithoutWorkflowIsProtocolError(t *testing.T) {
	r, _ := newTestRegistry(t)
	sess := core.NewSession("alice", "tok-1")

	err := r.HandleMessage(context.Background(), sess, []byte(`{"text":"hello"}`), &recordEmitter{})
	assert.ErrorIs(t, err, core.ErrNoWorkflow)
}

func TestRegistry_MalformedPayloadRejected(t *testing.T) {
	r, _ := newTestRegistry(t)
	sess := core.NewSession("alice", "tok-1")

	err := r.HandleMessage(context.Background(), sess, []byte(`{not json`), &recordEmitter{})
	assert.Error(t, err)
}

func TestRegistry_InputRunsTurnOnOpenWorkflow(t *testing.T) {
	r, _ := newTestRegistry(t)
	sess := core.NewSession("alice", "tok-1")
	emitter := &recordEmitter{}

	create := mustJSON(t, map[string]string{"type": wire.TypeWorkflowNew})
	require.NoError(t, r.HandleMessage(context.Background(), sess, create, emitter))

	require.NoError(t, r.HandleMessage(context.Background(), sess, []byte(`{"text":"hello"}`), emitter))

	wf, _ := r.Workflow(sess)
	wf.Wait()

	completes := emitter.ofType(func(ev any) bool { _, ok := ev.(wire.StreamComplete); return ok })
	require.Len(t, completes, 1)
	assert.Equal(t, core.FinishStop, completes[0].(wire.StreamComplete).Reason)
}

func TestRegistry_AgentDeactivationEvictsAndBroadcasts(t *testing.T) {
	r, _ := newTestRegistry(t)

	sessions := []struct {
		sess    core.Session
		agentID string
	}{
		{core.NewSession("alice", "tok-1"), "agent-a"},
		{core.NewSession("bob", "tok-2"), "agent-a"},
		{core.NewSession("carol", "tok-3"), "agent-b"},
	}

	emitters := make([]*recordEmitter, len(sessions))
	for i, s := range sessions {
		emitters[i] = &recordEmitter{}
		r.RegisterSystemEmitter(s.sess, emitters[i])

		raw := mustJSON(t, map[string]string{"type": wire.TypeWorkflowNew, "agentId": s.agentID})
		require.NoError(t, r.HandleMessage(context.Background(), s.sess, raw, emitters[i]))
	}

	r.HandleAgentDeactivated("agent-a")

	_, ok := r.Workflow(sessions[0].sess)
	assert.False(t, ok)
	_, ok = r.Workflow(sessions[1].sess)
	assert.False(t, ok)
	_, ok = r.Workflow(sessions[2].sess)
	assert.True(t, ok, "workflows bound to other agents survive")

	for i, em := range emitters {
		broadcasts := em.ofType(func(ev any) bool { _, ok := ev.(wire.AgentDeactivated); return ok })
		require.Len(t, broadcasts, 1, "session %d missed the broadcast", i)
		assert.Equal(t, "agent-a", broadcasts[0].(wire.AgentDeactivated).AgentID)
	}

	// An insert racing the eviction must not leave a stale entry.
	raw := mustJSON(t, map[string]string{"type": wire.TypeWorkflowNew, "agentId": "agent-a"})
	err := r.HandleMessage(context.Background(), sessions[0].sess, raw, emitters[0])
	assert.Error(t, err)
	_, ok = r.Workflow(sessions[0].sess)
	assert.False(t, ok)
}

func TestRegistry_DisconnectDropsAllSessionState(t *testing.T) {
	r, _ := newTestRegistry(t)
	sess := core.NewSession("alice", "tok-1")
	emitter := &recordEmitter{}

	r.RegisterSystemEmitter(sess, emitter)
	create := mustJSON(t, map[string]string{"type": wire.TypeWorkflowNew})
	require.NoError(t, r.HandleMessage(context.Background(), sess, create, emitter))

	r.Disconnect(sess)

	_, ok := r.Workflow(sess)
	assert.False(t, ok)

	// No longer reached by broadcasts.
	r.HandleAgentDeactivated("whatever")
	broadcasts := emitter.ofType(func(ev any) bool { _, ok := ev.(wire.AgentDeactivated); return ok })
	assert.Empty(t, broadcasts)
}
