package session

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/parley-ai/parley/core"
	"github.com/parley-ai/parley/logging"
	"github.com/parley-ai/parley/wire"
	"github.com/parley-ai/parley/workflow"
)

const shardCount = 16

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	// Logger receives registry events. Defaults to logging.NoOpLogger.
	Logger logging.Logger
}

// Registry tracks the open Workflow and the system emitter per live session.
// All operations are safe for concurrent invocation from independent
// connections; state is sharded so unrelated sessions never contend on one
// lock.
type Registry struct {
	shards  [shardCount]shard
	factory *workflow.Factory
	logger  logging.Logger

	// deactivatedMu guards deactivated. An insertion racing an eviction for
	// the same agent must lose; inserts check the set under the shard lock.
	// Deactivation is terminal for an agent id: there is no re-activation
	// path, and entries are kept for the lifetime of the process.
	deactivatedMu sync.RWMutex
	deactivated   map[string]struct{}
}

type shard struct {
	mu        sync.RWMutex
	workflows map[core.Session]*workflow.Workflow
	emitters  map[core.Session]core.Emitter
}

// NewRegistry creates a Registry backed by the given workflow factory.
func NewRegistry(factory *workflow.Factory, optFns ...func(o *RegistryOptions)) *Registry {
	opts := RegistryOptions{
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	r := &Registry{
		factory:     factory,
		logger:      opts.Logger,
		deactivated: make(map[string]struct{}),
	}

	for i := range r.shards {
		r.shards[i].workflows = make(map[core.Session]*workflow.Workflow)
		r.shards[i].emitters = make(map[core.Session]core.Emitter)
	}

	return r
}

func (r *Registry) shardFor(sess core.Session) *shard {
	h := fnv.New32a()
	h.Write([]byte(sess.UserID))
	h.Write([]byte{0})
	h.Write([]byte(sess.Token))
	return &r.shards[h.Sum32()%shardCount]
}

// RegisterSystemEmitter tracks the broadcast sink for a session, independent
// of whether a workflow is open.
func (r *Registry) RegisterSystemEmitter(sess core.Session, emitter core.Emitter) {
	s := r.shardFor(sess)
	s.mu.Lock()
	s.emitters[sess] = emitter
	s.mu.Unlock()
}

// RemoveSystemEmitter drops the session's broadcast sink.
func (r *Registry) RemoveSystemEmitter(sess core.Session) {
	s := r.shardFor(sess)
	s.mu.Lock()
	delete(s.emitters, sess)
	s.mu.Unlock()
}

// RemoveWorkflow drops the session's workflow entry without cancelling it.
// Callers that need the turn stopped must cancel first.
func (r *Registry) RemoveWorkflow(sess core.Session) {
	s := r.shardFor(sess)
	s.mu.Lock()
	delete(s.workflows, sess)
	s.mu.Unlock()
}

// Workflow returns the session's open workflow, if any.
func (r *Registry) Workflow(sess core.Session) (*workflow.Workflow, bool) {
	s := r.shardFor(sess)
	s.mu.RLock()
	defer s.mu.RUnlock()
	wf, ok := s.workflows[sess]
	return wf, ok
}

// HandleMessage dispatches one raw client payload for a session. Structured
// system commands manage the workflow lifecycle; anything else is forwarded as
// turn input to the session's open workflow. Errors returned here are
// protocol errors owed to the immediate caller; turn-level failures surface
// asynchronously on the emitter instead.
func (r *Registry) HandleMessage(ctx context.Context, sess core.Session, raw []byte, emitter core.Emitter) error {
	decoded, err := wire.DecodeInbound(raw)
	if err != nil {
		return err
	}

	switch msg := decoded.(type) {
	case wire.NewWorkflow:
		return r.handleNew(ctx, sess, msg, emitter)
	case wire.LoadWorkflow:
		return r.handleLoad(ctx, sess, msg, emitter)
	case wire.CloseWorkflow:
		return r.handleClose(sess, emitter)
	case wire.CancelStream:
		return r.handleCancel(sess)
	case *wire.Input:
		wf, ok := r.Workflow(sess)
		if !ok {
			return core.ErrNoWorkflow
		}
		return wf.Execute(msg)
	default:
		return core.ErrNoWorkflow
	}
}

func (r *Registry) handleNew(ctx context.Context, sess core.Session, cmd wire.NewWorkflow, emitter core.Emitter) error {
	wf, err := r.factory.New(ctx, sess, cmd.WorkflowType, cmd.AgentID, emitter)
	if err != nil {
		return err
	}

	if err := r.storeWorkflow(sess, wf); err != nil {
		return err
	}

	r.logger.Info("session.workflow.opened",
		"session", sess.String(), "workflow_id", wf.ID())

	return emitter.Emit(wire.NewWorkflowOpen(wf.ID()))
}

func (r *Registry) handleLoad(ctx context.Context, sess core.Session, cmd wire.LoadWorkflow, emitter core.Emitter) error {
	// Idempotent reload: the same workflow already open is just re-announced.
	if current, ok := r.Workflow(sess); ok && current.ID() == cmd.WorkflowID {
		return emitter.Emit(wire.NewWorkflowOpen(current.ID()))
	}

	wf, err := r.factory.Load(ctx, sess, cmd.WorkflowID, emitter)
	if err != nil {
		return err
	}

	if current, ok := r.Workflow(sess); ok {
		current.CancelStream()
	}

	if err := r.storeWorkflow(sess, wf); err != nil {
		return err
	}

	r.logger.Info("session.workflow.loaded",
		"session", sess.String(), "workflow_id", wf.ID())

	return emitter.Emit(wire.NewWorkflowOpen(wf.ID()))
}

func (r *Registry) handleClose(sess core.Session, emitter core.Emitter) error {
	s := r.shardFor(sess)

	s.mu.Lock()
	wf, ok := s.workflows[sess]
	delete(s.workflows, sess)
	s.mu.Unlock()

	if !ok {
		return core.ErrNoWorkflow
	}

	wf.CancelStream()

	r.logger.Info("session.workflow.closed",
		"session", sess.String(), "workflow_id", wf.ID())

	return emitter.Emit(wire.NewWorkflowClosed(wf.ID()))
}

func (r *Registry) handleCancel(sess core.Session) error {
	wf, ok := r.Workflow(sess)
	if !ok {
		return core.ErrNoWorkflow
	}

	wf.CancelStream()
	return nil
}

// storeWorkflow installs a workflow for the session, replacing any prior
// entry. It refuses workflows bound to an already-deactivated agent so an
// insert racing an eviction cannot leave a stale entry.
func (r *Registry) storeWorkflow(sess core.Session, wf *workflow.Workflow) error {
	s := r.shardFor(sess)

	s.mu.Lock()
	defer s.mu.Unlock()

	r.deactivatedMu.RLock()
	_, gone := r.deactivated[wf.AgentID()]
	r.deactivatedMu.RUnlock()

	if gone {
		return core.ErrWorkflowNotFound
	}

	s.workflows[sess] = wf
	return nil
}

// HandleAgentDeactivated evicts every workflow bound to the deactivated agent
// and broadcasts the event to all registered system emitters.
func (r *Registry) HandleAgentDeactivated(agentID string) {
	r.deactivatedMu.Lock()
	r.deactivated[agentID] = struct{}{}
	r.deactivatedMu.Unlock()

	evicted := 0
	event := wire.NewAgentDeactivated(agentID)

	for i := range r.shards {
		s := &r.shards[i]

		s.mu.Lock()
		for sess, wf := range s.workflows {
			if wf.AgentID() == agentID {
				wf.CancelStream()
				delete(s.workflows, sess)
				evicted++
			}
		}
		emitters := make([]core.Emitter, 0, len(s.emitters))
		for _, em := range s.emitters {
			emitters = append(emitters, em)
		}
		s.mu.Unlock()

		for _, em := range emitters {
			if err := em.Emit(event); err != nil {
				r.logger.Warn("session.broadcast.failed", "error", err)
			}
		}
	}

	r.logger.Info("session.agent.deactivated", "agent_id", agentID, "evicted", evicted)
}

// Disconnect tears down everything keyed by the session: the workflow (its
// stream cancelled) and the system emitter.
func (r *Registry) Disconnect(sess core.Session) {
	s := r.shardFor(sess)

	s.mu.Lock()
	wf, ok := s.workflows[sess]
	delete(s.workflows, sess)
	delete(s.emitters, sess)
	s.mu.Unlock()

	if ok {
		wf.CancelStream()
	}

	r.logger.Debug("session.disconnected", "session", sess.String())
}
