package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/parley-ai/parley/agent"
	"github.com/parley-ai/parley/core"
	"github.com/parley-ai/parley/internal/util"
	"github.com/parley-ai/parley/logging"
	"github.com/parley-ai/parley/store"
)

// AgentBuilder constructs the Agent for a workflow, selected by workflow type
// and optional agent id. Different workflow kinds differ only in the agent
// they get built with, not in workflow behavior.
type AgentBuilder func(workflowType, agentID string) (*agent.Agent, error)

// FactoryOptions configures a Factory.
type FactoryOptions struct {
	// Logger is handed to every workflow the factory builds.
	// Defaults to logging.NoOpLogger.
	Logger logging.Logger

	// NonStreaming is propagated to every workflow the factory builds.
	NonStreaming bool
}

// Factory builds Workflows, either fresh or reconstructed from persisted
// state. It is safe for concurrent use.
type Factory struct {
	build        AgentBuilder
	store        store.ChatStore
	logger       logging.Logger
	nonStreaming bool
}

// NewFactory creates a workflow factory.
func NewFactory(build AgentBuilder, st store.ChatStore, optFns ...func(o *FactoryOptions)) *Factory {
	opts := FactoryOptions{
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Factory{
		build:        build,
		store:        st,
		logger:       opts.Logger,
		nonStreaming: opts.NonStreaming,
	}
}

// New creates a fresh workflow for the session, persisting its chat record.
func (f *Factory) New(ctx context.Context, sess core.Session, workflowType, agentID string, emitter core.Emitter) (*Workflow, error) {
	ag, err := f.build(workflowType, agentID)
	if err != nil {
		return nil, fmt.Errorf("building agent: %w", err)
	}

	chat := &store.Chat{
		ID:        util.NewID(),
		UserID:    sess.UserID,
		AgentID:   agentID,
		CreatedAt: time.Now().UTC(),
	}

	if err := f.store.CreateChat(ctx, chat); err != nil {
		return nil, fmt.Errorf("creating chat: %w", err)
	}

	f.logger.Info("workflow.created",
		"workflow_id", chat.ID, "user_id", sess.UserID, "workflow_type", workflowType)

	return New(chat.ID, sess.UserID, agentID, ag, f.store, emitter, StateNew, func(o *Options) {
		o.Logger = f.logger
		o.NonStreaming = f.nonStreaming
	}), nil
}

// Load reconstructs an existing workflow from persisted state. The chat must
// belong to the session's user; otherwise it is reported as not found.
func (f *Factory) Load(ctx context.Context, sess core.Session, workflowID string, emitter core.Emitter) (*Workflow, error) {
	chat, err := f.store.GetChat(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if chat.UserID != sess.UserID {
		return nil, core.ErrWorkflowNotFound
	}

	ag, err := f.build("", chat.AgentID)
	if err != nil {
		return nil, fmt.Errorf("building agent: %w", err)
	}

	messages, err := f.store.LoadHistory(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}

	if seeder, ok := ag.History().(interface{ Seed([]core.Message) }); ok {
		seeder.Seed(messages)
	}

	state := StateNew
	if chat.Title != "" {
		state = StatePersisted
	}

	f.logger.Info("workflow.loaded",
		"workflow_id", chat.ID, "user_id", sess.UserID, "messages", len(messages))

	return New(chat.ID, chat.UserID, chat.AgentID, ag, f.store, emitter, state, func(o *Options) {
		o.Logger = f.logger
		o.NonStreaming = f.nonStreaming
	}), nil
}
