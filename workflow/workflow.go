package workflow

import (
	"context"
	"strings"
	"sync"

	"github.com/parley-ai/parley/agent"
	"github.com/parley-ai/parley/core"
	"github.com/parley-ai/parley/logging"
	"github.com/parley-ai/parley/model"
	"github.com/parley-ai/parley/store"
	"github.com/parley-ai/parley/wire"
)

// State is the workflow lifecycle state. The transition is one-way: a
// workflow moves from StateNew to StatePersisted on its first successfully
// committed turn and never back.
type State string

const (
	StateNew       State = "new"
	StatePersisted State = "persisted"
)

const titlePrompt = "Generate a short title (at most six words) capturing the topic of " +
	"the following exchange. Respond with the title only, no quotes."

// Options configures a Workflow.
type Options struct {
	// TitleModel generates the chat title on the first committed turn.
	// Defaults to the agent's model.
	TitleModel model.Model

	// Logger receives lifecycle events. Defaults to logging.NoOpLogger.
	Logger logging.Logger

	// NonStreaming switches turns to the single-shot completion path;
	// clients then receive no stream_chunk frames, only the terminal event.
	NonStreaming bool
}

// Workflow wraps one conversation bound to an Agent: it owns the lifecycle
// state, enforces the single-in-flight-turn invariant, and drives
// reconciliation, persistence and title generation around each turn.
type Workflow struct {
	id           string
	userID       string
	agentID      string
	agent        *agent.Agent
	store        store.ChatStore
	emitter      core.Emitter
	titleModel   model.Model
	logger       logging.Logger
	nonStreaming bool

	mu    sync.Mutex
	state State
	turn  *turnHandle // non-nil while a turn is in flight
	wg    sync.WaitGroup
}

// turnHandle identifies one in-flight turn so a late release cannot clobber
// a newer turn's cancellation handle.
type turnHandle struct {
	cancel context.CancelFunc
}

// New creates a Workflow around an already-created chat record.
func New(id, userID, agentID string, ag *agent.Agent, st store.ChatStore, emitter core.Emitter, state State, optFns ...func(o *Options)) *Workflow {
	opts := Options{
		TitleModel: ag.Model(),
		Logger:     logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Workflow{
		id:           id,
		userID:       userID,
		agentID:      agentID,
		agent:        ag,
		store:        st,
		emitter:      emitter,
		titleModel:   opts.TitleModel,
		logger:       opts.Logger,
		nonStreaming: opts.NonStreaming,
		state:        state,
	}
}

// ID returns the workflow identifier (also the chat id in the store).
func (w *Workflow) ID() string { return w.id }

// AgentID returns the id of the agent configuration this workflow is bound to.
func (w *Workflow) AgentID() string { return w.agentID }

// State returns the current lifecycle state.
func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Busy reports whether a turn is currently in flight.
func (w *Workflow) Busy() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.turn != nil
}

// Execute starts one turn for the given input. It fails fast with
// core.ErrBusy if a turn is already in flight; otherwise the turn runs on its
// own task and Execute returns immediately. Every started turn terminates
// with either a stream_complete or an error event on the emitter.
func (w *Workflow) Execute(input *wire.Input) error {
	if err := input.Validate(); err != nil {
		return err
	}

	w.mu.Lock()
	if w.turn != nil {
		w.mu.Unlock()
		return core.ErrBusy
	}

	ctx, cancel := context.WithCancel(context.Background())
	handle := &turnHandle{cancel: cancel}
	w.turn = handle
	w.mu.Unlock()

	w.wg.Add(1)

	go func() {
		defer w.wg.Done()
		defer w.release(handle)

		w.runTurn(ctx, input)
	}()

	return nil
}

// CancelStream requests cancellation of the active turn. It is a no-op when
// no turn is in flight and is safe to call concurrently with natural
// completion.
func (w *Workflow) CancelStream() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.turn != nil {
		w.logger.Info("workflow.stream.cancel_requested", "workflow_id", w.id)
		w.turn.cancel()
	}
}

// Wait blocks until the in-flight turn, if any, has fully finished including
// persistence and emission.
func (w *Workflow) Wait() {
	w.wg.Wait()
}

// release clears the busy flag, but only if the handle still belongs to this
// turn. A new turn started after natural completion must not be clobbered by
// a late release.
func (w *Workflow) release(handle *turnHandle) {
	handle.cancel()

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.turn == handle {
		w.turn = nil
	}
}

func (w *Workflow) runTurn(ctx context.Context, input *wire.Input) {
	userMessage := core.NewUserMessage(input.Text)

	buffer := agent.NewBuffer()
	handler := &turnHandler{emitter: w.emitter, logger: w.logger}

	run := w.agent.Stream
	if w.nonStreaming {
		run = w.agent.Completion
	}

	reason, err := run(ctx, &userMessage, buffer, handler)
	if err != nil {
		w.logger.Error("workflow.turn.failed", "workflow_id", w.id, "error", err)
		w.emitError(err)
		return
	}

	reconcile(buffer)

	// The turn is over; persistence and title generation must not be
	// aborted by a stream cancellation that already did its job.
	w.finishTurn(context.Background(), userMessage, buffer, reason, attachmentPaths(input))
}

// finishTurn commits the reconciled buffer, emits the terminal event and, on
// the first committed turn, generates the chat title.
func (w *Workflow) finishTurn(ctx context.Context, userMessage core.Message, buffer *agent.Buffer, reason core.FinishReason, paths []string) {
	complete := wire.NewStreamComplete(w.id, reason)
	complete.AttachmentPaths = paths

	if buffer.Len() == 0 {
		// Nothing survived reconciliation; terminal event without a group id.
		if err := w.emitter.Emit(complete); err != nil {
			w.logger.Warn("workflow.emit.failed", "workflow_id", w.id, "error", err)
		}
		return
	}

	w.agent.AddToHistory(ctx, append([]core.Message{userMessage}, buffer.Messages()...)...)

	groupID, err := w.store.CommitTurn(ctx, w.id, userMessage, buffer.Messages())
	if err != nil {
		w.logger.Error("workflow.commit.failed", "workflow_id", w.id, "error", err)
		w.emitError(err)
		return
	}

	complete.MessageGroupID = groupID
	if last, ok := buffer.Last(); ok {
		complete.Content = last.Content
	}

	w.maybeGenerateTitle(ctx, userMessage.Content, complete.Content)

	if err := w.emitter.Emit(complete); err != nil {
		w.logger.Warn("workflow.emit.failed", "workflow_id", w.id, "error", err)
	}

	w.logger.Info("workflow.turn.complete",
		"workflow_id", w.id, "reason", string(reason), "group_id", groupID)
}

// maybeGenerateTitle runs once per workflow lifetime, on the first committed
// turn. A title failure is logged and skipped; the workflow stays in StateNew
// so a later turn retries.
func (w *Workflow) maybeGenerateTitle(ctx context.Context, prompt, response string) {
	w.mu.Lock()
	isNew := w.state == StateNew
	w.mu.Unlock()

	if !isNew {
		return
	}

	title, err := w.generateTitle(ctx, prompt, response)
	if err != nil {
		w.logger.Warn("workflow.title.failed", "workflow_id", w.id, "error", err)
		return
	}

	if err := w.store.UpdateTitle(ctx, w.id, title); err != nil {
		w.logger.Warn("workflow.title.persist_failed", "workflow_id", w.id, "error", err)
		return
	}

	if err := w.emitter.Emit(wire.NewChatTitle(w.id, title)); err != nil {
		w.logger.Warn("workflow.emit.failed", "workflow_id", w.id, "error", err)
	}

	w.mu.Lock()
	w.state = StatePersisted
	w.mu.Unlock()

	w.logger.Info("workflow.title.generated", "workflow_id", w.id, "title", title)
}

func (w *Workflow) generateTitle(ctx context.Context, prompt, response string) (string, error) {
	var sb strings.Builder

	sb.WriteString("User: ")
	sb.WriteString(prompt)
	sb.WriteString("\nAssistant: ")
	sb.WriteString(response)

	result, err := w.titleModel.Completion(ctx, model.Request{
		Messages: []core.Message{
			core.NewSystemMessage(titlePrompt),
			core.NewUserMessage(sb.String()),
		},
		MaxTokens: 32,
	})
	if err != nil {
		return "", err
	}

	title := strings.TrimSpace(strings.Trim(strings.TrimSpace(result.Message.Content), `"`))
	if title == "" {
		title = "New conversation"
	}

	return title, nil
}

func (w *Workflow) emitError(err error) {
	msg := core.UserMessage(err, w.agent.ErrorMessage())
	if emitErr := w.emitter.Emit(wire.NewError(msg)); emitErr != nil {
		w.logger.Warn("workflow.emit.failed", "workflow_id", w.id, "error", emitErr)
	}
}

// reconcile trims discardable messages off the buffer tail until it ends with
// a content-bearing assistant message or is empty. Trailing tool results,
// unanswered tool-call messages and contentless assistant messages are all
// dropped; interior tool exchanges that led to a final answer are kept.
func reconcile(buffer *agent.Buffer) {
	for buffer.Len() > 0 {
		last, _ := buffer.Last()
		if last.Role == core.RoleAssistant && !last.IsToolCall() && last.Content != "" {
			return
		}

		buffer.Truncate(buffer.Len() - 1)
	}
}

func attachmentPaths(input *wire.Input) []string {
	var paths []string
	for _, att := range input.Attachments {
		if att.Path != "" {
			paths = append(paths, att.Path)
		}
	}
	return paths
}

// turnHandler forwards engine events to the client emitter in emission order.
type turnHandler struct {
	emitter core.Emitter
	logger  logging.Logger
}

func (h *turnHandler) OnStreamChunk(chunk string) {
	if err := h.emitter.Emit(wire.NewStreamChunk(chunk)); err != nil {
		h.logger.Warn("workflow.chunk.emit_failed", "error", err)
	}
}

func (h *turnHandler) OnToolCall(call core.ToolCall) {
	h.logger.Debug("workflow.tool.call", "tool", call.Name)
}

func (h *turnHandler) OnToolResult(call core.ToolCall, result string) {
	h.logger.Debug("workflow.tool.result", "tool", call.Name, "bytes", len(result))
}
