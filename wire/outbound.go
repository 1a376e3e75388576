package wire

import "github.com/parley-ai/parley/core"

// Outbound message type discriminators.
const (
	TypeStreamChunk      = "stream_chunk"
	TypeStreamComplete   = "stream_complete"
	TypeChatTitle        = "chat.title"
	TypeWorkflowOpen     = "workflow.open"
	TypeWorkflowClosed   = "workflow.closed"
	TypeAgentDeactivated = "system.event.agent_deactivated"
	TypeError            = "error"
)

// StreamChunk carries one partial content fragment; zero or more per turn.
type StreamChunk struct {
	Type  string `json:"type"`
	Chunk string `json:"chunk"`
}

// NewStreamChunk builds a stream_chunk frame.
func NewStreamChunk(chunk string) StreamChunk {
	return StreamChunk{Type: TypeStreamChunk, Chunk: chunk}
}

// StreamComplete is the terminal event of a turn; exactly one per turn.
// MessageGroupID is empty when the turn produced nothing to store.
type StreamComplete struct {
	Type            string            `json:"type"`
	ChatID          string            `json:"chatId"`
	Reason          core.FinishReason `json:"reason"`
	MessageGroupID  string            `json:"messageGroupId,omitempty"`
	AttachmentPaths []string          `json:"attachmentPaths,omitempty"`
	Content         string            `json:"content,omitempty"`
}

// NewStreamComplete builds a stream_complete frame.
func NewStreamComplete(chatID string, reason core.FinishReason) StreamComplete {
	return StreamComplete{Type: TypeStreamComplete, ChatID: chatID, Reason: reason}
}

// ChatTitle announces the generated title; at most once per workflow lifetime.
type ChatTitle struct {
	Type   string `json:"type"`
	ChatID string `json:"chatId"`
	Title  string `json:"title"`
}

// NewChatTitle builds a chat.title frame.
func NewChatTitle(chatID, title string) ChatTitle {
	return ChatTitle{Type: TypeChatTitle, ChatID: chatID, Title: title}
}

// WorkflowOpen announces that a workflow is now bound to the session.
type WorkflowOpen struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// NewWorkflowOpen builds a workflow.open frame.
func NewWorkflowOpen(id string) WorkflowOpen {
	return WorkflowOpen{Type: TypeWorkflowOpen, ID: id}
}

// WorkflowClosed announces that the session's workflow was closed.
type WorkflowClosed struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// NewWorkflowClosed builds a workflow.closed frame.
func NewWorkflowClosed(id string) WorkflowClosed {
	return WorkflowClosed{Type: TypeWorkflowClosed, ID: id}
}

// AgentDeactivated is broadcast to every registered session emitter when an
// agent configuration is deactivated system-wide.
type AgentDeactivated struct {
	Type    string `json:"type"`
	AgentID string `json:"agentId"`
}

// NewAgentDeactivated builds a system.event.agent_deactivated frame.
func NewAgentDeactivated(agentID string) AgentDeactivated {
	return AgentDeactivated{Type: TypeAgentDeactivated, AgentID: agentID}
}

// Error is the structured error payload sent on any failure.
type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewError builds an error frame with a user-facing message.
func NewError(message string) Error {
	return Error{Type: TypeError, Message: message}
}
