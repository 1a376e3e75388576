package store

import (
	"context"
	"time"

	"github.com/parley-ai/parley/core"
)

// Chat is the persisted metadata of one workflow/conversation.
type Chat struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	AgentID   string    `json:"agent_id"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChatStore is the persistence collaborator invoked at interaction
// boundaries: once when a workflow is created or loaded, once per settled
// turn. Implementations must be safe for concurrent use by many workflows.
type ChatStore interface {
	// CreateChat stores chat metadata for a new workflow.
	CreateChat(ctx context.Context, chat *Chat) error

	// GetChat returns chat metadata, or core.ErrWorkflowNotFound.
	GetChat(ctx context.Context, id string) (*Chat, error)

	// UpdateTitle sets the generated title on a chat.
	UpdateTitle(ctx context.Context, id, title string) error

	// CommitTurn stores one settled turn — the user message plus the
	// reconciled assistant/tool messages — and returns the id grouping the
	// stored messages.
	CommitTurn(ctx context.Context, chatID string, userMessage core.Message, assistant []core.Message) (string, error)

	// LoadHistory returns the committed messages of a chat in original order.
	LoadHistory(ctx context.Context, chatID string) ([]core.Message, error)
}
