package history

import (
	"context"
	"sync"

	"github.com/parley-ai/parley/core"
)

// CountBounded keeps at most Max messages, dropping the oldest once the bound
// is exceeded. It is the cheapest policy and the default for new agents.
type CountBounded struct {
	mu       sync.RWMutex
	max      int
	messages []core.Message
}

// NewCountBounded constructs a count-bounded history. A non-positive max
// falls back to 20 messages.
func NewCountBounded(max int) *CountBounded {
	if max <= 0 {
		max = 20
	}
	return &CountBounded{max: max}
}

// Add implements History.
func (h *CountBounded) Add(_ context.Context, messages ...core.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, messages...)
	if over := len(h.messages) - h.max; over > 0 {
		h.messages = append([]core.Message(nil), h.messages[over:]...)
	}
}

// Snapshot implements History.
func (h *CountBounded) Snapshot() []core.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]core.Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// Seed replaces the buffer with previously persisted messages, applying the
// bound. Used when loading an existing workflow.
func (h *CountBounded) Seed(messages []core.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if over := len(messages) - h.max; over > 0 {
		messages = messages[over:]
	}
	h.messages = append([]core.Message(nil), messages...)
}
