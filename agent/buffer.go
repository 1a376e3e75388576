package agent

import "github.com/parley-ai/parley/core"

// Buffer is the transient per-turn message list: tool calls, tool results and
// assistant content produced while one user input settles. It is owned
// exclusively by the executing turn task and is not safe for concurrent use;
// the workflow either commits the reconciled slice or discards it at turn end.
type Buffer struct {
	messages []core.Message
}

// NewBuffer constructs an empty turn buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Append adds messages to the end of the buffer.
func (b *Buffer) Append(messages ...core.Message) {
	b.messages = append(b.messages, messages...)
}

// Messages returns the buffered messages in order. The returned slice aliases
// the buffer; callers must not mutate it after handing the buffer to a turn.
func (b *Buffer) Messages() []core.Message {
	return b.messages
}

// Len reports the number of buffered messages.
func (b *Buffer) Len() int { return len(b.messages) }

// Last returns the final buffered message, if any.
func (b *Buffer) Last() (core.Message, bool) {
	if len(b.messages) == 0 {
		return core.Message{}, false
	}
	return b.messages[len(b.messages)-1], true
}

// Truncate drops messages from index n onward.
func (b *Buffer) Truncate(n int) {
	if n < len(b.messages) {
		b.messages = b.messages[:n]
	}
}
