package history

import (
	"context"

	"github.com/parley-ai/parley/core"
)

// History is a bounded, policy-governed sequence of prior turn messages fed
// back into subsequent model calls. The engine appends committed messages
// between turns via Add; Snapshot returns the ordered sequence to feed the
// model. The agent's system/context message is never part of history.
//
// Implementations are safe for concurrent use: the single-in-flight-turn
// invariant keeps writers exclusive per workflow, but persistence and title
// generation may read a snapshot after the turn task returns.
type History interface {
	// Add appends messages and then applies the policy's bound. The context
	// covers any model call the policy makes (summarization); bounding
	// failures degrade to simple truncation and never corrupt the buffer.
	Add(ctx context.Context, messages ...core.Message)

	// Snapshot returns a copy of the current ordered message sequence.
	Snapshot() []core.Message
}
