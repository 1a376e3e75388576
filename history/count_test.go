package history

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-ai/parley/core"
)

func TestCountBounded_DropsOldestBeyondBound(t *testing.T) {
	h := NewCountBounded(4)

	for i := 0; i < 3; i++ {
		h.Add(context.Background(),
			core.NewUserMessage(fmt.Sprintf("question %d", i)),
			core.NewAssistantMessage(fmt.Sprintf("answer %d", i), core.FinishStop),
		)
	}

	snap := h.Snapshot()
	require.Len(t, snap, 4)

	// Most recent messages survive in original order.
	assert.Equal(t, "question 1", snap[0].Content)
	assert.Equal(t, "answer 1", snap[1].Content)
	assert.Equal(t, "question 2", snap[2].Content)
	assert.Equal(t, "answer 2", snap[3].Content)
}

func TestCountBounded_SnapshotIsACopy(t *testing.T) {
	h := NewCountBounded(4)
	h.Add(context.Background(), core.NewUserMessage("original"))

	snap := h.Snapshot()
	snap[0].Content = "mutated"

	assert.Equal(t, "original", h.Snapshot()[0].Content)
}

func TestCountBounded_SeedAppliesBound(t *testing.T) {
	h := NewCountBounded(2)

	h.Seed([]core.Message{
		core.NewUserMessage("one"),
		core.NewAssistantMessage("two", core.FinishStop),
		core.NewUserMessage("three"),
	})

	snap := h.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "two", snap[0].Content)
	assert.Equal(t, "three", snap[1].Content)
}

func TestCountBounded_DefaultsOnNonPositiveMax(t *testing.T) {
	h := NewCountBounded(0)
	for i := 0; i < 25; i++ {
		h.Add(context.Background(), core.NewUserMessage("m"))
	}
	assert.Len(t, h.Snapshot(), 20)
}
