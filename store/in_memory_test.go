package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-ai/parley/core"
)

var _ ChatStore = (*InMemoryStore)(nil)
var _ ChatStore = (*SQLiteStore)(nil)

func TestInMemoryStore_ChatLifecycle(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.CreateChat(ctx, &Chat{ID: "c1", UserID: "alice", AgentID: "a1"}))

	chat, err := s.GetChat(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "alice", chat.UserID)
	assert.Empty(t, chat.Title)
	assert.False(t, chat.CreatedAt.IsZero())

	require.NoError(t, s.UpdateTitle(ctx, "c1", "Go questions"))
	chat, err = s.GetChat(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Go questions", chat.Title)
}

func TestInMemoryStore_MissingChat(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	_, err := s.GetChat(ctx, "nope")
	assert.ErrorIs(t, err, core.ErrWorkflowNotFound)

	assert.ErrorIs(t, s.UpdateTitle(ctx, "nope", "t"), core.ErrWorkflowNotFound)

	_, err = s.CommitTurn(ctx, "nope", core.NewUserMessage("hi"), nil)
	assert.ErrorIs(t, err, core.ErrWorkflowNotFound)

	_, err = s.LoadHistory(ctx, "nope")
	assert.ErrorIs(t, err, core.ErrWorkflowNotFound)
}

func TestInMemoryStore_CommitTurnGroupsMessages(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.CreateChat(ctx, &Chat{ID: "c1", UserID: "alice"}))

	first, err := s.CommitTurn(ctx, "c1",
		core.NewUserMessage("hello"),
		[]core.Message{core.NewAssistantMessage("hi", core.FinishStop)},
	)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := s.CommitTurn(ctx, "c1",
		core.NewUserMessage("and again"),
		[]core.Message{
			core.NewToolCallMessage([]core.ToolCall{{ID: "t1", Name: "search", Arguments: `{}`}}),
			core.NewToolResultMessage(core.ToolCall{ID: "t1", Name: "search"}, "found"),
			core.NewAssistantMessage("done", core.FinishStop),
		},
	)
	require.NoError(t, err)
	assert.NotEqual(t, first, second, "each turn gets its own group id")

	messages, err := s.LoadHistory(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, messages, 6)

	assert.Equal(t, "hello", messages[0].Content)
	assert.Equal(t, "hi", messages[1].Content)
	assert.True(t, messages[3].IsToolCall())
	assert.True(t, messages[4].IsToolResult())
	assert.Equal(t, "done", messages[5].Content)
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	s, err := NewSQLiteStore(t.TempDir()+"/chats.db", nil)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()

	require.NoError(t, s.CreateChat(ctx, &Chat{ID: "c1", UserID: "alice", AgentID: "a1"}))

	groupID, err := s.CommitTurn(ctx, "c1",
		core.NewUserMessage("hello"),
		[]core.Message{
			core.NewToolCallMessage([]core.ToolCall{{ID: "t1", Name: "search", Arguments: `{"q":"go"}`}}),
			core.NewToolResultMessage(core.ToolCall{ID: "t1", Name: "search"}, "found"),
			core.NewAssistantMessage("hi there", core.FinishStop),
		},
	)
	require.NoError(t, err)
	assert.NotEmpty(t, groupID)

	messages, err := s.LoadHistory(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, messages, 4)

	assert.Equal(t, core.RoleUser, messages[0].Role)
	assert.Equal(t, "hello", messages[0].Content)

	require.True(t, messages[1].IsToolCall())
	require.Len(t, messages[1].ToolCalls, 1)
	assert.Equal(t, `{"q":"go"}`, messages[1].ToolCalls[0].Arguments)

	assert.True(t, messages[2].IsToolResult())
	assert.Equal(t, "t1", messages[2].ToolCallID)

	assert.Equal(t, "hi there", messages[3].Content)
	assert.Equal(t, core.FinishStop, messages[3].FinishReason)

	require.NoError(t, s.UpdateTitle(ctx, "c1", "Search chat"))
	chat, err := s.GetChat(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Search chat", chat.Title)

	_, err = s.GetChat(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrWorkflowNotFound)
}
